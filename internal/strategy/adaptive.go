package strategy

import (
	"tcplb/internal/backend"
	"tcplb/internal/routetable"
)

// Adaptive coefficients (spec.md §4.2 defaults).
const (
	adaptiveAlpha = 0.4 // latency weight
	adaptiveBeta  = 0.3 // active-connections weight
	adaptiveGamma = 0.2 // error-rate weight
	adaptiveDelta = 0.1 // weight bonus (subtracted: higher configured weight lowers score)
)

// Adaptive scores every selectable backend on normalized latency,
// connection load, error rate, and configured weight, and picks the lowest
// score (tie-break lower id). New relative to the teacher; the
// min-max-normalize-then-score shape has no analog in balancer/*.go, so
// this is built directly from spec.md §4.2's formula rather than adapted
// from an existing file.
type Adaptive struct{}

func NewAdaptive() *Adaptive { return &Adaptive{} }

func (a *Adaptive) Pick(rt *routetable.RouteTable) (*backend.Backend, error) {
	sel := rt.Selectable()
	if len(sel) == 0 {
		return nil, ErrNoHealthyBackend
	}
	if len(sel) == 1 {
		return sel[0], nil
	}

	lat := make([]float64, len(sel))
	conn := make([]float64, len(sel))
	errRate := make([]float64, len(sel))
	weight := make([]float64, len(sel))
	for i, b := range sel {
		lat[i] = b.AvgLatencyMs()
		conn[i] = float64(b.ActiveConnections())
		errRate[i] = b.ErrorRate()
		weight[i] = float64(b.Weight())
	}

	normLat := normalizer(lat)
	normConn := normalizer(conn)
	normErr := normalizer(errRate)
	normWeight := normalizer(weight)

	var best *backend.Backend
	bestScore := 0.0
	for i, b := range sel {
		score := adaptiveAlpha*normLat(lat[i]) +
			adaptiveBeta*normConn(conn[i]) +
			adaptiveGamma*normErr(errRate[i]) -
			adaptiveDelta*normWeight(weight[i])
		if best == nil || score < bestScore {
			best, bestScore = b, score
		}
	}
	return best, nil
}

// normalizer builds a min-max normalization function closed over the given
// set: norm(x) = (x-min)/(max-min), or always 0 if max == min (spec.md
// §4.2's degenerate case — every value tied contributes nothing to the
// score).
func normalizer(values []float64) func(float64) float64 {
	min, max := values[0], values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	if max == min {
		return func(float64) float64 { return 0 }
	}
	spread := max - min
	return func(x float64) float64 { return (x - min) / spread }
}

func (a *Adaptive) Name() string { return "adaptive" }
