package backend

import (
	"sync"
	"testing"
)

func TestNewBackendDefaults(t *testing.T) {
	b := New(Meta{ID: 1, Address: "127.0.0.1:9001"})

	if !b.IsAlive() {
		t.Error("new backend should be alive")
	}
	if b.Status() != Active {
		t.Errorf("new backend should be Active, got %v", b.Status())
	}
	if b.ActiveConnections() != 0 || b.TotalRequests() != 0 || b.TotalErrors() != 0 {
		t.Error("new backend counters should start at zero")
	}
	if b.Weight() != 1 {
		t.Errorf("absent weight should default to 1, got %d", b.Weight())
	}
}

func TestEffectiveWeight(t *testing.T) {
	b := New(Meta{ID: 1, Address: "127.0.0.1:9001", Weight: 5})
	if b.Weight() != 5 {
		t.Errorf("expected weight 5, got %d", b.Weight())
	}
}

func TestDrainIsOneWay(t *testing.T) {
	b := New(Meta{ID: 1, Address: "127.0.0.1:9001"})
	b.Drain()
	if b.Status() != Draining {
		t.Fatalf("expected Draining, got %v", b.Status())
	}
	if b.Selectable() {
		t.Error("a draining backend must not be selectable")
	}
}

func TestSelectableRequiresAliveAndActive(t *testing.T) {
	b := New(Meta{ID: 1, Address: "127.0.0.1:9001"})
	if !b.Selectable() {
		t.Error("fresh backend should be selectable")
	}
	b.SetAlive(false)
	if b.Selectable() {
		t.Error("dead backend must not be selectable")
	}
	b.SetAlive(true)
	b.Drain()
	if b.Selectable() {
		t.Error("draining backend must not be selectable even if alive")
	}
}

func TestActiveConnectionsNeverNegative(t *testing.T) {
	b := New(Meta{ID: 1, Address: "127.0.0.1:9001"})
	b.DecActiveConnections()
	if b.ActiveConnections() != 0 {
		t.Errorf("active connections must not go negative, got %d", b.ActiveConnections())
	}
}

func TestActiveConnectionsConcurrency(t *testing.T) {
	b := New(Meta{ID: 1, Address: "127.0.0.1:9001"})

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				b.IncActiveConnections()
			}
		}()
	}
	wg.Wait()

	if b.ActiveConnections() != 10000 {
		t.Errorf("expected 10000 active connections, got %d", b.ActiveConnections())
	}

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				b.DecActiveConnections()
			}
		}()
	}
	wg.Wait()

	if b.ActiveConnections() != 0 {
		t.Errorf("expected 0 active connections after draining back down, got %d", b.ActiveConnections())
	}
}

func TestAvgLatencyAndErrorRate(t *testing.T) {
	b := New(Meta{ID: 1, Address: "127.0.0.1:9001"})

	if b.AvgLatencyMs() != 0 || b.ErrorRate() != 0 {
		t.Error("a backend with no requests should report zero avg latency and error rate")
	}

	b.IncTotalRequests()
	b.AddLatency(50)
	b.IncTotalRequests()
	b.AddLatency(150)
	b.IncTotalErrors()

	if got := b.AvgLatencyMs(); got != 100 {
		t.Errorf("expected avg latency 100ms, got %v", got)
	}
	if got := b.ErrorRate(); got != 0.5 {
		t.Errorf("expected error rate 0.5, got %v", got)
	}
}

func TestHealthAndMetricsStamps(t *testing.T) {
	b := New(Meta{ID: 1, Address: "127.0.0.1:9001"})
	b.StampHealthCheck(1234)
	b.StampMetricsUpdate(5678)

	if b.LastHealthCheckMs() != 1234 {
		t.Errorf("expected last health check 1234, got %d", b.LastHealthCheckMs())
	}
	if b.LastMetricsUpdateMs() != 5678 {
		t.Errorf("expected last metrics update 5678, got %d", b.LastMetricsUpdateMs())
	}
}
