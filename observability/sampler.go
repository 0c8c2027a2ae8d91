package observability

import (
	"context"
	"runtime"
	"time"
)

// Gauge reads an external value, such as the page's JS heap in MB.
type Gauge func(ctx context.Context) (float64, error)

// Sampler periodically records process health into a MetricsManager.
type Sampler struct {
	mm       *MetricsManager
	interval time.Duration
	gauges   map[string]Gauge
}

// NewSampler creates a sampler. Recommended interval: 1m.
func NewSampler(mm *MetricsManager, interval time.Duration) *Sampler {
	return &Sampler{mm: mm, interval: interval, gauges: make(map[string]Gauge)}
}

// AddGauge samples g under name on every tick. Not safe after Run started.
func (s *Sampler) AddGauge(name string, g Gauge) {
	s.gauges[name] = g
}

// Sample records one round of samples.
func (s *Sampler) Sample(ctx context.Context) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	now := time.Now()
	s.mm.Record(&Metric{Name: MetricGoroutines, Timestamp: now, Value: float64(runtime.NumGoroutine()), Unit: "count"})
	s.mm.Record(&Metric{Name: MetricHeapAllocMB, Timestamp: now, Value: float64(mem.HeapAlloc) / 1024 / 1024, Unit: "megabytes"})

	for name, g := range s.gauges {
		v, err := g(ctx)
		if err != nil {
			s.mm.logger.Debug("observability: gauge", "name", name, "error", err)
			continue
		}
		s.mm.Record(&Metric{Name: name, Timestamp: now, Value: v, Unit: "megabytes"})
	}
}

// Run samples immediately and then on every interval until ctx is done.
func (s *Sampler) Run(ctx context.Context) {
	s.Sample(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sample(ctx)
		}
	}
}
