package engine

import (
	"time"

	gometrics "github.com/hashicorp/go-metrics"
)

// Metrics records per-batch counters and timings into an in-memory sink.
// Each Engine owns its own instance; nothing is registered globally.
type Metrics struct {
	sink *gometrics.InmemSink
	m    *gometrics.Metrics
}

// NewMetrics creates a Metrics whose keys are prefixed with service.
func NewMetrics(service string) (*Metrics, error) {
	sink := gometrics.NewInmemSink(10*time.Second, time.Minute)
	cfg := gometrics.DefaultConfig(service)
	cfg.EnableHostname = false
	cfg.EnableRuntimeMetrics = false
	m, err := gometrics.New(cfg, sink)
	if err != nil {
		return nil, err
	}
	return &Metrics{sink: sink, m: m}, nil
}

func (m *Metrics) record(res *BatchResult) {
	if m == nil {
		return
	}
	if res.Success {
		m.m.IncrCounter([]string{"batch", "committed"}, 1)
	} else {
		m.m.IncrCounter([]string{"batch", "rolled_back"}, 1)
		m.m.IncrCounter([]string{"batch", "error", string(res.ErrorType)}, 1)
	}
	if res.Fallback {
		m.m.IncrCounter([]string{"batch", "fallback"}, 1)
	}
	var committed, rolledBack int
	for _, st := range res.Statuses {
		if st.State == StatusCommitted {
			committed++
		} else {
			rolledBack++
		}
	}
	m.m.IncrCounter([]string{"tx", "committed"}, float32(committed))
	m.m.IncrCounter([]string{"tx", "rolled_back"}, float32(rolledBack))
	m.m.AddSample([]string{"batch", "groups"}, float32(res.Metrics.Groups))
	m.m.AddSample([]string{"batch", "elapsed_ms"}, float32(res.Metrics.Elapsed.Seconds()*1000))
	m.m.SetGauge([]string{"batch", "workers"}, float32(res.Metrics.WorkersSpawned))
}

// Counter returns the sum of a counter across retained intervals. name is
// the flattened key, e.g. "synchrony.batch.committed".
func (m *Metrics) Counter(name string) float64 {
	var sum float64
	for _, iv := range m.sink.Data() {
		iv.RLock()
		if c, ok := iv.Counters[name]; ok {
			sum += c.Sum
		}
		iv.RUnlock()
	}
	return sum
}

// Samples returns how many samples a sample metric holds across retained
// intervals.
func (m *Metrics) Samples(name string) int {
	var n int
	for _, iv := range m.sink.Data() {
		iv.RLock()
		if s, ok := iv.Samples[name]; ok {
			n += s.Count
		}
		iv.RUnlock()
	}
	return n
}
