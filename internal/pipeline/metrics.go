package pipeline

// Metrics is a thread-safe read-only view of key pipeline signals. It is
// updated from the pipeline goroutine after every tick and read from HTTP
// handlers/tests.
type Metrics struct {
	Tick uint64 `json:"tick"`

	Viewers  int `json:"viewers"`
	Interest int `json:"interest"`

	Loading    int `json:"loading"`
	Populating int `json:"populating"`
	Ready      int `json:"ready"`
	Unloading  int `json:"unloading"`

	Generated       uint64 `json:"generated_total"`
	Restored        uint64 `json:"restored_total"`
	LoadFailures    uint64 `json:"load_failures_total"`
	Persisted       uint64 `json:"persisted_total"`
	PersistFailures uint64 `json:"persist_failures_total"`
	Abandoned       uint64 `json:"abandoned_total"`

	PopulateBacklog int `json:"populate_backlog"`
	PersistBacklog  int `json:"persist_backlog"`

	StepMS float64 `json:"step_ms"`
}

func (p *Pipeline) Metrics() Metrics {
	if p == nil {
		return Metrics{}
	}
	v := p.metrics.Load()
	if v == nil {
		return Metrics{}
	}
	m, ok := v.(Metrics)
	if !ok {
		return Metrics{}
	}
	return m
}
