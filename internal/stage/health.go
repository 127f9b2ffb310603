package stage

// Health is one row of the daemon's readiness report.
type Health struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

func Healthy(name string) Health { return Health{Name: name, Ready: true} }

// Unhealthy reports name as not ready; detail is shown to operators.
func Unhealthy(name, detail string) Health { return Health{Name: name, Detail: detail} }
