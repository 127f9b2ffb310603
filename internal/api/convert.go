package api

import (
	"slices"

	"mediapipe/internal/stage"
	"mediapipe/internal/store"
	"mediapipe/internal/workflow"
)

// FromStatusSummary converts workflow diagnostics into the API payload.
func FromStatusSummary(summary workflow.StatusSummary) WorkflowStatus {
	return WorkflowStatus{
		Running:     summary.Running,
		Queues:      append([]string(nil), summary.Queues...),
		LastError:   summary.LastError,
		StageHealth: StageHealthSlice(summary.StageHealth),
	}
}

// StageHealthSlice converts a stage health map into a deterministic slice.
func StageHealthSlice(health map[string]stage.Health) []StageHealth {
	if len(health) == 0 {
		return nil
	}
	names := make([]string, 0, len(health))
	for name := range health {
		names = append(names, name)
	}
	slices.Sort(names)

	out := make([]StageHealth, 0, len(names))
	for _, name := range names {
		h := health[name]
		out = append(out, StageHealth{Name: name, Ready: h.Ready, Detail: h.Detail})
	}
	return out
}

// FromHealth converts an ordered list of health records.
func FromHealth(records []stage.Health) HealthResponse {
	resp := HealthResponse{Ready: true, Components: make([]StageHealth, 0, len(records))}
	for _, h := range records {
		resp.Components = append(resp.Components, StageHealth{Name: h.Name, Ready: h.Ready, Detail: h.Detail})
		if !h.Ready {
			resp.Ready = false
		}
	}
	return resp
}

// FromResourcePage strips internal fields from a listing page.
func FromResourcePage(page store.ResourcePage) ResourceListResponse {
	items := make([]store.PublicFile, 0, len(page.Items))
	for _, file := range page.Items {
		items = append(items, file.Public())
	}
	return ResourceListResponse{Items: items, Total: page.Total, Page: page.Page, Limit: page.Limit}
}

// MergeFileStats converts status counts into string keys, including zero
// counts for every status.
func MergeFileStats(stats map[store.Status]int) map[string]int {
	out := map[string]int{
		string(store.StatusProcessing): 0,
		string(store.StatusSafe):       0,
		string(store.StatusUnsafe):     0,
	}
	for status, count := range stats {
		out[string(status)] = count
	}
	return out
}
