package api_test

import (
	"encoding/json"
	"strings"
	"testing"

	"mediapipe/internal/api"
	"mediapipe/internal/stage"
	"mediapipe/internal/store"
	"mediapipe/internal/workflow"
)

func TestMergeFileStatsFillsMissingStatuses(t *testing.T) {
	got := api.MergeFileStats(map[store.Status]int{store.StatusSafe: 4})
	want := map[string]int{"processing": 0, "safe": 4, "unsafe": 0}
	if len(got) != len(want) {
		t.Fatalf("MergeFileStats = %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("MergeFileStats[%s] = %d, want %d", k, got[k], v)
		}
	}
}

func TestFromResourcePageHidesStagingPath(t *testing.T) {
	page := store.ResourcePage{
		Items: []*store.File{{
			ID:          "f-1",
			Kind:        store.KindImage,
			Status:      store.StatusProcessing,
			StagingPath: "/srv/staging/f-1.png",
		}},
		Total: 7,
		Page:  2,
		Limit: 1,
	}
	resp := api.FromResourcePage(page)
	if resp.Total != 7 || resp.Page != 2 || resp.Limit != 1 || len(resp.Items) != 1 {
		t.Fatalf("unexpected response %+v", resp)
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(raw), "/srv/staging") {
		t.Fatalf("staging path leaked: %s", raw)
	}

	empty := api.FromResourcePage(store.ResourcePage{Page: 1, Limit: 20})
	raw, _ = json.Marshal(empty)
	if !strings.Contains(string(raw), `"items":[]`) {
		t.Fatalf("expected empty items array, got %s", raw)
	}
}

func TestFromStatusSummarySortsStages(t *testing.T) {
	summary := workflow.StatusSummary{
		Running: true,
		Queues:  []string{"file-creating"},
		StageHealth: map[string]stage.Health{
			"transcription": stage.Unhealthy("transcription", "api key rejected"),
			"creation":      stage.Healthy("creation"),
		},
	}
	status := api.FromStatusSummary(summary)
	if !status.Running || len(status.Queues) != 1 {
		t.Fatalf("unexpected status %+v", status)
	}
	if len(status.StageHealth) != 2 || status.StageHealth[0].Name != "creation" || status.StageHealth[1].Ready {
		t.Fatalf("unexpected stage health %+v", status.StageHealth)
	}
	summary.Queues[0] = "mutated"
	if status.Queues[0] != "file-creating" {
		t.Fatal("expected queues to be copied")
	}
}

func TestFromHealthNotReadyWhenAnyComponentFails(t *testing.T) {
	resp := api.FromHealth([]stage.Health{stage.Healthy("store"), stage.Unhealthy("broker", "dial refused")})
	if resp.Ready || len(resp.Components) != 2 || resp.Components[1].Detail != "dial refused" {
		t.Fatalf("unexpected health %+v", resp)
	}
	if !api.FromHealth(nil).Ready {
		t.Fatal("expected empty health list to be ready")
	}
}
