package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/wellcode-ai/wellcode-cli/internal/metrics"
)

func sampleSnapshot() metrics.Snapshot {
	return metrics.Snapshot{
		Organization: "acme",
		Window: metrics.Window{
			Start: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC),
		},
		GeneratedAt: time.Date(2024, 3, 8, 9, 30, 0, 0, time.UTC),
		Counters:    metrics.PRCounters{Created: 10, Merged: 8, MergedToDefault: 7},
		Derived: metrics.DerivedStats{
			CompletionRate:      0.8,
			DeploymentFrequency: 1.0,
			TimeToMerge:         metrics.DurationStats{Count: 8, AvgHours: 20, MedianHours: 18},
			TopBottleneckUsers: []metrics.BottleneckUser{
				{Username: "erin", DelayedReviews: 3},
			},
		},
		Repositories: map[string]metrics.RepositorySnapshot{
			"api": {Name: "api", Counters: metrics.PRCounters{Created: 6, Merged: 5}, Contributors: []string{"alice", "bob"}},
			"web": {Name: "web", Counters: metrics.PRCounters{Created: 4, Merged: 3}, Contributors: []string{"carol"}},
		},
		Users: map[string]metrics.UserSnapshot{
			"alice": {Username: "alice", Team: "platform"},
		},
		Run: metrics.RunSummary{ReposProcessed: 2, PRsProcessed: 10, SubresourceMisses: 2},
	}
}

func TestWriteSnapshotToExplicitPath(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "out", "metrics.json")
	written, err := WriteSnapshot(sampleSnapshot(), path)
	if err != nil {
		t.Fatalf("WriteSnapshot() error = %v, want nil", err)
	}
	if written != path {
		t.Fatalf("WriteSnapshot() path = %q, want %q", written, path)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading snapshot file: %v", err)
	}
	var decoded metrics.Snapshot
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("decoding snapshot file: %v", err)
	}
	if decoded.Organization != "acme" {
		t.Fatalf("decoded organization = %q, want %q", decoded.Organization, "acme")
	}
	if decoded.Counters != sampleSnapshot().Counters {
		t.Fatalf("decoded counters = %+v, want %+v", decoded.Counters, sampleSnapshot().Counters)
	}
	if len(decoded.Repositories) != 2 {
		t.Fatalf("decoded repositories = %d, want 2", len(decoded.Repositories))
	}
}

func TestWriteSnapshotDefaultsToScratchFile(t *testing.T) {
	t.Parallel()

	written, err := WriteSnapshot(sampleSnapshot(), "  ")
	if err != nil {
		t.Fatalf("WriteSnapshot() error = %v, want nil", err)
	}
	t.Cleanup(func() { os.Remove(written) })

	if written == "" {
		t.Fatal("WriteSnapshot() path empty, want scratch file path")
	}
	if !strings.Contains(filepath.Base(written), "wellcode-metrics-") {
		t.Fatalf("scratch file name = %q, want wellcode-metrics-* pattern", filepath.Base(written))
	}
	if _, err := os.Stat(written); err != nil {
		t.Fatalf("scratch snapshot file missing: %v", err)
	}
}

func TestWriteSummaryRendersRunFigures(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := WriteSummary(&buf, sampleSnapshot()); err != nil {
		t.Fatalf("WriteSummary() error = %v, want nil", err)
	}

	out := buf.String()
	for _, want := range []string{
		"Organization: acme",
		"Window:       2024-03-01 .. 2024-03-08",
		"10 created, 8 merged (80% completion), 7 to default branch",
		"1.00 merges to default per day",
		"Slowest reviewers:",
		"erin",
		"Repositories (2):",
		"api",
		"web",
		"Run finished with gaps: 0 repos failed, 0 PRs failed, 2 subresource misses",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("summary output missing %q\n%s", want, out)
		}
	}
}

func TestWriteSummaryOmitsGapLineOnCleanRun(t *testing.T) {
	t.Parallel()

	snapshot := sampleSnapshot()
	snapshot.Run.SubresourceMisses = 0

	var buf bytes.Buffer
	if err := WriteSummary(&buf, snapshot); err != nil {
		t.Fatalf("WriteSummary() error = %v, want nil", err)
	}
	if strings.Contains(buf.String(), "finished with gaps") {
		t.Fatal("summary reports gaps on a clean run")
	}
}
