package report

import (
	"fmt"
	"io"
	"sort"

	"github.com/wellcode-ai/wellcode-cli/internal/metrics"
)

// WriteSummary renders a plain-text run summary to the writer.
func WriteSummary(w io.Writer, snapshot metrics.Snapshot) error {
	lines := []string{
		fmt.Sprintf("Organization: %s", snapshot.Organization),
		fmt.Sprintf("Window:       %s .. %s",
			snapshot.Window.Start.Format("2006-01-02"),
			snapshot.Window.End.Format("2006-01-02")),
		fmt.Sprintf("Generated:    %s", snapshot.GeneratedAt.Format("2006-01-02 15:04:05 MST")),
		"",
		fmt.Sprintf("Pull requests: %d created, %d merged (%.0f%% completion), %d to default branch",
			snapshot.Counters.Created,
			snapshot.Counters.Merged,
			snapshot.Derived.CompletionRate*100,
			snapshot.Counters.MergedToDefault),
		fmt.Sprintf("Latency:       merge avg %.1fh median %.1fh, first review median %.1fh",
			snapshot.Derived.TimeToMerge.AvgHours,
			snapshot.Derived.TimeToMerge.MedianHours,
			snapshot.Derived.TimeToFirstReview.MedianHours),
		fmt.Sprintf("Deploy freq:   %.2f merges to default per day",
			snapshot.Derived.DeploymentFrequency),
		fmt.Sprintf("Bottlenecks:   %d stale PRs, %d long-running PRs",
			snapshot.Metrics.Bottleneck.StalePRs,
			snapshot.Metrics.Bottleneck.LongRunningPRs),
	}

	if len(snapshot.Derived.TopBottleneckUsers) > 0 {
		lines = append(lines, "", "Slowest reviewers:")
		for _, user := range snapshot.Derived.TopBottleneckUsers {
			lines = append(lines, fmt.Sprintf("  %-24s %d delayed reviews", user.Username, user.DelayedReviews))
		}
	}

	lines = append(lines, "", fmt.Sprintf("Repositories (%d):", len(snapshot.Repositories)))
	for _, name := range sortedRepoNames(snapshot) {
		repo := snapshot.Repositories[name]
		lines = append(lines, fmt.Sprintf("  %-32s %3d PRs, %3d merged, %2d contributors",
			name, repo.Counters.Created, repo.Counters.Merged, len(repo.Contributors)))
	}

	if snapshot.Run.Degraded() {
		lines = append(lines, "",
			fmt.Sprintf("Run finished with gaps: %d repos failed, %d PRs failed, %d subresource misses",
				snapshot.Run.ReposFailed, snapshot.Run.PRsFailed, snapshot.Run.SubresourceMisses))
	}

	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
	}
	return nil
}

func sortedRepoNames(snapshot metrics.Snapshot) []string {
	names := make([]string, 0, len(snapshot.Repositories))
	for name := range snapshot.Repositories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
