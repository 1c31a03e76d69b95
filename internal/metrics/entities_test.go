package metrics

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestPRCountersClassifyDirectDefaultMerges(t *testing.T) {
	t.Parallel()

	created := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	merged := created.Add(4 * time.Hour)

	testCases := []struct {
		name string
		ev   PullRequestEvent
		want PRCounters
	}{
		{
			name: "merged_to_default_without_review_is_direct",
			ev:   PullRequestEvent{CreatedAt: created, MergedAt: merged, TargetsDefault: true},
			want: PRCounters{Created: 1, Merged: 1, MergedToDefault: 1, DirectToDefault: 1},
		},
		{
			name: "merged_to_default_with_review_is_not_direct",
			ev: PullRequestEvent{
				CreatedAt: created, MergedAt: merged, TargetsDefault: true,
				FirstReviewAt: created.Add(time.Hour),
			},
			want: PRCounters{Created: 1, Merged: 1, MergedToDefault: 1},
		},
		{
			name: "merged_elsewhere_without_review_is_not_direct",
			ev:   PullRequestEvent{CreatedAt: created, MergedAt: merged},
			want: PRCounters{Created: 1, Merged: 1},
		},
		{
			name: "open_pr_only_counts_created",
			ev:   PullRequestEvent{CreatedAt: created, TargetsDefault: true},
			want: PRCounters{Created: 1},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			counters := PRCounters{}
			counters.record(tc.ev)
			if counters != tc.want {
				t.Fatalf("counters = %+v, want %+v", counters, tc.want)
			}
		})
	}
}

func TestGetOrCreateRepositoryIsIdempotentUnderConcurrency(t *testing.T) {
	t.Parallel()

	org := NewOrganization("acme")

	const tasks = 64
	results := make([]*Repository, tasks)
	var wg sync.WaitGroup
	for i := 0; i < tasks; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			results[slot] = org.GetOrCreateRepository("api", "main")
		}(i)
	}
	wg.Wait()

	first := results[0]
	if first == nil {
		t.Fatal("GetOrCreateRepository() = nil, want instance")
	}
	for i, repo := range results {
		if repo != first {
			t.Fatalf("results[%d] = %p, want the single instance %p", i, repo, first)
		}
	}
	if got := len(org.Repositories()); got != 1 {
		t.Fatalf("repository count = %d, want 1", got)
	}
}

func TestGetOrCreateUserIsIdempotentUnderConcurrency(t *testing.T) {
	t.Parallel()

	org := NewOrganization("acme")
	org.SetTeams(map[string][]string{"platform": {"dave"}})

	const tasks = 64
	results := make([]*User, tasks)
	var wg sync.WaitGroup
	for i := 0; i < tasks; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			results[slot] = org.GetOrCreateUser("dave")
		}(i)
	}
	wg.Wait()

	first := results[0]
	for i, user := range results {
		if user != first {
			t.Fatalf("results[%d] = %p, want the single instance %p", i, user, first)
		}
	}
	if got := len(org.Users()); got != 1 {
		t.Fatalf("user count = %d, want 1", got)
	}
	if first.Team != "platform" {
		t.Fatalf("user team = %q, want %q", first.Team, "platform")
	}
}

func TestConcurrentDistinctCreatesKeepEveryEntity(t *testing.T) {
	t.Parallel()

	org := NewOrganization("acme")

	const entities = 32
	var wg sync.WaitGroup
	for i := 0; i < entities; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			org.GetOrCreateRepository(fmt.Sprintf("repo-%02d", n), "main")
			org.GetOrCreateUser(fmt.Sprintf("user-%02d", n))
		}(i)
	}
	wg.Wait()

	if got := len(org.Repositories()); got != entities {
		t.Fatalf("repository count = %d, want %d", got, entities)
	}
	if got := len(org.Users()); got != entities {
		t.Fatalf("user count = %d, want %d", got, entities)
	}
}

func TestTeamOfFallsBackToEmpty(t *testing.T) {
	t.Parallel()

	org := NewOrganization("acme")
	org.SetTeams(map[string][]string{"platform": {"dave", "erin"}})

	if got := org.TeamOf("dave"); got != "platform" {
		t.Fatalf("TeamOf(dave) = %q, want %q", got, "platform")
	}
	if got := org.TeamOf("mallory"); got != "" {
		t.Fatalf("TeamOf(mallory) = %q, want empty", got)
	}
}
