package metrics

import (
	"sort"
	"sync"
	"time"
)

// BottleneckMetrics accumulates process friction signals. The zero value is
// ready to use; all methods are safe for concurrent use.
type BottleneckMetrics struct {
	mu sync.Mutex

	stalePRs              int64
	longRunningPRs        int64
	reviewWaitSamples     []time.Duration
	reviewResponseSamples []time.Duration
	delayedReviewsByUser  map[string]int64
}

// ApplyPullRequest folds one pull request's staleness facts into the bag.
func (m *BottleneckMetrics) ApplyPullRequest(ev PullRequestEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ev.Stale {
		m.stalePRs++
	}
	if ev.LongRunning {
		m.longRunningPRs++
	}
	if !ev.FirstReviewAt.IsZero() && ev.FirstReviewAt.After(ev.CreatedAt) {
		m.reviewWaitSamples = append(m.reviewWaitSamples, ev.FirstReviewAt.Sub(ev.CreatedAt))
	}
}

// ApplyReview records one review's response latency and attributes delayed
// reviews to the reviewer.
func (m *BottleneckMetrics) ApplyReview(ev ReviewEvent) {
	if ev.SubmittedAt.IsZero() || !ev.SubmittedAt.After(ev.PRCreatedAt) {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.reviewResponseSamples = append(m.reviewResponseSamples, ev.SubmittedAt.Sub(ev.PRCreatedAt))
	if ev.Delayed && ev.Reviewer != "" {
		if m.delayedReviewsByUser == nil {
			m.delayedReviewsByUser = make(map[string]int64)
		}
		m.delayedReviewsByUser[ev.Reviewer]++
	}
}

// Merge folds another fully-populated bag into this one.
func (m *BottleneckMetrics) Merge(other *BottleneckMetrics) {
	if other == nil || other == m {
		return
	}

	other.mu.Lock()
	stale := other.stalePRs
	longRunning := other.longRunningPRs
	waits := append([]time.Duration(nil), other.reviewWaitSamples...)
	responses := append([]time.Duration(nil), other.reviewResponseSamples...)
	delayed := make(map[string]int64, len(other.delayedReviewsByUser))
	for user, count := range other.delayedReviewsByUser {
		delayed[user] = count
	}
	other.mu.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.stalePRs += stale
	m.longRunningPRs += longRunning
	m.reviewWaitSamples = append(m.reviewWaitSamples, waits...)
	m.reviewResponseSamples = append(m.reviewResponseSamples, responses...)
	for user, count := range delayed {
		if m.delayedReviewsByUser == nil {
			m.delayedReviewsByUser = make(map[string]int64)
		}
		m.delayedReviewsByUser[user] += count
	}
}

// BottleneckUser is one entry in the delayed-review leaderboard.
type BottleneckUser struct {
	Username       string `json:"username"`
	DelayedReviews int64  `json:"delayed_reviews"`
}

// TopDelayedReviewers returns the heaviest delayed-review contributors,
// ties broken by username for stable output.
func (m *BottleneckMetrics) TopDelayedReviewers(n int) []BottleneckUser {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n <= 0 || len(m.delayedReviewsByUser) == 0 {
		return nil
	}
	users := make([]BottleneckUser, 0, len(m.delayedReviewsByUser))
	for username, count := range m.delayedReviewsByUser {
		users = append(users, BottleneckUser{Username: username, DelayedReviews: count})
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].DelayedReviews != users[j].DelayedReviews {
			return users[i].DelayedReviews > users[j].DelayedReviews
		}
		return users[i].Username < users[j].Username
	})
	if len(users) > n {
		users = users[:n]
	}
	return users
}

// BottleneckStats is the derived, serializable view of BottleneckMetrics.
type BottleneckStats struct {
	StalePRs       int64         `json:"stale_prs"`
	LongRunningPRs int64         `json:"long_running_prs"`
	ReviewWait     DurationStats `json:"review_wait"`
	ReviewResponse DurationStats `json:"review_response"`
	DelayedReviews int64         `json:"delayed_reviews"`
}

// Stats derives the serializable summary from the raw counters.
func (m *BottleneckMetrics) Stats() BottleneckStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	delayed := int64(0)
	for _, count := range m.delayedReviewsByUser {
		delayed += count
	}
	return BottleneckStats{
		StalePRs:       m.stalePRs,
		LongRunningPRs: m.longRunningPRs,
		ReviewWait:     summarizeDurations(m.reviewWaitSamples),
		ReviewResponse: summarizeDurations(m.reviewResponseSamples),
		DelayedReviews: delayed,
	}
}
