package metrics

import (
	"math"
	"sort"
	"strconv"
	"time"
)

// ReviewState is the normalized state of one review submission.
type ReviewState string

const (
	// ReviewStateApproved marks an approving review.
	ReviewStateApproved ReviewState = "APPROVED"
	// ReviewStateChangesRequested marks a blocking review.
	ReviewStateChangesRequested ReviewState = "CHANGES_REQUESTED"
	// ReviewStateCommented marks a comment-only review.
	ReviewStateCommented ReviewState = "COMMENTED"
)

// PullRequestEvent carries one pull request's contribution to the
// accumulators. Derived per-PR facts (first review/commit time, review
// cycles, staleness flags) are computed by the collector before the event
// is recorded so accumulator updates stay order-independent.
type PullRequestEvent struct {
	Repo           string
	Number         int
	Author         string
	AuthorTeam     string
	Draft          bool
	CreatedAt      time.Time
	MergedAt       time.Time
	ClosedAt       time.Time
	TargetsDefault bool
	MergedBy       string
	Additions      int
	Deletions      int
	ChangedFiles   int
	CommitCount    int
	Revert         bool
	Hotfix         bool
	FirstReviewAt  time.Time
	FirstCommitAt  time.Time
	ReviewCycles   int
	Stale          bool
	LongRunning    bool
}

// Merged reports whether the pull request was merged.
func (ev PullRequestEvent) Merged() bool {
	return !ev.MergedAt.IsZero()
}

// ReviewEvent carries one review submission.
type ReviewEvent struct {
	Repo         string
	Number       int
	PRAuthor     string
	PRAuthorTeam string
	PRCreatedAt  time.Time
	Reviewer     string
	ReviewerTeam string
	State        ReviewState
	HasBody      bool
	SubmittedAt  time.Time
	Delayed      bool
}

// CommentEvent carries one review comment or issue comment on a pull request.
type CommentEvent struct {
	Repo      string
	Number    int
	PRAuthor  string
	Commenter string
	CreatedAt time.Time
}

// CommitObservation carries one commit seen on a pull request.
type CommitObservation struct {
	Repo       string
	Number     int
	Author     string
	AuthoredAt time.Time
}

// prKey addresses one pull request unambiguously across repositories.
func prKey(repo string, number int) string {
	return repo + "#" + strconv.Itoa(number)
}

// DurationStats summarizes one duration sample list in hours.
type DurationStats struct {
	Count       int     `json:"count"`
	AvgHours    float64 `json:"avg_hours"`
	MedianHours float64 `json:"median_hours"`
	P90Hours    float64 `json:"p90_hours"`
}

func summarizeDurations(samples []time.Duration) DurationStats {
	if len(samples) == 0 {
		return DurationStats{}
	}
	hours := make([]float64, 0, len(samples))
	for _, sample := range samples {
		hours = append(hours, sample.Hours())
	}
	return DurationStats{
		Count:       len(hours),
		AvgHours:    mean(hours),
		MedianHours: percentile(hours, 0.5),
		P90Hours:    percentile(hours, 0.9),
	}
}

// SampleStats summarizes one numeric sample list.
type SampleStats struct {
	Count  int     `json:"count"`
	Avg    float64 `json:"avg"`
	Median float64 `json:"median"`
	P90    float64 `json:"p90"`
}

func summarizeSamples(samples []float64) SampleStats {
	if len(samples) == 0 {
		return SampleStats{}
	}
	return SampleStats{
		Count:  len(samples),
		Avg:    mean(samples),
		Median: percentile(samples, 0.5),
		P90:    percentile(samples, 0.9),
	}
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	total := 0.0
	for _, value := range values {
		total += value
	}
	return total / float64(len(values))
}

func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}
	fraction := rank - float64(lower)
	return sorted[lower] + fraction*(sorted[upper]-sorted[lower])
}

func ratio(numerator, denominator int64) float64 {
	if denominator == 0 {
		return 0
	}
	return float64(numerator) / float64(denominator)
}
