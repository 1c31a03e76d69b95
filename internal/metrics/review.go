package metrics

import (
	"sync"
	"time"
)

// ReviewMetrics accumulates review activity and review latency. The zero
// value is ready to use; all methods are safe for concurrent use.
type ReviewMetrics struct {
	mu sync.Mutex

	reviewsPerformed   int64
	blockingReviews    int64
	substantiveReviews int64
	commentsGiven      int64
	commentsReceived   int64
	firstReviewSamples []time.Duration
	reviewCycleSamples []float64
	reviewersByPR      map[string]map[string]struct{}
}

// ApplyReview folds one review submission into the bag. A reviewer is held
// in the per-PR set at most once no matter how many reviews they submit.
func (m *ReviewMetrics) ApplyReview(ev ReviewEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.reviewsPerformed++
	if ev.State == ReviewStateChangesRequested {
		m.blockingReviews++
	}
	if ev.HasBody {
		m.substantiveReviews++
	}

	if ev.Reviewer != "" {
		if m.reviewersByPR == nil {
			m.reviewersByPR = make(map[string]map[string]struct{})
		}
		key := prKey(ev.Repo, ev.Number)
		reviewers := m.reviewersByPR[key]
		if reviewers == nil {
			reviewers = make(map[string]struct{})
			m.reviewersByPR[key] = reviewers
		}
		reviewers[ev.Reviewer] = struct{}{}
	}
}

// ApplyCommentGiven counts one comment authored by this entity's side.
func (m *ReviewMetrics) ApplyCommentGiven(_ CommentEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commentsGiven++
}

// ApplyCommentReceived counts one comment received on this entity's PRs.
func (m *ReviewMetrics) ApplyCommentReceived(_ CommentEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commentsReceived++
}

// ApplyPullRequest folds one pull request's review latency facts into the bag.
func (m *ReviewMetrics) ApplyPullRequest(ev PullRequestEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !ev.FirstReviewAt.IsZero() && ev.FirstReviewAt.After(ev.CreatedAt) {
		m.firstReviewSamples = append(m.firstReviewSamples, ev.FirstReviewAt.Sub(ev.CreatedAt))
	}
	if ev.ReviewCycles > 0 {
		m.reviewCycleSamples = append(m.reviewCycleSamples, float64(ev.ReviewCycles))
	}
}

// Merge folds another fully-populated bag into this one. Reviewer sets keep
// set semantics across the merge.
func (m *ReviewMetrics) Merge(other *ReviewMetrics) {
	if other == nil || other == m {
		return
	}

	other.mu.Lock()
	performed := other.reviewsPerformed
	blocking := other.blockingReviews
	substantive := other.substantiveReviews
	given := other.commentsGiven
	received := other.commentsReceived
	firstReview := append([]time.Duration(nil), other.firstReviewSamples...)
	cycles := append([]float64(nil), other.reviewCycleSamples...)
	reviewersByPR := make(map[string][]string, len(other.reviewersByPR))
	for key, reviewers := range other.reviewersByPR {
		for reviewer := range reviewers {
			reviewersByPR[key] = append(reviewersByPR[key], reviewer)
		}
	}
	other.mu.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.reviewsPerformed += performed
	m.blockingReviews += blocking
	m.substantiveReviews += substantive
	m.commentsGiven += given
	m.commentsReceived += received
	m.firstReviewSamples = append(m.firstReviewSamples, firstReview...)
	m.reviewCycleSamples = append(m.reviewCycleSamples, cycles...)
	for key, reviewers := range reviewersByPR {
		if m.reviewersByPR == nil {
			m.reviewersByPR = make(map[string]map[string]struct{})
		}
		set := m.reviewersByPR[key]
		if set == nil {
			set = make(map[string]struct{})
			m.reviewersByPR[key] = set
		}
		for _, reviewer := range reviewers {
			set[reviewer] = struct{}{}
		}
	}
}

// ReviewStats is the derived, serializable view of ReviewMetrics.
type ReviewStats struct {
	ReviewsPerformed   int64         `json:"reviews_performed"`
	BlockingReviews    int64         `json:"blocking_reviews"`
	SubstantiveReviews int64         `json:"substantive_reviews"`
	CommentsGiven      int64         `json:"comments_given"`
	CommentsReceived   int64         `json:"comments_received"`
	TimeToFirstReview  DurationStats `json:"time_to_first_review"`
	ReviewCycles       SampleStats   `json:"review_cycles"`
	ReviewedPRs        int           `json:"reviewed_prs"`
	UniqueReviewerSeats int64        `json:"unique_reviewer_seats"`
}

// Stats derives the serializable summary from the raw counters.
func (m *ReviewMetrics) Stats() ReviewStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	seats := int64(0)
	for _, reviewers := range m.reviewersByPR {
		seats += int64(len(reviewers))
	}
	return ReviewStats{
		ReviewsPerformed:    m.reviewsPerformed,
		BlockingReviews:     m.blockingReviews,
		SubstantiveReviews:  m.substantiveReviews,
		CommentsGiven:       m.commentsGiven,
		CommentsReceived:    m.commentsReceived,
		TimeToFirstReview:   summarizeDurations(m.firstReviewSamples),
		ReviewCycles:        summarizeSamples(m.reviewCycleSamples),
		ReviewedPRs:         len(m.reviewersByPR),
		UniqueReviewerSeats: seats,
	}
}
