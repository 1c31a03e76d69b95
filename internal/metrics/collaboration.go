package metrics

import "sync"

// CollaborationMetrics accumulates cross-team review and discussion
// patterns. The zero value is ready to use; all methods are safe for
// concurrent use.
type CollaborationMetrics struct {
	mu sync.Mutex

	selfMerges      int64
	sameTeamReviews int64
	crossTeamReviews int64
	externalReviews int64
	commentsByPR    map[string]int64
}

// ApplyPullRequest records a self-merge when the merger is the author.
func (m *CollaborationMetrics) ApplyPullRequest(ev PullRequestEvent) {
	if !ev.Merged() || ev.MergedBy == "" || ev.MergedBy != ev.Author {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.selfMerges++
}

// ApplyReview classifies one review by team relationship. Self-reviews are
// not collaboration and are skipped; a reviewer with no known team counts
// as external.
func (m *CollaborationMetrics) ApplyReview(ev ReviewEvent) {
	if ev.Reviewer == "" || ev.Reviewer == ev.PRAuthor {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case ev.ReviewerTeam == "":
		m.externalReviews++
	case ev.ReviewerTeam == ev.PRAuthorTeam:
		m.sameTeamReviews++
	default:
		m.crossTeamReviews++
	}
}

// ApplyComment counts one comment against its pull request.
func (m *CollaborationMetrics) ApplyComment(ev CommentEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.commentsByPR == nil {
		m.commentsByPR = make(map[string]int64)
	}
	m.commentsByPR[prKey(ev.Repo, ev.Number)]++
}

// Merge folds another fully-populated bag into this one.
func (m *CollaborationMetrics) Merge(other *CollaborationMetrics) {
	if other == nil || other == m {
		return
	}

	other.mu.Lock()
	selfMerges := other.selfMerges
	sameTeam := other.sameTeamReviews
	crossTeam := other.crossTeamReviews
	external := other.externalReviews
	commentsByPR := make(map[string]int64, len(other.commentsByPR))
	for key, count := range other.commentsByPR {
		commentsByPR[key] = count
	}
	other.mu.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.selfMerges += selfMerges
	m.sameTeamReviews += sameTeam
	m.crossTeamReviews += crossTeam
	m.externalReviews += external
	for key, count := range commentsByPR {
		if m.commentsByPR == nil {
			m.commentsByPR = make(map[string]int64)
		}
		m.commentsByPR[key] += count
	}
}

// CollaborationStats is the derived, serializable view of CollaborationMetrics.
type CollaborationStats struct {
	SelfMerges        int64       `json:"self_merges"`
	SameTeamReviews   int64       `json:"same_team_reviews"`
	CrossTeamReviews  int64       `json:"cross_team_reviews"`
	ExternalReviews   int64       `json:"external_reviews"`
	DiscussedPRs      int         `json:"discussed_prs"`
	CommentsPerPR     SampleStats `json:"comments_per_pr"`
	CrossTeamShare    float64     `json:"cross_team_share"`
}

// Stats derives the serializable summary from the raw counters.
func (m *CollaborationMetrics) Stats() CollaborationStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	perPR := make([]float64, 0, len(m.commentsByPR))
	for _, count := range m.commentsByPR {
		perPR = append(perPR, float64(count))
	}
	classified := m.sameTeamReviews + m.crossTeamReviews + m.externalReviews
	return CollaborationStats{
		SelfMerges:       m.selfMerges,
		SameTeamReviews:  m.sameTeamReviews,
		CrossTeamReviews: m.crossTeamReviews,
		ExternalReviews:  m.externalReviews,
		DiscussedPRs:     len(m.commentsByPR),
		CommentsPerPR:    summarizeSamples(perPR),
		CrossTeamShare:   ratio(m.crossTeamReviews, classified),
	}
}
