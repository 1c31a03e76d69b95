package metrics

import "sync"

// CodeMetrics accumulates code change volume and quality signals. The zero
// value is ready to use; all methods are safe for concurrent use.
type CodeMetrics struct {
	mu sync.Mutex

	changeSizeSamples   []float64
	filesChangedSamples []float64
	commitCountSamples  []float64
	totalAdditions      int64
	totalDeletions      int64
	reverts             int64
	hotfixes            int64
	commitsObserved     int64
}

// ApplyPullRequest folds one pull request's change volume into the bag.
func (m *CodeMetrics) ApplyPullRequest(ev PullRequestEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.changeSizeSamples = append(m.changeSizeSamples, float64(ev.Additions+ev.Deletions))
	m.filesChangedSamples = append(m.filesChangedSamples, float64(ev.ChangedFiles))
	m.commitCountSamples = append(m.commitCountSamples, float64(ev.CommitCount))
	m.totalAdditions += int64(ev.Additions)
	m.totalDeletions += int64(ev.Deletions)
	if ev.Revert {
		m.reverts++
	}
	if ev.Hotfix {
		m.hotfixes++
	}
}

// ApplyCommit counts one observed pull request commit.
func (m *CodeMetrics) ApplyCommit(_ CommitObservation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commitsObserved++
}

// Merge folds another fully-populated bag into this one.
func (m *CodeMetrics) Merge(other *CodeMetrics) {
	if other == nil || other == m {
		return
	}

	other.mu.Lock()
	changeSizes := append([]float64(nil), other.changeSizeSamples...)
	filesChanged := append([]float64(nil), other.filesChangedSamples...)
	commitCounts := append([]float64(nil), other.commitCountSamples...)
	additions := other.totalAdditions
	deletions := other.totalDeletions
	reverts := other.reverts
	hotfixes := other.hotfixes
	commits := other.commitsObserved
	other.mu.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.changeSizeSamples = append(m.changeSizeSamples, changeSizes...)
	m.filesChangedSamples = append(m.filesChangedSamples, filesChanged...)
	m.commitCountSamples = append(m.commitCountSamples, commitCounts...)
	m.totalAdditions += additions
	m.totalDeletions += deletions
	m.reverts += reverts
	m.hotfixes += hotfixes
	m.commitsObserved += commits
}

// CodeStats is the derived, serializable view of CodeMetrics.
type CodeStats struct {
	ChangeSize      SampleStats `json:"change_size"`
	FilesChanged    SampleStats `json:"files_changed"`
	CommitsPerPR    SampleStats `json:"commits_per_pr"`
	TotalAdditions  int64       `json:"total_additions"`
	TotalDeletions  int64       `json:"total_deletions"`
	Reverts         int64       `json:"reverts"`
	Hotfixes        int64       `json:"hotfixes"`
	CommitsObserved int64       `json:"commits_observed"`
}

// Stats derives the serializable summary from the raw counters.
func (m *CodeMetrics) Stats() CodeStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	return CodeStats{
		ChangeSize:      summarizeSamples(m.changeSizeSamples),
		FilesChanged:    summarizeSamples(m.filesChangedSamples),
		CommitsPerPR:    summarizeSamples(m.commitCountSamples),
		TotalAdditions:  m.totalAdditions,
		TotalDeletions:  m.totalDeletions,
		Reverts:         m.reverts,
		Hotfixes:        m.hotfixes,
		CommitsObserved: m.commitsObserved,
	}
}
