package metrics

import (
	"errors"
	"time"
)

// ErrAlreadyFinalized reports a second rollup attempt against the same
// organization. Rolling up twice would double-count every repository.
var ErrAlreadyFinalized = errors.New("organization already finalized")

// Window is the queried time range for one run.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Days returns the window length in whole days, at least one.
func (w Window) Days() int {
	if w.End.Before(w.Start) || w.Start.IsZero() || w.End.IsZero() {
		return 1
	}
	days := int(w.End.Sub(w.Start).Hours() / 24)
	if days < 1 {
		return 1
	}
	return days
}

// Finalize rolls every repository's accumulators and PR counters up into
// the organization's. It runs single-threaded after the fan-in barrier and
// marks the organization finalized; a second call returns
// ErrAlreadyFinalized without touching any counter.
func (o *Organization) Finalize(window Window, now time.Time) error {
	o.mu.Lock()
	if o.finalized {
		o.mu.Unlock()
		return ErrAlreadyFinalized
	}
	o.finalized = true
	o.window = window
	o.generatedAt = now.UTC()

	repositories := make([]*Repository, 0, len(o.repositories))
	for _, repo := range o.repositories {
		repositories = append(repositories, repo)
	}
	o.mu.Unlock()

	for _, repo := range repositories {
		o.Accumulators.Merge(&repo.Accumulators)
		counters := repo.Counters()
		o.mu.Lock()
		o.counters.add(counters)
		o.mu.Unlock()
	}
	return nil
}

// Finalized reports whether rollup has run.
func (o *Organization) Finalized() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.finalized
}

// Window returns the window stamped at rollup.
func (o *Organization) Window() Window {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.window
}

// GeneratedAt returns the rollup timestamp.
func (o *Organization) GeneratedAt() time.Time {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.generatedAt
}

// DerivedStats are the organization-wide summary figures computed at
// snapshot time from raw counters.
type DerivedStats struct {
	CompletionRate      float64          `json:"completion_rate"`
	MergeToDefaultRate  float64          `json:"merge_to_default_rate"`
	TimeToMerge         DurationStats    `json:"time_to_merge"`
	LeadTime            DurationStats    `json:"lead_time"`
	TimeToFirstReview   DurationStats    `json:"time_to_first_review"`
	DeploymentFrequency float64          `json:"deployment_frequency_per_day"`
	TopBottleneckUsers  []BottleneckUser `json:"top_bottleneck_users"`
}

// topBottleneckUsersN bounds the delayed-reviewer leaderboard.
const topBottleneckUsersN = 5

func (o *Organization) deriveStats(windowDays int) DerivedStats {
	counters := o.Counters()
	timeStats := o.Accumulators.Time.Stats(windowDays)
	reviewStats := o.Accumulators.Review.Stats()

	return DerivedStats{
		CompletionRate:      ratio(counters.Merged, counters.Created),
		MergeToDefaultRate:  ratio(counters.MergedToDefault, counters.Merged),
		TimeToMerge:         timeStats.TimeToMerge,
		LeadTime:            timeStats.LeadTime,
		TimeToFirstReview:   reviewStats.TimeToFirstReview,
		DeploymentFrequency: timeStats.DeploymentFrequency,
		TopBottleneckUsers:  o.Accumulators.Bottleneck.TopDelayedReviewers(topBottleneckUsersN),
	}
}
