package metrics

import (
	"sync"
	"time"
)

// TimeMetrics accumulates delivery latency. The zero value is ready to use;
// all methods are safe for concurrent use.
type TimeMetrics struct {
	mu sync.Mutex

	mergeTimeSamples   []time.Duration
	leadTimeSamples    []time.Duration
	businessHoursMerge int64
	afterHoursMerge    int64
	weekendMerge       int64
	mergedToDefault    int64
}

// ApplyPullRequest folds one pull request's latency facts into the bag.
// Lead time is recorded only when the first commit time is known; a missing
// commit list omits the sample rather than estimating it.
func (m *TimeMetrics) ApplyPullRequest(ev PullRequestEvent) {
	if !ev.Merged() {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if ev.MergedAt.After(ev.CreatedAt) {
		m.mergeTimeSamples = append(m.mergeTimeSamples, ev.MergedAt.Sub(ev.CreatedAt))
	}
	if !ev.FirstCommitAt.IsZero() && ev.MergedAt.After(ev.FirstCommitAt) {
		m.leadTimeSamples = append(m.leadTimeSamples, ev.MergedAt.Sub(ev.FirstCommitAt))
	}
	switch mergeBucket(ev.MergedAt) {
	case mergeBucketBusinessHours:
		m.businessHoursMerge++
	case mergeBucketAfterHours:
		m.afterHoursMerge++
	case mergeBucketWeekend:
		m.weekendMerge++
	}
	if ev.TargetsDefault {
		m.mergedToDefault++
	}
}

type mergeTimeBucket int

const (
	mergeBucketBusinessHours mergeTimeBucket = iota
	mergeBucketAfterHours
	mergeBucketWeekend
)

// mergeBucket classifies a merge timestamp: weekday 09:00-16:59 is business
// hours, Saturday and Sunday are weekend, everything else is after hours.
func mergeBucket(mergedAt time.Time) mergeTimeBucket {
	switch mergedAt.Weekday() {
	case time.Saturday, time.Sunday:
		return mergeBucketWeekend
	}
	hour := mergedAt.Hour()
	if hour >= 9 && hour < 17 {
		return mergeBucketBusinessHours
	}
	return mergeBucketAfterHours
}

// Merge folds another fully-populated bag into this one.
func (m *TimeMetrics) Merge(other *TimeMetrics) {
	if other == nil || other == m {
		return
	}

	other.mu.Lock()
	mergeTimes := append([]time.Duration(nil), other.mergeTimeSamples...)
	leadTimes := append([]time.Duration(nil), other.leadTimeSamples...)
	business := other.businessHoursMerge
	after := other.afterHoursMerge
	weekend := other.weekendMerge
	toDefault := other.mergedToDefault
	other.mu.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.mergeTimeSamples = append(m.mergeTimeSamples, mergeTimes...)
	m.leadTimeSamples = append(m.leadTimeSamples, leadTimes...)
	m.businessHoursMerge += business
	m.afterHoursMerge += after
	m.weekendMerge += weekend
	m.mergedToDefault += toDefault
}

// TimeStats is the derived, serializable view of TimeMetrics. Deployment
// frequency is derived on demand from merged-to-default over the window
// length; it is never stored as a partial sum.
type TimeStats struct {
	TimeToMerge         DurationStats `json:"time_to_merge"`
	LeadTime            DurationStats `json:"lead_time"`
	BusinessHoursMerges int64         `json:"business_hours_merges"`
	AfterHoursMerges    int64         `json:"after_hours_merges"`
	WeekendMerges       int64         `json:"weekend_merges"`
	MergedToDefault     int64         `json:"merged_to_default"`
	DeploymentFrequency float64       `json:"deployment_frequency_per_day"`
}

// Stats derives the serializable summary from the raw counters. windowDays
// below one is clamped to one, matching the source behavior the rate was
// defined with.
func (m *TimeMetrics) Stats(windowDays int) TimeStats {
	if windowDays < 1 {
		windowDays = 1
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	return TimeStats{
		TimeToMerge:         summarizeDurations(m.mergeTimeSamples),
		LeadTime:            summarizeDurations(m.leadTimeSamples),
		BusinessHoursMerges: m.businessHoursMerge,
		AfterHoursMerges:    m.afterHoursMerge,
		WeekendMerges:       m.weekendMerge,
		MergedToDefault:     m.mergedToDefault,
		DeploymentFrequency: float64(m.mergedToDefault) / float64(windowDays),
	}
}
