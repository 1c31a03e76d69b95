package metrics

import (
	"errors"
	"time"
)

// ErrNotFinalized reports a snapshot attempt before rollup.
var ErrNotFinalized = errors.New("organization not finalized")

// RunSummary carries the run's failure counters into the snapshot so
// callers can tell "finished with gaps" from a clean run.
type RunSummary struct {
	ReposDiscovered   int64 `json:"repos_discovered"`
	ReposProcessed    int64 `json:"repos_processed"`
	ReposFailed       int64 `json:"repos_failed"`
	PRsProcessed      int64 `json:"prs_processed"`
	PRsFailed         int64 `json:"prs_failed"`
	SubresourceMisses int64 `json:"subresource_misses"`
	Requests          int64 `json:"requests"`
}

// Degraded reports whether the run finished with gaps.
func (s RunSummary) Degraded() bool {
	return s.ReposFailed > 0 || s.PRsFailed > 0 || s.SubresourceMisses > 0
}

// RepositorySnapshot is the serializable view of one repository.
type RepositorySnapshot struct {
	Name          string           `json:"name"`
	DefaultBranch string           `json:"default_branch,omitempty"`
	Counters      PRCounters       `json:"counters"`
	Contributors  []string         `json:"contributors,omitempty"`
	Teams         []string         `json:"teams,omitempty"`
	LastUpdated   time.Time        `json:"last_updated,omitzero"`
	Metrics       AccumulatorStats `json:"metrics"`
}

// UserSnapshot is the serializable view of one contributor.
type UserSnapshot struct {
	Username string           `json:"username"`
	Team     string           `json:"team,omitempty"`
	Role     string           `json:"role,omitempty"`
	Counters PRCounters       `json:"counters"`
	Metrics  AccumulatorStats `json:"metrics"`
}

// Snapshot is the finalized, serializable organization artifact. It is the
// sole hand-off point to reporting collaborators.
type Snapshot struct {
	Organization string                        `json:"organization"`
	Window       Window                        `json:"window"`
	GeneratedAt  time.Time                     `json:"generated_at"`
	Counters     PRCounters                    `json:"counters"`
	Derived      DerivedStats                  `json:"derived"`
	Metrics      AccumulatorStats              `json:"metrics"`
	Repositories map[string]RepositorySnapshot `json:"repositories"`
	Users        map[string]UserSnapshot       `json:"users"`
	Teams        map[string][]string           `json:"teams,omitempty"`
	Run          RunSummary                    `json:"run"`
}

// Snapshot builds the serializable artifact from a finalized organization.
func (o *Organization) Snapshot(run RunSummary) (Snapshot, error) {
	if !o.Finalized() {
		return Snapshot{}, ErrNotFinalized
	}

	window := o.Window()
	windowDays := window.Days()

	repositories := make(map[string]RepositorySnapshot)
	for _, repo := range o.Repositories() {
		repositories[repo.Name] = RepositorySnapshot{
			Name:          repo.Name,
			DefaultBranch: repo.DefaultBranch,
			Counters:      repo.Counters(),
			Contributors:  repo.Contributors(),
			Teams:         repo.Teams(),
			LastUpdated:   repo.LastUpdated(),
			Metrics:       repo.Accumulators.Stats(windowDays),
		}
	}

	users := make(map[string]UserSnapshot)
	for _, user := range o.Users() {
		users[user.Username] = UserSnapshot{
			Username: user.Username,
			Team:     user.Team,
			Role:     user.Role,
			Counters: user.Counters(),
			Metrics:  user.Accumulators.Stats(windowDays),
		}
	}

	o.mu.Lock()
	teams := make(map[string][]string, len(o.teams))
	for team, members := range o.teams {
		teams[team] = append([]string(nil), members...)
	}
	o.mu.Unlock()

	return Snapshot{
		Organization: o.Name,
		Window:       window,
		GeneratedAt:  o.GeneratedAt(),
		Counters:     o.Counters(),
		Derived:      o.deriveStats(windowDays),
		Metrics:      o.Accumulators.Stats(windowDays),
		Repositories: repositories,
		Users:        users,
		Teams:        teams,
		Run:          run,
	}, nil
}
