package metrics

import (
	"sort"
	"sync"
	"time"
)

// AccumulatorSet groups the five metric bags attached to every entity level.
// Each bag synchronizes independently; the set itself adds no locking.
type AccumulatorSet struct {
	Code          CodeMetrics
	Review        ReviewMetrics
	Time          TimeMetrics
	Collaboration CollaborationMetrics
	Bottleneck    BottleneckMetrics
}

// Merge folds another set into this one, bag by bag.
func (s *AccumulatorSet) Merge(other *AccumulatorSet) {
	if other == nil || other == s {
		return
	}
	s.Code.Merge(&other.Code)
	s.Review.Merge(&other.Review)
	s.Time.Merge(&other.Time)
	s.Collaboration.Merge(&other.Collaboration)
	s.Bottleneck.Merge(&other.Bottleneck)
}

// Stats derives the serializable summaries of all five bags.
func (s *AccumulatorSet) Stats(windowDays int) AccumulatorStats {
	return AccumulatorStats{
		Code:          s.Code.Stats(),
		Review:        s.Review.Stats(),
		Time:          s.Time.Stats(windowDays),
		Collaboration: s.Collaboration.Stats(),
		Bottleneck:    s.Bottleneck.Stats(),
	}
}

// AccumulatorStats is the serializable view of one accumulator set.
type AccumulatorStats struct {
	Code          CodeStats          `json:"code"`
	Review        ReviewStats        `json:"review"`
	Time          TimeStats          `json:"time"`
	Collaboration CollaborationStats `json:"collaboration"`
	Bottleneck    BottleneckStats    `json:"bottleneck"`
}

// PRCounters holds running pull request counts. Guarded by the owning
// entity's mutex.
type PRCounters struct {
	Created         int64 `json:"created"`
	Merged          int64 `json:"merged"`
	MergedToDefault int64 `json:"merged_to_default"`
	DirectToDefault int64 `json:"direct_to_default"`
}

func (c *PRCounters) add(other PRCounters) {
	c.Created += other.Created
	c.Merged += other.Merged
	c.MergedToDefault += other.MergedToDefault
	c.DirectToDefault += other.DirectToDefault
}

// record counts one pull request event. A merge to the default branch with
// no review on record counts as direct.
func (c *PRCounters) record(ev PullRequestEvent) {
	c.Created++
	if !ev.Merged() {
		return
	}
	c.Merged++
	if ev.TargetsDefault {
		c.MergedToDefault++
		if ev.FirstReviewAt.IsZero() {
			c.DirectToDefault++
		}
	}
}

// Repository is the per-repository aggregate. Created lazily on first
// reference; mutated concurrently by every PR task belonging to it.
type Repository struct {
	Name          string
	DefaultBranch string

	mu           sync.Mutex
	counters     PRCounters
	contributors map[string]struct{}
	teams        map[string]struct{}
	lastUpdated  time.Time

	Accumulators AccumulatorSet
}

func newRepository(name, defaultBranch string) *Repository {
	return &Repository{
		Name:          name,
		DefaultBranch: defaultBranch,
		contributors:  make(map[string]struct{}),
		teams:         make(map[string]struct{}),
	}
}

func (r *Repository) recordPullRequest(ev PullRequestEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.counters.record(ev)
	r.touch(ev.Author, ev.AuthorTeam, latestOf(ev.CreatedAt, ev.MergedAt, ev.ClosedAt))
}

// touch registers a participant and advances the repository's last-updated
// mark. Callers hold r.mu.
func (r *Repository) touch(username, team string, at time.Time) {
	if username != "" {
		r.contributors[username] = struct{}{}
	}
	if team != "" {
		r.teams[team] = struct{}{}
	}
	if at.After(r.lastUpdated) {
		r.lastUpdated = at
	}
}

func (r *Repository) recordParticipant(username, team string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.touch(username, team, at)
}

// Counters returns a copy of the repository's PR counters.
func (r *Repository) Counters() PRCounters {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters
}

// Contributors returns a copy of the contributor set.
func (r *Repository) Contributors() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return sortedKeys(r.contributors)
}

// Teams returns a copy of the involved team set.
func (r *Repository) Teams() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return sortedKeys(r.teams)
}

// LastUpdated returns the latest activity timestamp seen for the repository.
func (r *Repository) LastUpdated() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastUpdated
}

// User is the per-contributor aggregate. One instance per username is
// shared across every level the user participates in.
type User struct {
	Username string
	Team     string
	Role     string

	mu       sync.Mutex
	counters PRCounters

	Accumulators AccumulatorSet
}

func (u *User) recordPullRequest(ev PullRequestEvent) {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.counters.record(ev)
}

// Counters returns a copy of the user's PR counters.
func (u *User) Counters() PRCounters {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.counters
}

// Organization is the root aggregate for one run. The repository and user
// maps are guarded by a map-level mutex distinct from the per-accumulator
// locks; get-or-create is a single atomic insert-if-absent operation.
type Organization struct {
	Name string

	mu           sync.Mutex
	repositories map[string]*Repository
	users        map[string]*User
	teams        map[string][]string
	teamByUser   map[string]string

	counters     PRCounters
	Accumulators AccumulatorSet

	finalized   bool
	window      Window
	generatedAt time.Time
}

// NewOrganization creates the root aggregate for one run.
func NewOrganization(name string) *Organization {
	return &Organization{
		Name:         name,
		repositories: make(map[string]*Repository),
		users:        make(map[string]*User),
		teams:        make(map[string][]string),
		teamByUser:   make(map[string]string),
	}
}

// SetTeams installs the team membership map before collection starts. The
// map is treated as read-only for the rest of the run.
func (o *Organization) SetTeams(teams map[string][]string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.teams = make(map[string][]string, len(teams))
	o.teamByUser = make(map[string]string)
	for team, members := range teams {
		o.teams[team] = append([]string(nil), members...)
		for _, member := range members {
			if _, seen := o.teamByUser[member]; !seen {
				o.teamByUser[member] = team
			}
		}
	}
}

// TeamOf returns the team a username belongs to, or "" when unknown.
func (o *Organization) TeamOf(username string) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.teamByUser[username]
}

// GetOrCreateRepository returns the repository entity for name, creating it
// on first reference. Concurrent callers always observe the same instance.
func (o *Organization) GetOrCreateRepository(name, defaultBranch string) *Repository {
	o.mu.Lock()
	defer o.mu.Unlock()

	if repo, ok := o.repositories[name]; ok {
		return repo
	}
	repo := newRepository(name, defaultBranch)
	o.repositories[name] = repo
	return repo
}

// GetOrCreateUser returns the user entity for username, creating it on
// first sight as author, reviewer, or commenter. Concurrent callers always
// observe the same instance.
func (o *Organization) GetOrCreateUser(username string) *User {
	o.mu.Lock()
	defer o.mu.Unlock()

	if user, ok := o.users[username]; ok {
		return user
	}
	user := &User{
		Username: username,
		Team:     o.teamByUser[username],
	}
	o.users[username] = user
	return user
}

// Repositories returns a stable-ordered copy of the repository map entries.
func (o *Organization) Repositories() []*Repository {
	o.mu.Lock()
	defer o.mu.Unlock()

	names := make([]string, 0, len(o.repositories))
	for name := range o.repositories {
		names = append(names, name)
	}
	sort.Strings(names)
	repos := make([]*Repository, 0, len(names))
	for _, name := range names {
		repos = append(repos, o.repositories[name])
	}
	return repos
}

// Users returns a stable-ordered copy of the user map entries.
func (o *Organization) Users() []*User {
	o.mu.Lock()
	defer o.mu.Unlock()

	names := make([]string, 0, len(o.users))
	for name := range o.users {
		names = append(names, name)
	}
	sort.Strings(names)
	users := make([]*User, 0, len(names))
	for _, name := range names {
		users = append(users, o.users[name])
	}
	return users
}

// Counters returns a copy of the organization's PR counters. Populated by
// rollup; zero before Finalize.
func (o *Organization) Counters() PRCounters {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.counters
}

func latestOf(times ...time.Time) time.Time {
	latest := time.Time{}
	for _, ts := range times {
		if ts.After(latest) {
			latest = ts
		}
	}
	return latest
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
