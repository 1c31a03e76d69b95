package collect

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/wellcode-ai/wellcode-cli/internal/githubapi"
	"github.com/wellcode-ai/wellcode-cli/internal/metrics"
)

const (
	defaultRepoWorkers        = 8
	defaultPRWorkers          = 4
	defaultSubresourceWorkers = 6
	defaultPRBatchSize        = 50
)

// GitHubData is the slice of the typed data client the collector consumes.
type GitHubData interface {
	ListOrgRepos(ctx context.Context, org string) (githubapi.OrgReposResult, error)
	ListRepoPullRequestsWindow(ctx context.Context, owner, repo string, since, until time.Time) (githubapi.PullRequestListResult, error)
	GetPullRequest(ctx context.Context, owner, repo string, pullNumber int) (githubapi.PullRequestDetail, error)
	ListPullReviews(ctx context.Context, owner, repo string, pullNumber int) (githubapi.PullReviewsResult, error)
	ListPullReviewComments(ctx context.Context, owner, repo string, pullNumber int) (githubapi.PullCommentsResult, error)
	ListPullIssueComments(ctx context.Context, owner, repo string, pullNumber int) (githubapi.PullCommentsResult, error)
	ListPullCommits(ctx context.Context, owner, repo string, pullNumber int) (githubapi.PullCommitsResult, error)
}

// Options configures one collection run.
type Options struct {
	Org    string
	Window metrics.Window

	RepoWorkers        int
	PRWorkers          int
	SubresourceWorkers int
	PRBatchSize        int

	StaleThreshold       time.Duration
	LongRunningThreshold time.Duration

	// AuthorFilter restricts processing to one PR author; TeamFilter to
	// authors belonging to one team from Teams.
	AuthorFilter string
	TeamFilter   string
	Teams        map[string][]string
}

func (o *Options) applyDefaults() {
	if o.RepoWorkers <= 0 {
		o.RepoWorkers = defaultRepoWorkers
	}
	if o.PRWorkers <= 0 {
		o.PRWorkers = defaultPRWorkers
	}
	if o.SubresourceWorkers <= 0 {
		o.SubresourceWorkers = defaultSubresourceWorkers
	}
	if o.PRBatchSize <= 0 {
		o.PRBatchSize = defaultPRBatchSize
	}
}

// RunReport counts the run's partial failures and request volume.
type RunReport struct {
	ReposDiscovered   atomic.Int64
	ReposProcessed    atomic.Int64
	ReposFailed       atomic.Int64
	PRsProcessed      atomic.Int64
	PRsFailed         atomic.Int64
	SubresourceMisses atomic.Int64
	Requests          atomic.Int64
}

// Summary flattens the report for the snapshot artifact.
func (r *RunReport) Summary() metrics.RunSummary {
	return metrics.RunSummary{
		ReposDiscovered:   r.ReposDiscovered.Load(),
		ReposProcessed:    r.ReposProcessed.Load(),
		ReposFailed:       r.ReposFailed.Load(),
		PRsProcessed:      r.PRsProcessed.Load(),
		PRsFailed:         r.PRsFailed.Load(),
		SubresourceMisses: r.SubresourceMisses.Load(),
		Requests:          r.Requests.Load(),
	}
}

// Result is one completed run: the accumulated organization plus the run
// report. A completed run always yields a best-effort organization even
// when some repositories or PRs failed.
type Result struct {
	Org    *metrics.Organization
	Report metrics.RunSummary
}

// Collector fans collection work out across three bounded tiers:
// repositories, pull requests in fixed-size batches, and per-PR
// sub-resource fetches.
type Collector struct {
	log  *zap.Logger
	data GitHubData
	ops  *OpsMetrics

	// Now is injected for tests.
	Now func() time.Time
}

// NewCollector creates a collector. ops may be nil.
func NewCollector(log *zap.Logger, data GitHubData, ops *OpsMetrics) *Collector {
	if log == nil {
		log = zap.NewNop()
	}
	return &Collector{
		log:  log,
		data: data,
		ops:  ops,
		Now:  time.Now,
	}
}

// Run executes one full collection: repo fan-out, per-repo PR batching,
// per-PR sub-resource fan-out, all events folded through the recorder. A
// repository or PR failure is logged and counted without stopping siblings;
// only an authentication failure or an org-root failure aborts the run.
func (c *Collector) Run(ctx context.Context, opts Options) (*Result, error) {
	if strings.TrimSpace(opts.Org) == "" {
		return nil, fmt.Errorf("organization is required")
	}
	opts.applyDefaults()

	org := metrics.NewOrganization(opts.Org)
	org.SetTeams(opts.Teams)
	recorder := metrics.NewRecorder(org)
	report := &RunReport{}

	reposResult, err := c.data.ListOrgRepos(ctx, opts.Org)
	c.observe("org.repos", string(reposResult.Status), reposResult.Metadata)
	report.Requests.Add(int64(reposResult.Metadata.Attempts))
	if err != nil {
		return nil, fmt.Errorf("resolve organization %q: %w", opts.Org, err)
	}
	if reposResult.Status != githubapi.EndpointStatusOK {
		return nil, fmt.Errorf("resolve organization %q: repository listing returned %s", opts.Org, reposResult.Status)
	}

	repos := make([]githubapi.Repository, 0, len(reposResult.Repos))
	for _, repo := range reposResult.Repos {
		if repo.Archived || repo.Disabled || repo.Fork {
			continue
		}
		repos = append(repos, repo)
	}
	report.ReposDiscovered.Store(int64(len(repos)))

	subSem := semaphore.NewWeighted(int64(opts.SubresourceWorkers))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(opts.RepoWorkers)
	for _, repo := range repos {
		group.Go(func() error {
			return c.processRepo(groupCtx, opts, repo, org, recorder, report, subSem)
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	return &Result{Org: org, Report: report.Summary()}, nil
}

// processRepo handles one repository: PR listing, filtering, then batched
// PR fan-out. Returns a non-nil error only for run-fatal failures.
func (c *Collector) processRepo(
	ctx context.Context,
	opts Options,
	repo githubapi.Repository,
	org *metrics.Organization,
	recorder *metrics.Recorder,
	report *RunReport,
	subSem *semaphore.Weighted,
) error {
	log := c.log.With(zap.String("repo", repo.Name))

	listResult, err := c.data.ListRepoPullRequestsWindow(ctx, opts.Org, repo.Name, opts.Window.Start, opts.Window.End)
	c.observe("repo.pulls", string(listResult.Status), listResult.Metadata)
	report.Requests.Add(int64(listResult.Metadata.Attempts))
	if err != nil {
		if errors.Is(err, githubapi.ErrAuthentication) {
			return err
		}
		log.Warn("repository pull request listing failed, skipping repository", zap.Error(err))
		report.ReposFailed.Add(1)
		c.ops.ObserveRepoFailure()
		return nil
	}
	if listResult.Status != githubapi.EndpointStatusOK {
		log.Warn("repository pull request listing degraded, skipping repository",
			zap.String("status", string(listResult.Status)))
		report.ReposFailed.Add(1)
		c.ops.ObserveRepoFailure()
		return nil
	}

	org.GetOrCreateRepository(repo.Name, repo.DefaultBranch)

	pulls := c.filterPulls(listResult.PullRequests, opts)
	log.Debug("repository pull requests selected",
		zap.Int("listed", len(listResult.PullRequests)),
		zap.Int("selected", len(pulls)))

	for start := 0; start < len(pulls); start += opts.PRBatchSize {
		end := start + opts.PRBatchSize
		if end > len(pulls) {
			end = len(pulls)
		}

		// Each batch joins fully before the next one is submitted,
		// bounding in-flight sub-tasks per repository.
		batch, batchCtx := errgroup.WithContext(ctx)
		batch.SetLimit(opts.PRWorkers)
		for _, pull := range pulls[start:end] {
			batch.Go(func() error {
				return c.processPull(batchCtx, opts, repo, pull, recorder, report, subSem)
			})
		}
		if err := batch.Wait(); err != nil {
			return err
		}
	}

	report.ReposProcessed.Add(1)
	return nil
}

func (c *Collector) filterPulls(pulls []githubapi.PullRequest, opts Options) []githubapi.PullRequest {
	author := strings.TrimSpace(opts.AuthorFilter)
	var teamMembers map[string]struct{}
	if team := strings.TrimSpace(opts.TeamFilter); team != "" {
		teamMembers = make(map[string]struct{})
		for _, member := range opts.Teams[team] {
			teamMembers[member] = struct{}{}
		}
	}
	if author == "" && teamMembers == nil {
		return pulls
	}

	selected := make([]githubapi.PullRequest, 0, len(pulls))
	for _, pull := range pulls {
		if author != "" && pull.User != author {
			continue
		}
		if teamMembers != nil {
			if _, ok := teamMembers[pull.User]; !ok {
				continue
			}
		}
		selected = append(selected, pull)
	}
	return selected
}

// pullData is the joined output of one PR's concurrent sub-resource fetches.
type pullData struct {
	detail    githubapi.PullRequestDetail
	detailErr error

	reviews    githubapi.PullReviewsResult
	reviewsErr error

	reviewComments    githubapi.PullCommentsResult
	reviewCommentsErr error

	issueComments    githubapi.PullCommentsResult
	issueCommentsErr error

	commits    githubapi.PullCommitsResult
	commitsErr error
}

func (d *pullData) firstAuthError() error {
	for _, err := range []error{d.detailErr, d.reviewsErr, d.reviewCommentsErr, d.issueCommentsErr, d.commitsErr} {
		if err != nil && errors.Is(err, githubapi.ErrAuthentication) {
			return err
		}
	}
	return nil
}

// processPull handles one pull request: concurrent sub-resource fetches and
// event recording. Failures are absorbed here except authentication.
func (c *Collector) processPull(
	ctx context.Context,
	opts Options,
	repo githubapi.Repository,
	pull githubapi.PullRequest,
	recorder *metrics.Recorder,
	report *RunReport,
	subSem *semaphore.Weighted,
) error {
	log := c.log.With(zap.String("repo", repo.Name), zap.Int("pr", pull.Number))

	data := c.fetchPullData(ctx, opts, repo.Name, pull.Number, subSem, report)
	if err := data.firstAuthError(); err != nil {
		return err
	}

	if data.detailErr != nil || data.detail.Status != githubapi.EndpointStatusOK {
		if data.detailErr != nil {
			log.Warn("pull request detail fetch failed, skipping pull request", zap.Error(data.detailErr))
		} else {
			log.Warn("pull request detail fetch degraded, skipping pull request",
				zap.String("status", string(data.detail.Status)))
		}
		report.PRsFailed.Add(1)
		c.ops.ObservePRFailure()
		return nil
	}

	reviews := c.usableReviews(data, log, report)
	now := c.Now()

	prEvent := buildPullRequestEvent(opts, repo, pull, data, reviews, now)
	recorder.RecordPullRequest(prEvent)

	for _, review := range reviews {
		recorder.RecordReview(metrics.ReviewEvent{
			Repo:         repo.Name,
			Number:       pull.Number,
			PRAuthor:     pull.User,
			PRAuthorTeam: teamOf(opts.Teams, pull.User),
			PRCreatedAt:  pull.CreatedAt,
			Reviewer:     review.User,
			ReviewerTeam: teamOf(opts.Teams, review.User),
			State:        metrics.ReviewState(review.State),
			HasBody:      review.HasBody,
			SubmittedAt:  review.SubmittedAt,
			Delayed:      isDelayed(pull.CreatedAt, review.SubmittedAt, opts.StaleThreshold),
		})
	}

	c.recordComments(repo.Name, pull, data, recorder, log, report)

	if data.commitsErr != nil || data.commits.Status != githubapi.EndpointStatusOK {
		logSubresourceMiss(log, "commits", data.commitsErr, data.commits.Status)
		report.SubresourceMisses.Add(1)
	} else {
		for _, commit := range data.commits.Commits {
			recorder.RecordCommit(metrics.CommitObservation{
				Repo:       repo.Name,
				Number:     pull.Number,
				Author:     commit.Author,
				AuthoredAt: commit.AuthoredAt,
			})
		}
	}

	report.PRsProcessed.Add(1)
	return nil
}

func (c *Collector) usableReviews(data *pullData, log *zap.Logger, report *RunReport) []githubapi.PullReview {
	if data.reviewsErr != nil || data.reviews.Status != githubapi.EndpointStatusOK {
		logSubresourceMiss(log, "reviews", data.reviewsErr, data.reviews.Status)
		report.SubresourceMisses.Add(1)
		return nil
	}
	return data.reviews.Reviews
}

func (c *Collector) recordComments(
	repoName string,
	pull githubapi.PullRequest,
	data *pullData,
	recorder *metrics.Recorder,
	log *zap.Logger,
	report *RunReport,
) {
	record := func(result githubapi.PullCommentsResult, err error, kind string) {
		if err != nil || result.Status != githubapi.EndpointStatusOK {
			logSubresourceMiss(log, kind, err, result.Status)
			report.SubresourceMisses.Add(1)
			return
		}
		for _, comment := range result.Comments {
			recorder.RecordComment(metrics.CommentEvent{
				Repo:      repoName,
				Number:    pull.Number,
				PRAuthor:  pull.User,
				Commenter: comment.User,
				CreatedAt: comment.CreatedAt,
			})
		}
	}

	record(data.reviewComments, data.reviewCommentsErr, "review comments")
	record(data.issueComments, data.issueCommentsErr, "issue comments")
}

// fetchPullData runs the five sub-resource fetches concurrently under the
// sub-resource worker bound.
func (c *Collector) fetchPullData(
	ctx context.Context,
	opts Options,
	repoName string,
	pullNumber int,
	subSem *semaphore.Weighted,
	report *RunReport,
) *pullData {
	data := &pullData{}
	var wg sync.WaitGroup

	fetch := func(run func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := subSem.Acquire(ctx, 1); err != nil {
				return
			}
			defer subSem.Release(1)
			run()
		}()
	}

	fetch(func() {
		data.detail, data.detailErr = c.data.GetPullRequest(ctx, opts.Org, repoName, pullNumber)
		c.observe("pull.detail", string(data.detail.Status), data.detail.Metadata)
		report.Requests.Add(int64(data.detail.Metadata.Attempts))
	})
	fetch(func() {
		data.reviews, data.reviewsErr = c.data.ListPullReviews(ctx, opts.Org, repoName, pullNumber)
		c.observe("pull.reviews", string(data.reviews.Status), data.reviews.Metadata)
		report.Requests.Add(int64(data.reviews.Metadata.Attempts))
	})
	fetch(func() {
		data.reviewComments, data.reviewCommentsErr = c.data.ListPullReviewComments(ctx, opts.Org, repoName, pullNumber)
		c.observe("pull.review_comments", string(data.reviewComments.Status), data.reviewComments.Metadata)
		report.Requests.Add(int64(data.reviewComments.Metadata.Attempts))
	})
	fetch(func() {
		data.issueComments, data.issueCommentsErr = c.data.ListPullIssueComments(ctx, opts.Org, repoName, pullNumber)
		c.observe("pull.issue_comments", string(data.issueComments.Status), data.issueComments.Metadata)
		report.Requests.Add(int64(data.issueComments.Metadata.Attempts))
	})
	fetch(func() {
		data.commits, data.commitsErr = c.data.ListPullCommits(ctx, opts.Org, repoName, pullNumber)
		c.observe("pull.commits", string(data.commits.Status), data.commits.Metadata)
		report.Requests.Add(int64(data.commits.Metadata.Attempts))
	})

	wg.Wait()
	return data
}

func buildPullRequestEvent(
	opts Options,
	repo githubapi.Repository,
	pull githubapi.PullRequest,
	data *pullData,
	reviews []githubapi.PullReview,
	now time.Time,
) metrics.PullRequestEvent {
	firstReviewAt := time.Time{}
	reviewCycles := 0
	for _, review := range reviews {
		if review.SubmittedAt.IsZero() {
			continue
		}
		if review.User != "" && review.User != pull.User {
			if firstReviewAt.IsZero() || review.SubmittedAt.Before(firstReviewAt) {
				firstReviewAt = review.SubmittedAt
			}
		}
		if metrics.ReviewState(review.State) == metrics.ReviewStateChangesRequested {
			reviewCycles++
		}
	}

	firstCommitAt := time.Time{}
	if data.commitsErr == nil && data.commits.Status == githubapi.EndpointStatusOK {
		for _, commit := range data.commits.Commits {
			if commit.AuthoredAt.IsZero() {
				continue
			}
			if firstCommitAt.IsZero() || commit.AuthoredAt.Before(firstCommitAt) {
				firstCommitAt = commit.AuthoredAt
			}
		}
	}

	open := pull.MergedAt.IsZero() && pull.ClosedAt.IsZero()
	age := now.Sub(pull.CreatedAt)

	return metrics.PullRequestEvent{
		Repo:           repo.Name,
		Number:         pull.Number,
		Author:         pull.User,
		AuthorTeam:     teamOf(opts.Teams, pull.User),
		Draft:          pull.Draft,
		CreatedAt:      pull.CreatedAt,
		MergedAt:       pull.MergedAt,
		ClosedAt:       pull.ClosedAt,
		TargetsDefault: repo.DefaultBranch != "" && pull.BaseRef == repo.DefaultBranch,
		MergedBy:       data.detail.MergedBy,
		Additions:      data.detail.Additions,
		Deletions:      data.detail.Deletions,
		ChangedFiles:   data.detail.ChangedFiles,
		CommitCount:    data.detail.Commits,
		Revert:         isRevert(pull.Title),
		Hotfix:         isHotfix(pull.Labels, pull.HeadRef),
		FirstReviewAt:  firstReviewAt,
		FirstCommitAt:  firstCommitAt,
		ReviewCycles:   reviewCycles,
		Stale:          open && opts.StaleThreshold > 0 && age > opts.StaleThreshold,
		LongRunning:    open && opts.LongRunningThreshold > 0 && age > opts.LongRunningThreshold,
	}
}

func isRevert(title string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(title)), "revert")
}

func isHotfix(labels []string, headRef string) bool {
	for _, label := range labels {
		if strings.Contains(strings.ToLower(label), "hotfix") {
			return true
		}
	}
	return strings.HasPrefix(strings.ToLower(headRef), "hotfix")
}

func isDelayed(createdAt, submittedAt time.Time, threshold time.Duration) bool {
	if threshold <= 0 || submittedAt.IsZero() || !submittedAt.After(createdAt) {
		return false
	}
	return submittedAt.Sub(createdAt) > threshold
}

func teamOf(teams map[string][]string, username string) string {
	if username == "" {
		return ""
	}
	for team, members := range teams {
		for _, member := range members {
			if member == username {
				return team
			}
		}
	}
	return ""
}

func logSubresourceMiss(log *zap.Logger, kind string, err error, status githubapi.EndpointStatus) {
	if err != nil {
		log.Warn("pull request subresource fetch failed, derived metrics omitted",
			zap.String("subresource", kind), zap.Error(err))
		return
	}
	log.Warn("pull request subresource fetch degraded, derived metrics omitted",
		zap.String("subresource", kind), zap.String("status", string(status)))
}

func (c *Collector) observe(endpoint, status string, metadata githubapi.CallMetadata) {
	c.ops.ObserveCall(endpoint, status, metadata.Attempts, metadata.RateLimitWaits)
}
