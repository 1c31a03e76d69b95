package githubapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultGitHubAPIBaseURL = "https://api.github.com/"

// EndpointStatus represents a normalized GitHub API endpoint outcome.
type EndpointStatus string

const (
	// EndpointStatusOK indicates a successful response.
	EndpointStatusOK EndpointStatus = "ok"
	// EndpointStatusAccepted indicates GitHub accepted the request and is still computing results.
	EndpointStatusAccepted EndpointStatus = "accepted"
	// EndpointStatusForbidden indicates authorization failure or restricted access.
	EndpointStatusForbidden EndpointStatus = "forbidden"
	// EndpointStatusNotFound indicates the resource does not exist or is hidden.
	EndpointStatusNotFound EndpointStatus = "not_found"
	// EndpointStatusConflict indicates a state conflict.
	EndpointStatusConflict EndpointStatus = "conflict"
	// EndpointStatusUnprocessable indicates request validation/processing failure.
	EndpointStatusUnprocessable EndpointStatus = "unprocessable"
	// EndpointStatusUnavailable indicates a temporary service-side failure.
	EndpointStatusUnavailable EndpointStatus = "unavailable"
	// EndpointStatusUnknown indicates an unclassified non-success status.
	EndpointStatusUnknown EndpointStatus = "unknown"
)

// Repository is one GitHub repository in an organization.
type Repository struct {
	Name          string
	FullName      string
	DefaultBranch string
	Archived      bool
	Disabled      bool
	Fork          bool
}

// OrgReposResult is the typed result for listing organization repositories.
type OrgReposResult struct {
	Status   EndpointStatus
	Repos    []Repository
	Metadata CallMetadata
}

// PullRequest is one pull request summary from the list endpoint.
type PullRequest struct {
	Number    int
	User      string
	Title     string
	Labels    []string
	Draft     bool
	CreatedAt time.Time
	UpdatedAt time.Time
	MergedAt  time.Time
	ClosedAt  time.Time
	BaseRef   string
	HeadRef   string
}

// Merged reports whether this pull request has been merged.
func (pr PullRequest) Merged() bool {
	return !pr.MergedAt.IsZero()
}

// PullRequestListResult is the typed result for listing pull requests in a window.
type PullRequestListResult struct {
	Status       EndpointStatus
	PullRequests []PullRequest
	Metadata     CallMetadata
}

// PullRequestDetail carries the per-PR size fields that the list endpoint
// omits.
type PullRequestDetail struct {
	Status       EndpointStatus
	Number       int
	Additions    int
	Deletions    int
	ChangedFiles int
	Commits      int
	MergedBy     string
	Metadata     CallMetadata
}

// PullReview is one pull request review submission.
type PullReview struct {
	ID          int64
	User        string
	State       string
	HasBody     bool
	SubmittedAt time.Time
}

// PullReviewsResult is the typed result for listing pull reviews.
type PullReviewsResult struct {
	Status   EndpointStatus
	Reviews  []PullReview
	Metadata CallMetadata
}

// PullComment is one review comment or issue comment on a pull request.
type PullComment struct {
	ID        int64
	User      string
	CreatedAt time.Time
}

// PullCommentsResult is the typed result for listing pull request comments.
type PullCommentsResult struct {
	Status   EndpointStatus
	Comments []PullComment
	Metadata CallMetadata
}

// PullCommit is one commit on a pull request.
type PullCommit struct {
	SHA        string
	Author     string
	AuthorName string
	AuthoredAt time.Time
}

// PullCommitsResult is the typed result for listing pull request commits.
type PullCommitsResult struct {
	Status   EndpointStatus
	Commits  []PullCommit
	Metadata CallMetadata
}

// DataClient is a typed GitHub REST data client for the endpoints the
// collector consumes.
type DataClient struct {
	baseURL       *url.URL
	requestClient *Client
}

// NewDataClient creates a typed data client over the generic retry/rate-limit request client.
func NewDataClient(baseURL string, requestClient *Client) (*DataClient, error) {
	if requestClient == nil {
		return nil, fmt.Errorf("request client is required")
	}

	parsed, err := parseAPIBaseURL(baseURL)
	if err != nil {
		return nil, err
	}

	return &DataClient{
		baseURL:       parsed,
		requestClient: requestClient,
	}, nil
}

// ListOrgRepos lists repositories in one GitHub organization with pagination support.
func (c *DataClient) ListOrgRepos(ctx context.Context, org string) (OrgReposResult, error) {
	trimmedOrg := strings.TrimSpace(org)
	if trimmedOrg == "" {
		return OrgReposResult{}, fmt.Errorf("organization is required")
	}

	result := OrgReposResult{
		Status: EndpointStatusOK,
	}
	page := 1
	for {
		reqURL := c.cloneBaseURL()
		reqURL.Path = joinURLPath(reqURL.Path, "orgs", url.PathEscape(trimmedOrg), "repos")
		query := reqURL.Query()
		query.Set("per_page", "100")
		query.Set("page", strconv.Itoa(page))
		query.Set("type", "all")
		reqURL.RawQuery = query.Encode()

		resp, err := c.get(ctx, reqURL, &result.Metadata, "list org repos")
		if err != nil {
			return OrgReposResult{}, err
		}

		status := endpointStatusFromHTTP(resp.StatusCode)
		if status != EndpointStatusOK {
			_ = resp.Body.Close()
			result.Status = status
			return result, nil
		}

		var payload []repositoryPayload
		if err := decodeJSONAndClose(resp, &payload); err != nil {
			return OrgReposResult{}, fmt.Errorf("decode list org repos response: %w", err)
		}

		for _, repo := range payload {
			result.Repos = append(result.Repos, Repository(repo))
		}

		if len(payload) == 0 || !hasNextPage(resp.Header.Get("Link")) {
			break
		}
		page++
	}

	return result, nil
}

// ListRepoPullRequestsWindow lists repository pull requests created in a window.
func (c *DataClient) ListRepoPullRequestsWindow(ctx context.Context, owner, repo string, since, until time.Time) (PullRequestListResult, error) {
	trimmedOwner := strings.TrimSpace(owner)
	trimmedRepo := strings.TrimSpace(repo)
	if trimmedOwner == "" {
		return PullRequestListResult{}, fmt.Errorf("owner is required")
	}
	if trimmedRepo == "" {
		return PullRequestListResult{}, fmt.Errorf("repo is required")
	}
	if !until.IsZero() && !since.IsZero() && until.Before(since) {
		return PullRequestListResult{}, fmt.Errorf("until must not be before since")
	}

	result := PullRequestListResult{
		Status: EndpointStatusOK,
	}
	page := 1
	for {
		reqURL := c.cloneBaseURL()
		reqURL.Path = joinURLPath(reqURL.Path, "repos", url.PathEscape(trimmedOwner), url.PathEscape(trimmedRepo), "pulls")
		query := reqURL.Query()
		query.Set("state", "all")
		query.Set("sort", "created")
		query.Set("direction", "desc")
		query.Set("per_page", "100")
		query.Set("page", strconv.Itoa(page))
		reqURL.RawQuery = query.Encode()

		resp, err := c.get(ctx, reqURL, &result.Metadata, "list pull requests")
		if err != nil {
			return PullRequestListResult{}, err
		}

		status := endpointStatusFromHTTP(resp.StatusCode)
		if status != EndpointStatusOK {
			_ = resp.Body.Close()
			result.Status = status
			return result, nil
		}

		var payload []pullRequestPayload
		if err := decodeJSONAndClose(resp, &payload); err != nil {
			return PullRequestListResult{}, fmt.Errorf("decode list pull requests response: %w", err)
		}

		pageExhaustedWindow := false
		for _, pr := range payload {
			typed := PullRequest{
				Number:    pr.Number,
				Title:     pr.Title,
				Draft:     pr.Draft,
				CreatedAt: parseRFC3339(pr.CreatedAt),
				UpdatedAt: parseRFC3339(pr.UpdatedAt),
				MergedAt:  parseNullableRFC3339(pr.MergedAt),
				ClosedAt:  parseNullableRFC3339(pr.ClosedAt),
				BaseRef:   pr.Base.Ref,
				HeadRef:   pr.Head.Ref,
			}
			if pr.User != nil {
				typed.User = pr.User.Login
			}
			for _, label := range pr.Labels {
				typed.Labels = append(typed.Labels, label.Name)
			}
			if !since.IsZero() && typed.CreatedAt.Before(since) {
				// Sorted by created desc: everything past this point is
				// older than the window.
				pageExhaustedWindow = true
				break
			}
			if !withinWindow(typed.CreatedAt, since, until) {
				continue
			}
			result.PullRequests = append(result.PullRequests, typed)
		}

		if pageExhaustedWindow || len(payload) == 0 || !hasNextPage(resp.Header.Get("Link")) {
			break
		}
		page++
	}

	return result, nil
}

// GetPullRequest reads the per-PR detail with line/file/commit counts.
func (c *DataClient) GetPullRequest(ctx context.Context, owner, repo string, pullNumber int) (PullRequestDetail, error) {
	reqURL, err := c.pullURL(owner, repo, pullNumber)
	if err != nil {
		return PullRequestDetail{}, err
	}

	result := PullRequestDetail{}
	resp, err := c.get(ctx, reqURL, &result.Metadata, "pull request detail")
	if err != nil {
		return PullRequestDetail{}, err
	}

	result.Status = endpointStatusFromHTTP(resp.StatusCode)
	if result.Status != EndpointStatusOK {
		_ = resp.Body.Close()
		return result, nil
	}

	var payload pullRequestDetailPayload
	if err := decodeJSONAndClose(resp, &payload); err != nil {
		return PullRequestDetail{}, fmt.Errorf("decode pull request detail response: %w", err)
	}

	result.Number = payload.Number
	result.Additions = payload.Additions
	result.Deletions = payload.Deletions
	result.ChangedFiles = payload.ChangedFiles
	result.Commits = payload.Commits
	if payload.MergedBy != nil {
		result.MergedBy = payload.MergedBy.Login
	}
	return result, nil
}

// ListPullReviews lists every review submitted on one pull request.
func (c *DataClient) ListPullReviews(ctx context.Context, owner, repo string, pullNumber int) (PullReviewsResult, error) {
	reqURL, err := c.pullURL(owner, repo, pullNumber, "reviews")
	if err != nil {
		return PullReviewsResult{}, err
	}

	result := PullReviewsResult{
		Status: EndpointStatusOK,
	}
	err = c.paginate(ctx, reqURL, &result.Metadata, "list pull reviews", func(resp *http.Response) (bool, error) {
		var payload []pullReviewPayload
		if err := decodeJSONAndClose(resp, &payload); err != nil {
			return false, fmt.Errorf("decode list pull reviews response: %w", err)
		}
		for _, review := range payload {
			typed := PullReview{
				ID:          review.ID,
				State:       review.State,
				HasBody:     strings.TrimSpace(review.Body) != "",
				SubmittedAt: parseNullableRFC3339(review.SubmittedAt),
			}
			if review.User != nil {
				typed.User = review.User.Login
			}
			result.Reviews = append(result.Reviews, typed)
		}
		return len(payload) > 0, nil
	}, &result.Status)
	if err != nil {
		return PullReviewsResult{}, err
	}
	return result, nil
}

// ListPullReviewComments lists inline review comments on one pull request.
func (c *DataClient) ListPullReviewComments(ctx context.Context, owner, repo string, pullNumber int) (PullCommentsResult, error) {
	reqURL, err := c.pullURL(owner, repo, pullNumber, "comments")
	if err != nil {
		return PullCommentsResult{}, err
	}
	return c.listComments(ctx, reqURL, "list review comments")
}

// ListPullIssueComments lists conversation comments on one pull request.
func (c *DataClient) ListPullIssueComments(ctx context.Context, owner, repo string, pullNumber int) (PullCommentsResult, error) {
	trimmedOwner := strings.TrimSpace(owner)
	trimmedRepo := strings.TrimSpace(repo)
	if trimmedOwner == "" {
		return PullCommentsResult{}, fmt.Errorf("owner is required")
	}
	if trimmedRepo == "" {
		return PullCommentsResult{}, fmt.Errorf("repo is required")
	}
	if pullNumber <= 0 {
		return PullCommentsResult{}, fmt.Errorf("pull number must be > 0")
	}

	reqURL := c.cloneBaseURL()
	reqURL.Path = joinURLPath(
		reqURL.Path,
		"repos",
		url.PathEscape(trimmedOwner),
		url.PathEscape(trimmedRepo),
		"issues",
		strconv.Itoa(pullNumber),
		"comments",
	)
	return c.listComments(ctx, reqURL, "list issue comments")
}

// ListPullCommits lists commits on one pull request.
func (c *DataClient) ListPullCommits(ctx context.Context, owner, repo string, pullNumber int) (PullCommitsResult, error) {
	reqURL, err := c.pullURL(owner, repo, pullNumber, "commits")
	if err != nil {
		return PullCommitsResult{}, err
	}

	result := PullCommitsResult{
		Status: EndpointStatusOK,
	}
	err = c.paginate(ctx, reqURL, &result.Metadata, "list pull commits", func(resp *http.Response) (bool, error) {
		var payload []pullCommitPayload
		if err := decodeJSONAndClose(resp, &payload); err != nil {
			return false, fmt.Errorf("decode list pull commits response: %w", err)
		}
		for _, commit := range payload {
			typed := PullCommit{
				SHA:        commit.SHA,
				AuthorName: commit.Commit.Author.Name,
				AuthoredAt: parseRFC3339(commit.Commit.Author.Date),
			}
			if commit.Author != nil {
				typed.Author = commit.Author.Login
			}
			result.Commits = append(result.Commits, typed)
		}
		return len(payload) > 0, nil
	}, &result.Status)
	if err != nil {
		return PullCommitsResult{}, err
	}
	return result, nil
}

func (c *DataClient) listComments(ctx context.Context, reqURL *url.URL, operation string) (PullCommentsResult, error) {
	result := PullCommentsResult{
		Status: EndpointStatusOK,
	}
	err := c.paginate(ctx, reqURL, &result.Metadata, operation, func(resp *http.Response) (bool, error) {
		var payload []commentPayload
		if err := decodeJSONAndClose(resp, &payload); err != nil {
			return false, fmt.Errorf("decode %s response: %w", operation, err)
		}
		for _, comment := range payload {
			typed := PullComment{
				ID:        comment.ID,
				CreatedAt: parseRFC3339(comment.CreatedAt),
			}
			if comment.User != nil {
				typed.User = comment.User.Login
			}
			result.Comments = append(result.Comments, typed)
		}
		return len(payload) > 0, nil
	}, &result.Status)
	if err != nil {
		return PullCommentsResult{}, err
	}
	return result, nil
}

// paginate walks a paginated endpoint until the Link header runs out or the
// decode callback reports an empty page. A non-OK status stops the walk and
// is reported through statusOut.
func (c *DataClient) paginate(
	ctx context.Context,
	reqURL *url.URL,
	metadata *CallMetadata,
	operation string,
	decodePage func(resp *http.Response) (bool, error),
	statusOut *EndpointStatus,
) error {
	page := 1
	for {
		pageURL := *reqURL
		query := pageURL.Query()
		query.Set("per_page", "100")
		query.Set("page", strconv.Itoa(page))
		pageURL.RawQuery = query.Encode()

		resp, err := c.get(ctx, &pageURL, metadata, operation)
		if err != nil {
			return err
		}

		status := endpointStatusFromHTTP(resp.StatusCode)
		if status != EndpointStatusOK {
			_ = resp.Body.Close()
			*statusOut = status
			return nil
		}

		hasNext := hasNextPage(resp.Header.Get("Link"))
		nonEmpty, err := decodePage(resp)
		if err != nil {
			return err
		}
		if !nonEmpty || !hasNext {
			return nil
		}
		page++
	}
}

func (c *DataClient) get(ctx context.Context, reqURL *url.URL, metadata *CallMetadata, operation string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", operation, err)
	}

	resp, callMeta, err := c.requestClient.Do(req)
	*metadata = mergeMetadata(*metadata, callMeta)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", operation, err)
	}
	if resp == nil {
		return nil, fmt.Errorf("%s request failed: nil response", operation)
	}
	return resp, nil
}

func (c *DataClient) pullURL(owner, repo string, pullNumber int, segments ...string) (*url.URL, error) {
	trimmedOwner := strings.TrimSpace(owner)
	trimmedRepo := strings.TrimSpace(repo)
	if trimmedOwner == "" {
		return nil, fmt.Errorf("owner is required")
	}
	if trimmedRepo == "" {
		return nil, fmt.Errorf("repo is required")
	}
	if pullNumber <= 0 {
		return nil, fmt.Errorf("pull number must be > 0")
	}

	reqURL := c.cloneBaseURL()
	parts := append([]string{
		"repos",
		url.PathEscape(trimmedOwner),
		url.PathEscape(trimmedRepo),
		"pulls",
		strconv.Itoa(pullNumber),
	}, segments...)
	reqURL.Path = joinURLPath(reqURL.Path, parts...)
	return reqURL, nil
}

func parseAPIBaseURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		trimmed = defaultGitHubAPIBaseURL
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse github api base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("parse github api base url: missing scheme or host")
	}
	if !strings.HasSuffix(parsed.Path, "/") {
		parsed.Path += "/"
	}
	return parsed, nil
}

func (c *DataClient) cloneBaseURL() *url.URL {
	cloned := *c.baseURL
	return &cloned
}

func joinURLPath(base string, segments ...string) string {
	trimmedBase := strings.TrimSuffix(base, "/")
	builder := strings.Builder{}
	builder.WriteString(trimmedBase)
	for _, segment := range segments {
		builder.WriteString("/")
		builder.WriteString(strings.TrimPrefix(segment, "/"))
	}
	return builder.String()
}

func endpointStatusFromHTTP(statusCode int) EndpointStatus {
	switch statusCode {
	case http.StatusAccepted:
		return EndpointStatusAccepted
	case http.StatusForbidden:
		return EndpointStatusForbidden
	case http.StatusNotFound:
		return EndpointStatusNotFound
	case http.StatusConflict:
		return EndpointStatusConflict
	case http.StatusUnprocessableEntity:
		return EndpointStatusUnprocessable
	}
	if statusCode >= 200 && statusCode <= 299 {
		return EndpointStatusOK
	}
	if statusCode >= 500 {
		return EndpointStatusUnavailable
	}
	return EndpointStatusUnknown
}

func decodeJSONAndClose(resp *http.Response, target any) error {
	defer resp.Body.Close()
	decoder := json.NewDecoder(resp.Body)
	return decoder.Decode(target)
}

func hasNextPage(linkHeader string) bool {
	if strings.TrimSpace(linkHeader) == "" {
		return false
	}
	for _, part := range strings.Split(linkHeader, ",") {
		if strings.Contains(part, `rel="next"`) {
			return true
		}
	}
	return false
}

func parseRFC3339(raw string) time.Time {
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}
	return parsed.UTC()
}

func parseNullableRFC3339(raw *string) time.Time {
	if raw == nil {
		return time.Time{}
	}
	return parseRFC3339(*raw)
}

func withinWindow(ts, since, until time.Time) bool {
	if ts.IsZero() {
		return false
	}
	if !since.IsZero() && ts.Before(since) {
		return false
	}
	if !until.IsZero() && ts.After(until) {
		return false
	}
	return true
}

func mergeMetadata(current CallMetadata, incoming CallMetadata) CallMetadata {
	current.Attempts += incoming.Attempts
	current.RateLimitWaits += incoming.RateLimitWaits
	current.LastDecision = incoming.LastDecision
	current.LastRateHeaders = incoming.LastRateHeaders
	return current
}

type repositoryPayload struct {
	Name          string `json:"name"`
	FullName      string `json:"full_name"`
	DefaultBranch string `json:"default_branch"`
	Archived      bool   `json:"archived"`
	Disabled      bool   `json:"disabled"`
	Fork          bool   `json:"fork"`
}

type pullRequestPayload struct {
	Number    int            `json:"number"`
	User      *userPayload   `json:"user"`
	Title     string         `json:"title"`
	Labels    []labelPayload `json:"labels"`
	Draft     bool           `json:"draft"`
	CreatedAt string         `json:"created_at"`
	UpdatedAt string         `json:"updated_at"`
	MergedAt  *string        `json:"merged_at"`
	ClosedAt  *string        `json:"closed_at"`
	Base      refPayload     `json:"base"`
	Head      refPayload     `json:"head"`
}

type pullRequestDetailPayload struct {
	Number       int          `json:"number"`
	Additions    int          `json:"additions"`
	Deletions    int          `json:"deletions"`
	ChangedFiles int          `json:"changed_files"`
	Commits      int          `json:"commits"`
	MergedBy     *userPayload `json:"merged_by"`
}

type pullReviewPayload struct {
	ID          int64        `json:"id"`
	User        *userPayload `json:"user"`
	State       string       `json:"state"`
	Body        string       `json:"body"`
	SubmittedAt *string      `json:"submitted_at"`
}

type commentPayload struct {
	ID        int64        `json:"id"`
	User      *userPayload `json:"user"`
	CreatedAt string       `json:"created_at"`
}

type pullCommitPayload struct {
	SHA    string       `json:"sha"`
	Author *userPayload `json:"author"`
	Commit struct {
		Author struct {
			Name string `json:"name"`
			Date string `json:"date"`
		} `json:"author"`
	} `json:"commit"`
}

type labelPayload struct {
	Name string `json:"name"`
}

type refPayload struct {
	Ref string `json:"ref"`
}

type userPayload struct {
	Login string `json:"login"`
}
