package githubapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/google/go-github/v75/github"
	"golang.org/x/oauth2"
)

// TokenAuthConfig configures personal-access-token authentication.
type TokenAuthConfig struct {
	Token         string
	Timeout       time.Duration
	MaxConcurrent int
}

// InstallationAuthConfig configures GitHub App installation authentication.
type InstallationAuthConfig struct {
	AppID          int64
	InstallationID int64
	PrivateKeyPath string
	Timeout        time.Duration
	MaxConcurrent  int
}

// NewTokenHTTPClient creates an authenticated HTTP client for a personal
// access token.
func NewTokenHTTPClient(ctx context.Context, cfg TokenAuthConfig) (*http.Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, fmt.Errorf("token is required")
	}

	source := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
	base := oauth2.NewClient(ctx, source)
	return &http.Client{
		Transport: pooledTransport(base.Transport, cfg.MaxConcurrent),
		Timeout:   cfg.Timeout,
	}, nil
}

// NewInstallationHTTPClient creates an authenticated HTTP client for one
// GitHub App installation.
func NewInstallationHTTPClient(cfg InstallationAuthConfig) (*http.Client, error) {
	if cfg.AppID <= 0 {
		return nil, fmt.Errorf("app id must be > 0")
	}
	if cfg.InstallationID <= 0 {
		return nil, fmt.Errorf("installation id must be > 0")
	}
	if strings.TrimSpace(cfg.PrivateKeyPath) == "" {
		return nil, fmt.Errorf("private key path is required")
	}

	transport, err := ghinstallation.NewKeyFromFile(
		poolBaseTransport(cfg.MaxConcurrent),
		cfg.AppID,
		cfg.InstallationID,
		cfg.PrivateKeyPath,
	)
	if err != nil {
		return nil, fmt.Errorf("create github app transport: %w", err)
	}

	return &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
	}, nil
}

// The connection pool is sized to the sum of worker-pool capacities so no
// tier can starve another of connections.
func poolBaseTransport(maxConcurrent int) http.RoundTripper {
	if maxConcurrent <= 0 {
		return http.DefaultTransport
	}
	base, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return http.DefaultTransport
	}
	transport := base.Clone()
	transport.MaxIdleConnsPerHost = maxConcurrent
	transport.MaxConnsPerHost = maxConcurrent
	return transport
}

func pooledTransport(inner http.RoundTripper, maxConcurrent int) http.RoundTripper {
	if inner == nil {
		return poolBaseTransport(maxConcurrent)
	}
	if oauthTransport, ok := inner.(*oauth2.Transport); ok {
		oauthTransport.Base = poolBaseTransport(maxConcurrent)
		return oauthTransport
	}
	return inner
}

// OrgInfo is the resolved organization root.
type OrgInfo struct {
	Login string
	Name  string
}

// OrgClient resolves organization-level entities through the go-github
// REST client. Failures here are fatal to a run: without the organization
// root no further work is possible.
type OrgClient struct {
	client *github.Client
}

// NewOrgClient creates a go-github backed org client with optional API base
// URL override.
func NewOrgClient(httpClient *http.Client, apiBaseURL string) (*OrgClient, error) {
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	client := github.NewClient(httpClient)
	trimmedBaseURL := strings.TrimSpace(apiBaseURL)
	if trimmedBaseURL != "" {
		parsedURL, err := url.Parse(trimmedBaseURL)
		if err != nil {
			return nil, fmt.Errorf("parse github api base url: %w", err)
		}
		if parsedURL.Scheme == "" || parsedURL.Host == "" {
			return nil, fmt.Errorf("parse github api base url: missing scheme or host")
		}
		if !strings.HasSuffix(parsedURL.Path, "/") {
			parsedURL.Path += "/"
		}
		client.BaseURL = parsedURL
	}

	return &OrgClient{client: client}, nil
}

// ResolveOrg looks up the organization root.
func (c *OrgClient) ResolveOrg(ctx context.Context, org string) (OrgInfo, error) {
	trimmedOrg := strings.TrimSpace(org)
	if trimmedOrg == "" {
		return OrgInfo{}, fmt.Errorf("organization is required")
	}

	resolved, _, err := c.client.Organizations.Get(ctx, trimmedOrg)
	if err != nil {
		return OrgInfo{}, fmt.Errorf("resolve organization %q: %w", trimmedOrg, classifyRESTError(err))
	}

	info := OrgInfo{Login: resolved.GetLogin()}
	if info.Login == "" {
		info.Login = trimmedOrg
	}
	info.Name = resolved.GetName()
	return info, nil
}

// ListTeamMembers returns team slug to member logins for every team in the
// organization.
func (c *OrgClient) ListTeamMembers(ctx context.Context, org string) (map[string][]string, error) {
	trimmedOrg := strings.TrimSpace(org)
	if trimmedOrg == "" {
		return nil, fmt.Errorf("organization is required")
	}

	members := make(map[string][]string)

	teamOpts := &github.ListOptions{PerPage: 100}
	for {
		teams, resp, err := c.client.Teams.ListTeams(ctx, trimmedOrg, teamOpts)
		if err != nil {
			return nil, fmt.Errorf("list teams for %q: %w", trimmedOrg, classifyRESTError(err))
		}
		for _, team := range teams {
			slug := team.GetSlug()
			if slug == "" {
				continue
			}
			logins, err := c.listTeamMemberLogins(ctx, trimmedOrg, slug)
			if err != nil {
				return nil, err
			}
			members[slug] = logins
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		teamOpts.Page = resp.NextPage
	}

	return members, nil
}

func (c *OrgClient) listTeamMemberLogins(ctx context.Context, org, slug string) ([]string, error) {
	var logins []string
	opts := &github.TeamListTeamMembersOptions{
		Role:        "all",
		ListOptions: github.ListOptions{PerPage: 100},
	}
	for {
		users, resp, err := c.client.Teams.ListTeamMembersBySlug(ctx, org, slug, opts)
		if err != nil {
			return nil, fmt.Errorf("list members of team %q: %w", slug, classifyRESTError(err))
		}
		for _, user := range users {
			if login := user.GetLogin(); login != "" {
				logins = append(logins, login)
			}
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return logins, nil
}

func classifyRESTError(err error) error {
	var errResp *github.ErrorResponse
	if errors.As(err, &errResp) && errResp.Response != nil {
		if errResp.Response.StatusCode == http.StatusUnauthorized {
			return fmt.Errorf("%w: %v", ErrAuthentication, err)
		}
	}
	return err
}
