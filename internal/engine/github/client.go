package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	gh "github.com/google/go-github/v58/github"
	"golang.org/x/oauth2"

	"openfeedback/internal/platform/config"
)

// Account is the GitHub user or organization an app is installed on.
type Account struct {
	Login string
	Type  string
}

// AccountFetcher looks up installation details on GitHub.
type AccountFetcher interface {
	InstallationAccount(ctx context.Context, installationID int64) (Account, error)
}

// APIClient calls the GitHub REST API as the configured app.
type APIClient struct {
	client     *gh.Client
	maxTries   uint
	newBackOff func() backoff.BackOff
}

func NewAPIClient(cfg config.GitHubConfig) (*APIClient, error) {
	key, err := LoadPrivateKey(cfg)
	if err != nil {
		return nil, err
	}
	ts, err := NewAppTokenSource(cfg.AppID, key)
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{
		Timeout:   30 * time.Second,
		Transport: &oauth2.Transport{Source: ts, Base: http.DefaultTransport},
	}
	return newAPIClient(httpClient, cfg.APIBaseURL)
}

func newAPIClient(httpClient *http.Client, baseURL string) (*APIClient, error) {
	client := gh.NewClient(httpClient)
	if baseURL != "" {
		if !strings.HasSuffix(baseURL, "/") {
			baseURL += "/"
		}
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid github api base url: %w", err)
		}
		client.BaseURL = u
	}

	return &APIClient{
		client:   client,
		maxTries: 3,
		newBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
	}, nil
}

// InstallationAccount fetches the account of an installation. Server errors
// are retried; client errors are not.
func (c *APIClient) InstallationAccount(ctx context.Context, installationID int64) (Account, error) {
	operation := func() (Account, error) {
		inst, _, err := c.client.Apps.GetInstallation(ctx, installationID)
		if err != nil {
			if isPermanent(err) {
				return Account{}, backoff.Permanent(err)
			}
			return Account{}, err
		}
		return Account{
			Login: inst.GetAccount().GetLogin(),
			Type:  inst.GetAccount().GetType(),
		}, nil
	}

	account, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(c.maxTries),
	)
	if err != nil {
		return Account{}, fmt.Errorf("failed to get installation %d: %w", installationID, err)
	}
	return account, nil
}

func isPermanent(err error) bool {
	var errResp *gh.ErrorResponse
	if errors.As(err, &errResp) && errResp.Response != nil {
		code := errResp.Response.StatusCode
		return code >= 400 && code < 500 && code != http.StatusTooManyRequests
	}
	return false
}
