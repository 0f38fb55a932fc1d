// package github wraps the go-github client behind the small surface the
// sync pipeline needs: account lookup, owned-repository and commit
// enumeration, language stats, and the OAuth code exchange. All calls are
// paced by a shared rate limiter and retried with exponential backoff when
// the API answers with a rate limit or a server error.
package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/go-github/v62/github"
	"github.com/lgdx/activity-service/internal/apperrors"
	"golang.org/x/oauth2"
	oauth2github "golang.org/x/oauth2/github"
	"golang.org/x/time/rate"
)

const maxRetries = 4

type Account struct {
	Login string
	ID    int64
}

type Repository struct {
	Name    string
	Owner   string
	Private bool
}

type Commit struct {
	SHA       string
	Message   string
	Date      time.Time
	Additions int
	Deletions int
	Total     int
}

type Client struct {
	gh            *github.Client
	limiter       *rate.Limiter
	log           *slog.Logger
	pageSize      int
	retryInterval time.Duration
}

// NewClient builds an authenticated client. requestsPerSec bounds the
// request rate client-side; the server-side rate limit is still handled
// through retries. callTimeout caps each HTTP round trip so a stalled
// upstream cannot hang a sync.
func NewClient(token string, requestsPerSec float64, pageSize int, callTimeout time.Duration, log *slog.Logger) *Client {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(context.Background(), ts)
	tc.Timeout = callTimeout

	return &Client{
		gh:            github.NewClient(tc),
		limiter:       rate.NewLimiter(rate.Limit(requestsPerSec), 1),
		log:           log,
		pageSize:      pageSize,
		retryInterval: backoff.DefaultInitialInterval,
	}
}

// CurrentUser returns the account the token is authenticated as.
func (c *Client) CurrentUser(ctx context.Context) (*Account, error) {
	const op = "internal.github.CurrentUser"

	var user *github.User

	err := c.withRetry(ctx, op, func() error {
		var err error
		user, _, err = c.gh.Users.Get(ctx, "")
		return err
	})
	if err != nil {
		return nil, err
	}

	return &Account{Login: user.GetLogin(), ID: user.GetID()}, nil
}

// ListOwnedRepositories enumerates all repositories owned by the
// authenticated user, most recently updated first. Pagination is handled
// transparently.
func (c *Client) ListOwnedRepositories(ctx context.Context) ([]Repository, error) {
	const op = "internal.github.ListOwnedRepositories"

	opts := &github.RepositoryListByAuthenticatedUserOptions{
		Type:        "owner",
		Sort:        "updated",
		Direction:   "desc",
		ListOptions: github.ListOptions{PerPage: c.pageSize},
	}

	var all []Repository

	for {
		var (
			repos []*github.Repository
			resp  *github.Response
		)

		err := c.withRetry(ctx, op, func() error {
			var err error
			repos, resp, err = c.gh.Repositories.ListByAuthenticatedUser(ctx, opts)
			return err
		})
		if err != nil {
			return nil, err
		}

		for _, r := range repos {
			all = append(all, Repository{
				Name:    r.GetName(),
				Owner:   r.GetOwner().GetLogin(),
				Private: r.GetPrivate(),
			})
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return all, nil
}

// ListCommits fetches the commits authored by author in owner/repo since
// the given time.
func (c *Client) ListCommits(ctx context.Context, owner, repo, author string, since time.Time) ([]Commit, error) {
	const op = "internal.github.ListCommits"

	opts := &github.CommitsListOptions{
		Author:      author,
		Since:       since,
		ListOptions: github.ListOptions{PerPage: c.pageSize},
	}

	var all []Commit

	for {
		var (
			commits []*github.RepositoryCommit
			resp    *github.Response
		)

		err := c.withRetry(ctx, op, func() error {
			var err error
			commits, resp, err = c.gh.Repositories.ListCommits(ctx, owner, repo, opts)
			return err
		})
		if err != nil {
			return nil, err
		}

		for _, rc := range commits {
			all = append(all, Commit{
				SHA:       rc.GetSHA(),
				Message:   rc.GetCommit().GetMessage(),
				Date:      rc.GetCommit().GetAuthor().GetDate().Time,
				Additions: rc.GetStats().GetAdditions(),
				Deletions: rc.GetStats().GetDeletions(),
				Total:     rc.GetStats().GetTotal(),
			})
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return all, nil
}

// ListLanguages returns the language names used in owner/repo.
func (c *Client) ListLanguages(ctx context.Context, owner, repo string) ([]string, error) {
	const op = "internal.github.ListLanguages"

	var byLanguage map[string]int

	err := c.withRetry(ctx, op, func() error {
		var err error
		byLanguage, _, err = c.gh.Repositories.ListLanguages(ctx, owner, repo)
		return err
	})
	if err != nil {
		return nil, err
	}

	languages := make([]string, 0, len(byLanguage))
	for lang := range byLanguage {
		languages = append(languages, lang)
	}

	return languages, nil
}

// ExchangeCode trades an OAuth authorization code for an access token.
func ExchangeCode(ctx context.Context, clientID, clientSecret, code string) (string, string, error) {
	const op = "internal.github.ExchangeCode"

	conf := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     oauth2github.Endpoint,
	}

	token, err := conf.Exchange(ctx, code)
	if err != nil {
		return "", "", fmt.Errorf("%s: %w: %w", op, apperrors.ErrUpstream, err)
	}

	scope, _ := token.Extra("scope").(string)

	return token.AccessToken, scope, nil
}

// withRetry paces the call through the limiter and retries retryable
// upstream failures with exponential backoff. Rate-limit responses wait
// until the reported reset when it is sooner than the next backoff step.
func (c *Client) withRetry(ctx context.Context, op string, fn func() error) error {
	ebo := backoff.NewExponentialBackOff()
	ebo.InitialInterval = c.retryInterval

	bo := backoff.WithContext(backoff.WithMaxRetries(ebo, maxRetries-1), ctx)

	attempt := 0

	err := backoff.Retry(func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		attempt++

		err := fn()
		if err == nil {
			return nil
		}

		if !isRetryable(err) {
			return backoff.Permanent(err)
		}

		c.log.Warn("retrying github request",
			slog.String("op", op),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)

		if wait, ok := rateLimitWait(err); ok {
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return backoff.Permanent(ctx.Err())
			}
		}

		return err
	}, bo)

	if err != nil {
		return fmt.Errorf("%s: %w", op, mapError(err))
	}

	return nil
}

func isRetryable(err error) bool {
	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return true
	}

	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return true
	}

	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		code := respErr.Response.StatusCode
		return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
	}

	return false
}

func rateLimitWait(err error) (time.Duration, bool) {
	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		wait := time.Until(rateErr.Rate.Reset.Time)
		if wait > 0 {
			return wait, true
		}
	}

	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) && abuseErr.RetryAfter != nil {
		return *abuseErr.RetryAfter, true
	}

	return 0, false
}

func mapError(err error) error {
	var rateErr *github.RateLimitError
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &rateErr) || errors.As(err, &abuseErr) {
		return fmt.Errorf("%w: %w", apperrors.ErrRateLimited, err)
	}

	return fmt.Errorf("%w: %w", apperrors.ErrUpstream, err)
}
