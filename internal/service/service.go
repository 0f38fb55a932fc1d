package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lgdx/activity-service/internal/github"
	"github.com/lgdx/activity-service/pkg/logger/sl"
)

type Transactor interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// GitHubClient is the slice of the GitHub REST client the services need.
// Satisfied by *github.Client; mocked in tests.
type GitHubClient interface {
	CurrentUser(ctx context.Context) (*github.Account, error)
	ListOwnedRepositories(ctx context.Context) ([]github.Repository, error)
	ListCommits(ctx context.Context, owner, repo, author string, since time.Time) ([]github.Commit, error)
	ListLanguages(ctx context.Context, owner, repo string) ([]string, error)
}

// GitHubClientFactory builds an authenticated client for a token. Syncs run
// with per-user credentials, so a fresh client is built per run.
type GitHubClientFactory func(token string) GitHubClient

// CodeExchangeFunc swaps an OAuth authorization code for an access token and
// its granted scope. Defaults to github.ExchangeCode.
type CodeExchangeFunc func(ctx context.Context, clientID, clientSecret, code string) (token, scope string, err error)

type BaseService struct {
	db  Transactor
	log *slog.Logger
}

func NewBaseService(db Transactor, log *slog.Logger) BaseService {
	return BaseService{
		db:  db,
		log: log,
	}
}

func (s *BaseService) transaction(ctx context.Context, op string, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: failed to begin transaction: %w", op, err)
	}

	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			s.log.Error("failed to rollback transaction", sl.Err(err))
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: failed to commit transaction: %w", op, err)
	}

	return nil
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
