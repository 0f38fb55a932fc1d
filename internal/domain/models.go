package domain

import (
	"time"

	"github.com/lib/pq"
)

// DateLayout is the calendar-day format used for activity keys and API payloads.
const DateLayout = "2006-01-02"

type SyncStatus string

const (
	SyncStatusIdle      SyncStatus = "idle"
	SyncStatusSyncing   SyncStatus = "syncing"
	SyncStatusCompleted SyncStatus = "completed"
	SyncStatusError     SyncStatus = "error"
)

type EventType string

const (
	EventTypePush        EventType = "push"
	EventTypeIssues      EventType = "issues"
	EventTypePullRequest EventType = "pull_request"
	EventTypeCreate      EventType = "create"
	EventTypeDelete      EventType = "delete"
)

// DailyActivity is the per-(user, date) rollup of all activity events.
// CommitsCount is the sum of event commit deltas for that day and
// ActivityLevel is always recomputed from it on merge.
type DailyActivity struct {
	UserID            string         `db:"user_id"`
	Date              time.Time      `db:"date"`
	CommitsCount      int            `db:"commits_count"`
	RepositoriesCount int            `db:"repositories_count"`
	Repositories      pq.StringArray `db:"repositories"`
	Languages         pq.StringArray `db:"languages"`
	PullRequests      int            `db:"pull_requests"`
	Issues            int            `db:"issues"`
	Reviews           int            `db:"reviews"`
	Additions         int            `db:"additions"`
	Deletions         int            `db:"deletions"`
	FilesChanged      int            `db:"files_changed"`
	ActivityLevel     int            `db:"activity_level"`
	CreatedAt         time.Time      `db:"created_at"`
}

// ActivityEvent is one normalized occurrence from either the webhook or the
// bulk-sync path. ID is derived deterministically from the source identifiers
// so that replaying the same delivery cannot double-count.
type ActivityEvent struct {
	ID           string         `db:"id"`
	UserID       string         `db:"user_id"`
	Date         time.Time      `db:"date"`
	Repository   string         `db:"repository_name"`
	CommitSHA    string         `db:"commit_sha"`
	Summary      string         `db:"summary"`
	CommitsCount int            `db:"commits_count"`
	PullRequests int            `db:"pull_requests"`
	Issues       int            `db:"issues"`
	Additions    int            `db:"additions"`
	Deletions    int            `db:"deletions"`
	FilesChanged int            `db:"files_changed"`
	Languages    pq.StringArray `db:"languages"`
	EventType    EventType      `db:"event_type"`
	CreatedAt    time.Time      `db:"created_at"`
}

// SyncState is the single per-user row tracking the lifecycle of a bulk sync.
type SyncState struct {
	UserID        string     `db:"user_id"`
	Status        SyncStatus `db:"status"`
	Progress      int        `db:"progress"`
	Step          int        `db:"step"`
	StepMessage   string     `db:"step_message"`
	TotalRepos    int        `db:"total_repositories"`
	SyncedRepos   int        `db:"synced_repositories"`
	TotalCommits  int        `db:"total_commits"`
	SyncedCommits int        `db:"synced_commits"`
	StartedAt     *time.Time `db:"started_at"`
	CompletedAt   *time.Time `db:"completed_at"`
	ErrorMessage  *string    `db:"error_message"`
}

type Integration struct {
	UserID              string         `db:"user_id"`
	GithubUsername      string         `db:"github_username"`
	GithubUserID        int64          `db:"github_user_id"`
	AccessToken         *string        `db:"access_token"`
	Scope               string         `db:"scope"`
	IsActive            bool           `db:"is_active"`
	SyncEnabled         bool           `db:"sync_enabled"`
	IncludePrivateRepos bool           `db:"include_private_repos"`
	ExcludeRepositories pq.StringArray `db:"exclude_repositories"`
	TotalRepositories   int            `db:"total_repositories"`
	TotalCommits        int            `db:"total_commits"`
	ConnectedAt         time.Time      `db:"connected_at"`
	LastSyncAt          *time.Time     `db:"last_sync_at"`
}

// WebhookLog is the append-only audit record for processed deliveries.
type WebhookLog struct {
	DeliveryID   string    `db:"delivery_id"`
	EventType    string    `db:"event_type"`
	Repository   string    `db:"repository_name"`
	Sender       string    `db:"sender"`
	Success      bool      `db:"success"`
	ErrorMessage *string   `db:"error_message"`
	ProcessedAt  time.Time `db:"processed_at"`
}

// ActivityLevel buckets a day's commit count into the ordinal 0-4 scale
// used by the contribution heatmap. Monotonic in the commit count.
func ActivityLevel(commits int) int {
	switch {
	case commits == 0:
		return 0
	case commits <= 2:
		return 1
	case commits <= 5:
		return 2
	case commits <= 10:
		return 3
	default:
		return 4
	}
}
