package http

import (
	"time"

	"github.com/lgdx/activity-service/internal/domain"
	"github.com/lgdx/activity-service/internal/stats"
)

type syncRequest struct {
	UserID    string `json:"user_id" validate:"required,custom_id,min=1,max=100"`
	ForceSync bool   `json:"force_sync"`
}

type connectRequest struct {
	UserID string `json:"user_id" validate:"required,custom_id,min=1,max=100"`
	Code   string `json:"code" validate:"required,min=1,max=255"`
	State  string `json:"state" validate:"omitempty,max=255"`
}

type disconnectRequest struct {
	UserID string `json:"user_id" validate:"required,custom_id,min=1,max=100"`
}

type activitiesQuery struct {
	UserID string `validate:"required,custom_id,min=1,max=100"`
	Period int    `validate:"omitempty,min=1,max=365"`
	Format string `validate:"omitempty,oneof=heatmap chart stats"`
}

type syncStateResponse struct {
	UserID      string  `json:"user_id"`
	Status      string  `json:"status"`
	Progress    int     `json:"progress"`
	Step        int     `json:"step"`
	StepMessage string  `json:"step_message"`
	TotalRepos  int     `json:"total_repositories"`
	SyncedRepos int     `json:"synced_repositories"`
	Commits     int     `json:"synced_commits"`
	StartedAt   *string `json:"started_at,omitempty"`
	CompletedAt *string `json:"completed_at,omitempty"`
	Error       *string `json:"error,omitempty"`
}

// integrationResponse deliberately omits the stored access token.
type integrationResponse struct {
	UserID              string   `json:"user_id"`
	GithubUsername      string   `json:"github_username"`
	GithubUserID        int64    `json:"github_user_id"`
	Scope               string   `json:"scope"`
	SyncEnabled         bool     `json:"sync_enabled"`
	IncludePrivateRepos bool     `json:"include_private_repos"`
	ExcludeRepositories []string `json:"exclude_repositories"`
	TotalRepositories   int      `json:"total_repositories"`
	TotalCommits        int      `json:"total_commits"`
	ConnectedAt         string   `json:"connected_at"`
	LastSyncAt          *string  `json:"last_sync_at,omitempty"`
}

type activitiesResponse struct {
	UserID string `json:"user_id"`
	Period int    `json:"period"`
	Format string `json:"format"`
	Data   any    `json:"data"`
}

func toSyncStateResponse(state *domain.SyncState) *syncStateResponse {
	resp := &syncStateResponse{
		UserID:      state.UserID,
		Status:      string(state.Status),
		Progress:    state.Progress,
		Step:        state.Step,
		StepMessage: state.StepMessage,
		TotalRepos:  state.TotalRepos,
		SyncedRepos: state.SyncedRepos,
		Commits:     state.SyncedCommits,
	}

	resp.StartedAt = formatTime(state.StartedAt)
	resp.CompletedAt = formatTime(state.CompletedAt)
	resp.Error = state.ErrorMessage

	return resp
}

func toIntegrationResponse(integration *domain.Integration) *integrationResponse {
	resp := &integrationResponse{
		UserID:              integration.UserID,
		GithubUsername:      integration.GithubUsername,
		GithubUserID:        integration.GithubUserID,
		Scope:               integration.Scope,
		SyncEnabled:         integration.SyncEnabled,
		IncludePrivateRepos: integration.IncludePrivateRepos,
		ExcludeRepositories: integration.ExcludeRepositories,
		TotalRepositories:   integration.TotalRepositories,
		TotalCommits:        integration.TotalCommits,
		ConnectedAt:         integration.ConnectedAt.Format(timeLayout),
		LastSyncAt:          formatTime(integration.LastSyncAt),
	}

	if resp.ExcludeRepositories == nil {
		resp.ExcludeRepositories = []string{}
	}

	return resp
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}

	formatted := t.Format(timeLayout)

	return &formatted
}

// statsEnvelope keeps the detailed stats shape stable for API consumers.
func statsEnvelope(detailed *stats.Detailed) map[string]any {
	return map[string]any{
		"basic_stats":        detailed.Basic,
		"favorite_languages": detailed.FavoriteLanguages,
		"weekday_analysis":   detailed.WeekdayAnalysis,
		"monthly_analysis":   detailed.MonthlyAnalysis,
		"productivity":       detailed.Productivity,
	}
}
