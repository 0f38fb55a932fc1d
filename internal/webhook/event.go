// package webhook parses GitHub webhook deliveries into normalized
// activity events. Each supported event type has its own payload variant;
// everything else is acknowledged without producing an event so the sender
// does not retry.
package webhook

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/lgdx/activity-service/internal/apperrors"
	"github.com/lgdx/activity-service/internal/domain"
)

// EventHeader is the header carrying the event-type discriminator.
const EventHeader = "X-GitHub-Event"

// DeliveryHeader is the header carrying the unique delivery ID.
const DeliveryHeader = "X-GitHub-Delivery"

// SupportedEvent reports whether the receiver handles a given event type.
func SupportedEvent(eventType string) bool {
	switch domain.EventType(eventType) {
	case domain.EventTypePush, domain.EventTypeIssues, domain.EventTypePullRequest,
		domain.EventTypeCreate, domain.EventTypeDelete:
		return true
	default:
		return false
	}
}

// Envelope is the part of the payload shared by every event type. It is
// parsed first so the receiver can resolve the integration owner before
// dispatching to a variant.
type Envelope struct {
	Repository struct {
		Name     string `json:"name"`
		FullName string `json:"full_name"`
		Owner    struct {
			Login string `json:"login"`
		} `json:"owner"`
	} `json:"repository"`
	Sender struct {
		Login string `json:"login"`
	} `json:"sender"`
}

// OwnerLogin returns the login to match an integration against: the
// repository owner when present, else the sender.
func (e *Envelope) OwnerLogin() string {
	if e.Repository.Owner.Login != "" {
		return e.Repository.Owner.Login
	}

	return e.Sender.Login
}

func ParseEnvelope(body []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrInvalidRequest, err)
	}

	return &env, nil
}

type pushPayload struct {
	After      string `json:"after"`
	HeadCommit *struct {
		Message string `json:"message"`
	} `json:"head_commit"`
	Commits []struct {
		ID       string `json:"id"`
		Message  string `json:"message"`
		Distinct bool   `json:"distinct"`
	} `json:"commits"`
}

type issuesPayload struct {
	Action string `json:"action"`
	Issue  struct {
		ID    int64  `json:"id"`
		Title string `json:"title"`
	} `json:"issue"`
}

type pullRequestPayload struct {
	Action      string `json:"action"`
	PullRequest struct {
		ID    int64  `json:"id"`
		Title string `json:"title"`
		Head  struct {
			SHA string `json:"sha"`
		} `json:"head"`
	} `json:"pull_request"`
}

type refPayload struct {
	Ref     string `json:"ref"`
	RefType string `json:"ref_type"`
}

// ParseEvent dispatches on the event type and normalizes the payload into
// an ActivityEvent for the given user, dated at now. A nil event with a nil
// error means the delivery is valid but does not contribute activity
// (unsupported type, non-distinct push, ignored action).
func ParseEvent(eventType string, body []byte, userID string, now time.Time) (*domain.ActivityEvent, error) {
	env, err := ParseEnvelope(body)
	if err != nil {
		return nil, err
	}

	switch domain.EventType(eventType) {
	case domain.EventTypePush:
		return parsePush(body, env, userID, now)
	case domain.EventTypeIssues:
		return parseIssues(body, env, userID, now)
	case domain.EventTypePullRequest:
		return parsePullRequest(body, env, userID, now)
	case domain.EventTypeCreate, domain.EventTypeDelete:
		return parseRef(domain.EventType(eventType), body, env, userID, now)
	default:
		return nil, nil
	}
}

func parsePush(body []byte, env *Envelope, userID string, now time.Time) (*domain.ActivityEvent, error) {
	var p pushPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrInvalidRequest, err)
	}

	distinct := 0
	firstMessage := ""
	for _, c := range p.Commits {
		if !c.Distinct {
			continue
		}
		if distinct == 0 {
			firstMessage = c.Message
		}
		distinct++
	}

	// A push made of merge duplicates contributes nothing.
	if distinct == 0 {
		return nil, nil
	}

	summary := firstMessage
	if p.HeadCommit != nil && p.HeadCommit.Message != "" {
		summary = p.HeadCommit.Message
	}

	return &domain.ActivityEvent{
		ID:           fmt.Sprintf("%s_%s_%s", userID, env.Repository.Name, p.After),
		UserID:       userID,
		Date:         now,
		Repository:   env.Repository.Name,
		CommitSHA:    p.After,
		Summary:      summary,
		CommitsCount: distinct,
		Languages:    []string{},
		EventType:    domain.EventTypePush,
		CreatedAt:    now,
	}, nil
}

func parseIssues(body []byte, env *Envelope, userID string, now time.Time) (*domain.ActivityEvent, error) {
	var p issuesPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrInvalidRequest, err)
	}

	if p.Action != "opened" && p.Action != "closed" {
		return nil, nil
	}

	return &domain.ActivityEvent{
		ID:         fmt.Sprintf("%s_%s_issue_%d_%s", userID, env.Repository.Name, p.Issue.ID, p.Action),
		UserID:     userID,
		Date:       now,
		Repository: env.Repository.Name,
		Summary:    fmt.Sprintf("%s issue: %s", p.Action, p.Issue.Title),
		Issues:     1,
		Languages:  []string{},
		EventType:  domain.EventTypeIssues,
		CreatedAt:  now,
	}, nil
}

func parsePullRequest(body []byte, env *Envelope, userID string, now time.Time) (*domain.ActivityEvent, error) {
	var p pullRequestPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrInvalidRequest, err)
	}

	if p.Action != "opened" && p.Action != "closed" {
		return nil, nil
	}

	return &domain.ActivityEvent{
		ID:           fmt.Sprintf("%s_%s_pr_%d_%s", userID, env.Repository.Name, p.PullRequest.ID, p.Action),
		UserID:       userID,
		Date:         now,
		Repository:   env.Repository.Name,
		CommitSHA:    p.PullRequest.Head.SHA,
		Summary:      fmt.Sprintf("%s PR: %s", p.Action, p.PullRequest.Title),
		PullRequests: 1,
		Languages:    []string{},
		EventType:    domain.EventTypePullRequest,
		CreatedAt:    now,
	}, nil
}

func parseRef(eventType domain.EventType, body []byte, env *Envelope, userID string, now time.Time) (*domain.ActivityEvent, error) {
	var p refPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrInvalidRequest, err)
	}

	// The ref name keeps the identity deterministic across redeliveries.
	return &domain.ActivityEvent{
		ID:         fmt.Sprintf("%s_%s_%s_%s", userID, env.Repository.Name, eventType, p.Ref),
		UserID:     userID,
		Date:       now,
		Repository: env.Repository.Name,
		Summary:    fmt.Sprintf("%s repository: %s", eventType, env.Repository.Name),
		Languages:  []string{},
		EventType:  eventType,
		CreatedAt:  now,
	}, nil
}
