package gateway

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/felixgeelhaar/lostfound/internal/domain"
	"github.com/felixgeelhaar/lostfound/internal/errors"
)

type userStatusResponse struct {
	Status   string            `json:"status"`
	Username string            `json:"username"`
	Action   domain.UserAction `json:"action"`
	Message  string            `json:"message"`
}

// ListUsers returns every account. Admin only.
func (g *Gateway) ListUsers(ctx context.Context) ([]domain.UserRecord, error) {
	var users []domain.UserRecord
	err := g.do(ctx, g.session.Snapshot(), call{
		op:     OpListUsers,
		access: AccessAdmin,
		method: http.MethodGet,
		path:   "/users",
		out:    &users,
	})
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []domain.UserRecord{}
	}
	return users, nil
}

// SetUserStatus blocks or unblocks an account. Admin only.
func (g *Gateway) SetUserStatus(ctx context.Context, username string, action domain.UserAction) (*domain.UserStatusResult, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, errors.Validation("missing required field: username")
	}
	if err := action.Validate(); err != nil {
		return nil, err
	}

	var resp userStatusResponse
	err := g.do(ctx, g.session.Snapshot(), call{
		op:     OpSetUserStatus,
		access: AccessAdmin,
		method: http.MethodPatch,
		path:   "/users/" + url.PathEscape(username),
		body:   map[string]domain.UserAction{"action": action},
		out:    &resp,
	})
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(resp.Status, "error") {
		return nil, statusFailure(resp.Message)
	}

	result := &domain.UserStatusResult{Username: resp.Username, Action: resp.Action, Message: resp.Message}
	if result.Username == "" {
		result.Username = username
	}
	if result.Action == "" {
		result.Action = action
	}
	return result, nil
}

// statusFailure classifies an error the user handler reported in a 2xx body
func statusFailure(message string) *errors.Failure {
	if message == "" {
		message = "user status change failed"
	}
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "not found"):
		return errors.New(errors.KindNotFound, errors.ErrCodeAPINotFound, message)
	case strings.Contains(lower, "not authorized"):
		return errors.New(errors.KindForbidden, errors.ErrCodeAPIForbidden, message)
	case strings.Contains(lower, "required"), strings.Contains(lower, "must be"):
		return errors.New(errors.KindValidation, errors.ErrCodeAPIRejected, message)
	default:
		return errors.New(errors.KindServerError, errors.ErrCodeAPIServer, message).
			WithSuggestion("The server failed; retry in a moment")
	}
}
