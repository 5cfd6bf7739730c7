package gateway

import (
	"context"
	"net/http"
	"strings"

	"github.com/felixgeelhaar/lostfound/internal/domain"
	"github.com/felixgeelhaar/lostfound/internal/errors"
)

type contactResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	EmailWarning string `json:"emailWarning"`
	Details      struct {
		MessageID      string `json:"messageId"`
		ItemID         string `json:"itemId"`
		ThreadID       string `json:"threadId"`
		RecipientEmail string `json:"recipientEmail"`
		SentAt         string `json:"sentAt"`
	} `json:"details"`
}

type replyResponse struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId"`
	Message   string `json:"message"`
	SentAt    string `json:"sentAt"`
}

// SendContact sends the first message about an item to its owner
func (g *Gateway) SendContact(ctx context.Context, req domain.ContactRequest) (*domain.Delivery, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	var resp contactResponse
	err := g.do(ctx, g.session.Snapshot(), call{
		op:     OpSendContact,
		access: AccessAuthenticated,
		method: http.MethodPost,
		path:   "/contact",
		body:   req,
		out:    &resp,
	})
	if err != nil {
		return nil, err
	}
	d := &domain.Delivery{
		MessageID:      resp.Details.MessageID,
		ItemID:         resp.Details.ItemID,
		ThreadID:       resp.Details.ThreadID,
		RecipientEmail: resp.Details.RecipientEmail,
		Message:        resp.Message,
		SentAt:         resp.Details.SentAt,
		Warning:        resp.EmailWarning,
	}
	if d.ItemID == "" {
		d.ItemID = req.ItemID
	}
	return d, nil
}

// Inbox fetches the caller's conversations
func (g *Gateway) Inbox(ctx context.Context) (*domain.Inbox, error) {
	var inbox domain.Inbox
	err := g.do(ctx, g.session.Snapshot(), call{
		op:     OpInbox,
		access: AccessAuthenticated,
		method: http.MethodGet,
		path:   "/messages",
		out:    &inbox,
	})
	if err != nil {
		return nil, err
	}
	if inbox.Threads == nil {
		inbox.Threads = []domain.Thread{}
	}
	return &inbox, nil
}

// Reply continues a conversation. Replying to yourself is rejected
// before the request is sent.
func (g *Gateway) Reply(ctx context.Context, req domain.ReplyRequest) (*domain.Delivery, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	snap := g.session.Snapshot()
	if snap.IsAuthenticated() && strings.TrimSpace(req.RecipientUserID) == snap.UserID {
		return nil, errors.Validation("you cannot send a message to yourself")
	}

	var resp replyResponse
	err := g.do(ctx, snap, call{
		op:     OpReply,
		access: AccessAuthenticated,
		method: http.MethodPost,
		path:   "/messages/reply",
		body:   req,
		out:    &resp,
	})
	if err != nil {
		return nil, err
	}
	return &domain.Delivery{
		MessageID: resp.MessageID,
		ItemID:    req.ItemID,
		ThreadID:  req.ThreadID,
		Message:   resp.Message,
		SentAt:    resp.SentAt,
	}, nil
}
