package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/felixgeelhaar/lostfound/internal/domain"
	"github.com/felixgeelhaar/lostfound/internal/errors"
)

// Operation names, used in failures, logs and metric labels.
const (
	OpListItems       = "list items"
	OpCreateItem      = "create item"
	OpSetItemResolved = "update item"
	OpDeleteItem      = "delete item"
	OpSendContact     = "contact owner"
	OpInbox           = "read inbox"
	OpReply           = "reply"
	OpListUsers       = "list users"
	OpSetUserStatus   = "change user status"
)

type createItemRequest struct {
	domain.ItemDraft
	ImageBase64 string `json:"imageBase64,omitempty"`
}

type createItemResponse struct {
	Success  bool   `json:"success"`
	ID       string `json:"id"`
	ImageURL string `json:"imageUrl"`
	Message  string `json:"message"`
}

type updateItemResponse struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Item    domain.ItemUpdate `json:"item"`
}

// ListItems fetches a page of the public listing. An anonymous caller
// whose request fails gets an empty page instead of an error.
func (g *Gateway) ListItems(ctx context.Context, filter domain.ListFilter) (*domain.ItemPage, error) {
	filter = filter.Normalize()
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	snap := g.session.Snapshot()
	var page domain.ItemPage
	err := g.do(ctx, snap, call{
		op:     OpListItems,
		access: AccessPublic,
		method: http.MethodGet,
		path:   "/items",
		query:  filter.Query(),
		out:    &page,
	})
	if err != nil {
		if snap.IsAuthenticated() {
			return nil, err
		}
		g.logger.WithError(err).WarnContext(ctx, "listing unavailable, showing no items")
		return &domain.ItemPage{Items: []domain.Item{}}, nil
	}
	if page.Items == nil {
		page.Items = []domain.Item{}
	}
	return &page, nil
}

// AttachImage reads path and checks it against the image policy
func (g *Gateway) AttachImage(path string) (*Image, error) {
	img, err := g.images.PrepareImageFile(path)
	if err != nil {
		g.metrics.ObserveImageRejection(rejectionReason(err))
		return nil, err
	}
	return img, nil
}

// CreateItem posts a new listing, optionally with an attached image
func (g *Gateway) CreateItem(ctx context.Context, draft domain.ItemDraft, image *Image) (*domain.CreatedItem, error) {
	if err := draft.Validate(g.clock()); err != nil {
		return nil, err
	}
	req := createItemRequest{ItemDraft: draft}
	if image != nil {
		if err := g.recheckImage(image); err != nil {
			return nil, err
		}
		req.ImageBase64 = image.DataURI
	}

	var resp createItemResponse
	err := g.do(ctx, g.session.Snapshot(), call{
		op:     OpCreateItem,
		access: AccessAuthenticated,
		method: http.MethodPost,
		path:   "/items",
		body:   req,
		out:    &resp,
	})
	if err != nil {
		return nil, err
	}
	if resp.ID == "" {
		return nil, errors.New(errors.KindUnknown, errors.ErrCodeAPIUnexpected, "create item: response carries no item id")
	}
	return &domain.CreatedItem{ID: resp.ID, ImageURL: resp.ImageURL, Message: resp.Message}, nil
}

// recheckImage applies the policy to an image prepared elsewhere
func (g *Gateway) recheckImage(image *Image) error {
	p := g.images
	var rej *imageRejection
	switch {
	case image.Size <= 0 || !strings.HasPrefix(image.DataURI, "data:"):
		rej = &imageRejection{reason: rejectEmpty, err: errors.New(errors.KindValidation,
			errors.ErrCodeInputInvalid, fmt.Sprintf("image %s is empty", image.Name))}
	case image.Size > p.MaxBytes:
		rej = p.tooLarge(image.Name, image.Size)
	case !slices.Contains(p.AllowedTypes, image.ContentType):
		rej = &imageRejection{reason: rejectType, err: errors.New(errors.KindValidation,
			errors.ErrCodeInputImageType, fmt.Sprintf("image %s has unsupported type %s", image.Name, image.ContentType))}
	}
	if rej != nil {
		g.metrics.ObserveImageRejection(rej.reason)
		return rej.err
	}
	return nil
}

// SetItemResolved marks one of the caller's items resolved or reopens it
func (g *Gateway) SetItemResolved(ctx context.Context, id string, resolved bool) (*domain.ItemUpdate, error) {
	if err := requireID(id); err != nil {
		return nil, err
	}
	var resp updateItemResponse
	err := g.do(ctx, g.session.Snapshot(), call{
		op:     OpSetItemResolved,
		access: AccessAuthenticated,
		method: http.MethodPatch,
		path:   "/items/id",
		query:  url.Values{"id": {id}},
		body:   map[string]bool{"resolved": resolved},
		out:    &resp,
	})
	if err != nil {
		return nil, err
	}
	update := resp.Item
	if update.ID == "" {
		update = domain.ItemUpdate{ID: id, Resolved: resolved}
	}
	return &update, nil
}

// DeleteItem removes an item. Owners may delete their own, admins any.
func (g *Gateway) DeleteItem(ctx context.Context, id string) error {
	if err := requireID(id); err != nil {
		return err
	}
	return g.do(ctx, g.session.Snapshot(), call{
		op:     OpDeleteItem,
		access: AccessAuthenticated,
		method: http.MethodDelete,
		path:   "/items/id",
		query:  url.Values{"id": {id}},
	})
}

func requireID(id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.Validation("missing required field: id")
	}
	return nil
}

// rejectionReason recovers the metric label of an image failure
func rejectionReason(err error) string {
	f, ok := errors.As(err)
	if !ok {
		return "unknown"
	}
	switch f.Code {
	case errors.ErrCodeInputImageTooBig:
		return rejectTooLarge
	case errors.ErrCodeInputImageType:
		return rejectType
	case errors.ErrCodeFileReadFailed:
		return "unreadable"
	default:
		return rejectEmpty
	}
}
