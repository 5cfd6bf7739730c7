package domain

import (
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/felixgeelhaar/lostfound/internal/errors"
)

// DateLayout is the wire format of an item's date.
const DateLayout = "2006-01-02"

// Field limits enforced by the item handlers.
const (
	MinTitleLength       = 3
	MaxTitleLength       = 100
	MinLocationLength    = 3
	MaxLocationLength    = 100
	MaxDescriptionLength = 500
	MaxMessageLength     = 1000
)

// Listing page size bounds.
const (
	DefaultListLimit = 25
	MaxListLimit     = 50
)

// Item is a published lost or found listing.
type Item struct {
	ID          string     `json:"id" yaml:"id"`
	Title       string     `json:"title" yaml:"title"`
	Status      ItemStatus `json:"status" yaml:"status"`
	Category    string     `json:"category" yaml:"category"`
	Location    string     `json:"location" yaml:"location"`
	Date        string     `json:"date" yaml:"date"`
	Description string     `json:"description" yaml:"description"`
	ImageURL    string     `json:"img,omitempty" yaml:"img,omitempty"`
	Color       string     `json:"color,omitempty" yaml:"color,omitempty"`
	UserID      string     `json:"userId" yaml:"userId"`
	UserEmail   string     `json:"userEmail,omitempty" yaml:"userEmail,omitempty"`
	UserName    string     `json:"userName,omitempty" yaml:"userName,omitempty"`
	Resolved    bool       `json:"resolved,omitempty" yaml:"resolved,omitempty"`
	ResolvedAt  string     `json:"resolvedAt,omitempty" yaml:"resolvedAt,omitempty"`
	CreatedAt   string     `json:"createdAt,omitempty" yaml:"createdAt,omitempty"`
	UpdatedAt   string     `json:"updatedAt,omitempty" yaml:"updatedAt,omitempty"`
}

// ItemPage is one page of the public listing.
type ItemPage struct {
	Items   []Item `json:"items" yaml:"items"`
	Count   int    `json:"count" yaml:"count"`
	LastKey string `json:"lastKey,omitempty" yaml:"lastKey,omitempty"`
}

// ItemDraft is the user's input for a new listing.
type ItemDraft struct {
	Title       string     `json:"title"`
	Status      ItemStatus `json:"status"`
	Location    string     `json:"location"`
	Date        string     `json:"date"`
	Category    string     `json:"category"`
	Description string     `json:"description"`
	Color       string     `json:"color,omitempty"`

	// ImageURL references an already hosted image. An attached image
	// takes precedence.
	ImageURL string `json:"img,omitempty"`
}

// Validate checks the draft against the same rules the create handler
// applies, plus the date must not be later than today in now's location.
func (d ItemDraft) Validate(now time.Time) error {
	if err := requireLength("title", d.Title, MinTitleLength, MaxTitleLength); err != nil {
		return err
	}
	if err := d.Status.Validate(); err != nil {
		return err
	}
	if err := requireLength("location", d.Location, MinLocationLength, MaxLocationLength); err != nil {
		return err
	}
	if err := ValidateDate(d.Date, now); err != nil {
		return err
	}
	if strings.TrimSpace(d.Category) == "" {
		return errors.Validation("missing required field: category")
	}
	if strings.TrimSpace(d.Description) == "" {
		return errors.Validation("missing required field: description")
	}
	if utf8.RuneCountInString(d.Description) > MaxDescriptionLength {
		return errors.Validationf("description must be at most %d characters", MaxDescriptionLength)
	}
	return nil
}

// ValidateDate checks a YYYY-MM-DD date that must not be in the future.
func ValidateDate(value string, now time.Time) error {
	if strings.TrimSpace(value) == "" {
		return errors.Validation("missing required field: date")
	}
	date, err := time.ParseInLocation(DateLayout, value, now.Location())
	if err != nil {
		return errors.Validationf("date %q must use the format YYYY-MM-DD", value)
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if date.After(today) {
		return errors.Validationf("date %s is in the future", value)
	}
	return nil
}

func requireLength(field, value string, min, max int) error {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return errors.Validationf("missing required field: %s", field)
	}
	n := utf8.RuneCountInString(trimmed)
	if n < min || n > max {
		return errors.Validationf("%s must be between %d and %d characters", field, min, max)
	}
	return nil
}

// CreatedItem is the create handler's response.
type CreatedItem struct {
	ID       string `json:"id" yaml:"id"`
	ImageURL string `json:"imageUrl,omitempty" yaml:"imageUrl,omitempty"`
	Message  string `json:"message,omitempty" yaml:"message,omitempty"`
}

// ItemUpdate is the update handler's response.
type ItemUpdate struct {
	ID       string `json:"id" yaml:"id"`
	Resolved bool   `json:"resolved" yaml:"resolved"`
}

// ListFilter selects a page of the public listing.
type ListFilter struct {
	Limit    int
	Status   ItemStatus
	Category string
	LastKey  string
}

// Normalize applies the default page size.
func (f ListFilter) Normalize() ListFilter {
	if f.Limit == 0 {
		f.Limit = DefaultListLimit
	}
	f.Category = strings.TrimSpace(f.Category)
	return f
}

// Validate checks the filter after normalization
func (f ListFilter) Validate() error {
	if f.Limit < 1 || f.Limit > MaxListLimit {
		return errors.Validationf("limit must be between 1 and %d", MaxListLimit)
	}
	if f.Status != "" {
		if err := f.Status.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Query encodes the filter as listing query parameters
func (f ListFilter) Query() url.Values {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(f.Limit))
	if f.Status != "" {
		q.Set("status", string(f.Status))
	}
	if f.Category != "" {
		q.Set("category", f.Category)
	}
	if f.LastKey != "" {
		q.Set("lastKey", f.LastKey)
	}
	return q
}
