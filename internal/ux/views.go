package ux

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"

	"github.com/felixgeelhaar/lostfound/internal/domain"
	"github.com/felixgeelhaar/lostfound/internal/security"
)

// Account is the whoami view of the signed-in user.
type Account struct {
	UserID      string   `json:"userId" yaml:"userId"`
	Email       string   `json:"email" yaml:"email"`
	DisplayName string   `json:"displayName" yaml:"displayName"`
	Groups      []string `json:"groups" yaml:"groups"`
	Admin       bool     `json:"admin" yaml:"admin"`
}

// Notice is a one-line command result with optional detail lines.
type Notice struct {
	Message string   `json:"message" yaml:"message"`
	Details []string `json:"details,omitempty" yaml:"details,omitempty"`
}

const previewLength = 60

// Render returns the text view of a known result type
func Render(data any, s Styles) (string, bool) {
	switch v := data.(type) {
	case *domain.ItemPage:
		return renderItems(v, s), true
	case domain.ItemPage:
		return renderItems(&v, s), true
	case *domain.CreatedItem:
		return renderCreated(v, s), true
	case *domain.ItemUpdate:
		return renderUpdate(v, s), true
	case *domain.Inbox:
		return renderInbox(v, s), true
	case *domain.Delivery:
		return renderDelivery(v, s), true
	case []domain.UserRecord:
		return renderUsers(v, s), true
	case *domain.UserStatusResult:
		return renderUserStatus(v, s), true
	case []*security.AuditEvent:
		return renderAudit(v, s), true
	case *Account:
		return renderAccount(v, s), true
	case *Notice:
		return renderNotice(v, s), true
	case Notice:
		return renderNotice(&v, s), true
	default:
		return "", false
	}
}

func renderItems(page *domain.ItemPage, s Styles) string {
	if len(page.Items) == 0 {
		return s.Muted.Render("No items found.")
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(s.Border).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return s.Header
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Headers("ID", "STATUS", "TITLE", "CATEGORY", "LOCATION", "DATE", "POSTED")

	for _, item := range page.Items {
		title := item.Title
		if item.Resolved {
			title += " (resolved)"
		}
		t.Row(item.ID, statusLabel(item.Status, s), title, item.Category, item.Location, item.Date, relative(item.CreatedAt, s))
	}

	var b strings.Builder
	b.WriteString(t.Render())
	b.WriteString("\n")
	b.WriteString(s.Muted.Render(fmt.Sprintf("%s shown", plural(page.Count, "item"))))
	if page.LastKey != "" {
		b.WriteString("\n")
		b.WriteString(s.Muted.Render("More items available: --after " + strconv.Quote(page.LastKey)))
	}
	return b.String()
}

func renderCreated(c *domain.CreatedItem, s Styles) string {
	lines := []string{s.Success.Render("✓ " + orDefault(c.Message, "Item created"))}
	lines = append(lines, field(s, "ID", c.ID))
	if c.ImageURL != "" {
		lines = append(lines, field(s, "Image", c.ImageURL))
	}
	return strings.Join(lines, "\n")
}

func renderUpdate(u *domain.ItemUpdate, s Styles) string {
	if u.Resolved {
		return s.Success.Render(fmt.Sprintf("✓ Item %s marked as resolved", u.ID))
	}
	return s.Success.Render(fmt.Sprintf("✓ Item %s reopened", u.ID))
}

func renderInbox(inbox *domain.Inbox, s Styles) string {
	if len(inbox.Threads) == 0 {
		return s.Muted.Render("Your inbox is empty.")
	}

	var b strings.Builder
	b.WriteString(s.Title.Render(fmt.Sprintf("%s, %s, %d unread",
		plural(inbox.TotalThreads, "conversation"), plural(inbox.TotalMessages, "message"), inbox.UnreadCount)))
	for _, th := range inbox.Threads {
		b.WriteString("\n\n")
		head := fmt.Sprintf("%s with %s", orDefault(th.ItemTitle, th.ItemID), orDefault(th.OtherUserName, th.OtherUserID))
		if th.ItemStatus != "" {
			head = statusLabel(th.ItemStatus, s) + " " + head
		}
		if th.UnreadCount > 0 {
			head += " " + s.Warning.Render(fmt.Sprintf("(%d new)", th.UnreadCount))
		}
		b.WriteString(head)
		b.WriteString("\n")
		b.WriteString(field(s, "Thread", th.ThreadID))
		for _, m := range th.Messages {
			who := orDefault(m.SenderName, m.SenderUserID)
			if m.SenderUserID == th.OtherUserID {
				who = s.Title.Render(who)
			}
			line := fmt.Sprintf("  %s %s: %s", s.Muted.Render(relative(m.CreatedAt, s)), who, truncate(m.Body, previewLength))
			if !m.Read && m.SenderUserID == th.OtherUserID {
				line += " " + s.Warning.Render("•")
			}
			b.WriteString("\n")
			b.WriteString(line)
		}
	}
	return b.String()
}

func renderDelivery(d *domain.Delivery, s Styles) string {
	lines := []string{s.Success.Render("✓ " + orDefault(d.Message, "Message sent"))}
	if d.MessageID != "" {
		lines = append(lines, field(s, "Message", d.MessageID))
	}
	if d.ThreadID != "" {
		lines = append(lines, field(s, "Thread", d.ThreadID))
	}
	if d.RecipientEmail != "" {
		lines = append(lines, field(s, "Notified", d.RecipientEmail))
	}
	if d.Warning != "" {
		lines = append(lines, s.Warning.Render("! "+d.Warning))
	}
	return strings.Join(lines, "\n")
}

func renderUsers(users []domain.UserRecord, s Styles) string {
	if len(users) == 0 {
		return s.Muted.Render("No users found.")
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(s.Border).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return s.Header
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Headers("USERNAME", "EMAIL", "NAME", "STATUS", "ENABLED", "GROUPS", "CREATED")

	for _, u := range users {
		enabled := s.Success.Render("yes")
		if !u.Enabled {
			enabled = s.Error.Render("blocked")
		}
		t.Row(u.Username, u.Email, u.Name, u.Status, enabled, strings.Join(u.Groups, ","), relative(u.Created, s))
	}
	return t.Render() + "\n" + s.Muted.Render(plural(len(users), "user"))
}

func renderUserStatus(r *domain.UserStatusResult, s Styles) string {
	msg := r.Message
	if msg == "" {
		msg = fmt.Sprintf("User %s: %s done", r.Username, r.Action)
	}
	return s.Success.Render("✓ " + msg)
}

func renderAudit(events []*security.AuditEvent, s Styles) string {
	if len(events) == 0 {
		return s.Muted.Render("No audit events recorded.")
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(s.Border).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return s.Header
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Headers("WHEN", "EVENT", "RESOURCE", "ACTOR", "RESULT")

	for _, e := range events {
		result := s.Success.Render(e.Result)
		if e.Result != security.AuditSuccess {
			result = s.Error.Render(e.Result)
			if e.Reason != "" {
				result += " " + s.Muted.Render(truncate(e.Reason, previewLength))
			}
		}
		t.Row(humanize.RelTime(e.Timestamp, s.now(), "ago", "from now"), string(e.Type), e.Resource, e.Actor, result)
	}
	return t.Render() + "\n" + s.Muted.Render(plural(len(events), "event"))
}

func renderAccount(a *Account, s Styles) string {
	lines := []string{
		s.Title.Render(orDefault(a.DisplayName, a.Email)),
		field(s, "User ID", a.UserID),
		field(s, "Email", a.Email),
	}
	if len(a.Groups) > 0 {
		lines = append(lines, field(s, "Groups", strings.Join(a.Groups, ", ")))
	}
	if a.Admin {
		lines = append(lines, s.Warning.Render("Administrator"))
	}
	return strings.Join(lines, "\n")
}

func renderNotice(n *Notice, s Styles) string {
	lines := []string{s.Success.Render("✓ " + n.Message)}
	for _, d := range n.Details {
		lines = append(lines, "  "+s.Muted.Render(d))
	}
	return strings.Join(lines, "\n")
}

func statusLabel(status domain.ItemStatus, s Styles) string {
	switch status {
	case domain.StatusLost:
		return s.Lost.Render("LOST")
	case domain.StatusFound:
		return s.Found.Render("FOUND")
	default:
		return strings.ToUpper(string(status))
	}
}

func field(s Styles, label, value string) string {
	return s.Label.Render(label+":") + " " + value
}

// relative renders an RFC 3339 timestamp as "3 hours ago". Values that do
// not parse are shown unchanged.
func relative(value string, s Styles) string {
	if value == "" {
		return ""
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		t, err = time.Parse("2006-01-02T15:04:05.999999", value)
		if err != nil {
			return value
		}
	}
	return humanize.RelTime(t, s.now(), "ago", "from now")
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return humanize.Comma(int64(n)) + " " + noun + "s"
}

func truncate(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
