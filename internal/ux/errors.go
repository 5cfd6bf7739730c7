package ux

import (
	"fmt"
	"strings"

	"github.com/felixgeelhaar/lostfound/internal/errors"
)

// kindHeadlines are shown above the failure message.
var kindHeadlines = map[errors.Kind]string{
	errors.KindUnauthenticated: "Not signed in",
	errors.KindForbidden:       "Not allowed",
	errors.KindNotFound:        "Not found",
	errors.KindValidation:      "Invalid input",
	errors.KindNetwork:         "Server unreachable",
	errors.KindServerError:     "Server error",
	errors.KindUnknown:         "Unexpected response",
}

// FormatError renders err for the terminal. Failures show their kind,
// message and suggestions; the error code and cause are only shown when
// verbose is set.
func FormatError(err error, s Styles, verbose bool) string {
	if err == nil {
		return ""
	}

	f, ok := errors.As(err)
	if !ok {
		return s.Error.Render("Error:") + " " + err.Error()
	}

	var b strings.Builder
	b.WriteString(s.Error.Render(kindHeadlines[f.Kind] + ":"))
	b.WriteString(" ")
	b.WriteString(f.Message)
	if verbose {
		b.WriteString(s.Muted.Render(fmt.Sprintf(" [%s]", f.Code)))
		if f.Status != 0 {
			b.WriteString(s.Muted.Render(fmt.Sprintf(" (status %d)", f.Status)))
		}
		if f.Cause != nil {
			b.WriteString("\n")
			b.WriteString(s.Muted.Render("  cause: " + f.Cause.Error()))
		}
	}
	for _, suggestion := range f.Suggestions {
		b.WriteString("\n")
		b.WriteString(s.Warning.Render("  → " + suggestion))
	}
	return b.String()
}
