package auth

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/felixgeelhaar/lostfound/internal/errors"
)

// GroupsClaim is the claim carrying the user's group labels.
const GroupsClaim = "cognito:groups"

// Claims is the decoded identity payload of a bearer token.
type Claims struct {
	Subject     string
	Email       string
	DisplayName string
	Groups      []string
	Attributes  map[string]string
}

// DecodeClaims extracts identity claims from a JWT without checking its
// signature. The token is treated as untrusted input: a missing subject is
// an error, but missing or malformed optional claims only leave the
// corresponding field empty.
func DecodeClaims(raw string) (*Claims, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, errors.New(errors.KindUnauthenticated, errors.ErrCodeAuthTokenInvalid, "token is empty")
	}

	mc := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, mc); err != nil {
		return nil, errors.Wrap(errors.KindUnauthenticated, errors.ErrCodeAuthTokenInvalid, "token is malformed", err)
	}

	sub := stringClaim(mc, "sub")
	if sub == "" {
		return nil, errors.New(errors.KindUnauthenticated, errors.ErrCodeAuthTokenInvalid, "token has no subject")
	}

	c := &Claims{
		Subject:    sub,
		Email:      stringClaim(mc, "email"),
		Groups:     parseGroups(mc[GroupsClaim]),
		Attributes: make(map[string]string),
	}
	c.DisplayName = displayName(stringClaim(mc, "name"), c.Email, stringClaim(mc, "cognito:username"), sub)

	for k, v := range mc {
		switch k {
		case "sub", "email", "name", GroupsClaim:
			continue
		}
		if s, ok := v.(string); ok {
			c.Attributes[k] = s
		}
	}
	return c, nil
}

func stringClaim(mc jwt.MapClaims, key string) string {
	s, _ := mc[key].(string)
	return strings.TrimSpace(s)
}

// displayName picks the first usable name: the name claim, the local part
// of the email, the username, then the subject.
func displayName(name, email, username, sub string) string {
	if name != "" {
		return name
	}
	if local, _, ok := strings.Cut(email, "@"); ok && local != "" {
		return local
	}
	if username != "" {
		return username
	}
	return sub
}

// parseGroups accepts a JSON array of strings, a comma or space separated
// string, or a bracketed "[A, B]" string. Anything else is no groups.
func parseGroups(v any) []string {
	var raw []string
	switch g := v.(type) {
	case []any:
		for _, item := range g {
			s, ok := item.(string)
			if !ok {
				return nil
			}
			raw = append(raw, s)
		}
	case []string:
		raw = g
	case string:
		s := strings.TrimSpace(g)
		s = strings.TrimPrefix(s, "[")
		s = strings.TrimSuffix(s, "]")
		raw = strings.FieldsFunc(s, func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t' || r == '\n'
		})
	default:
		return nil
	}

	seen := make(map[string]bool, len(raw))
	groups := make([]string, 0, len(raw))
	for _, s := range raw {
		s = strings.Trim(strings.TrimSpace(s), `"'`)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		groups = append(groups, s)
	}
	if len(groups) == 0 {
		return nil
	}
	return groups
}
