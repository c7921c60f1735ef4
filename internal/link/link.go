// Package link builds the out-of-band bootstrap address a host shares with a
// client, "<base>?session=<host identity>", and renders it as a QR code.
package link

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Param is the query parameter carrying the host identity.
const Param = "session"

var (
	ErrMissingSession = errors.New("link: missing session parameter")
	ErrEmptyIdentity  = errors.New("link: empty identity")
	ErrInvalidBase    = errors.New("link: invalid base address")
)

// Build appends the session parameter to base, keeping any existing query.
func Build(base, identity string) (string, error) {
	if strings.TrimSpace(identity) == "" {
		return "", ErrEmptyIdentity
	}
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidBase, err)
	}
	q := u.Query()
	q.Set(Param, identity)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Parse extracts the host identity from a bootstrap link.
func Parse(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidBase, err)
	}
	id := strings.TrimSpace(u.Query().Get(Param))
	if id == "" {
		return "", ErrMissingSession
	}
	return id, nil
}
