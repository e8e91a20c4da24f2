// Package endpoint holds the ordered list of candidate Sidekick servers
// and the logic that tries them until one accepts a connection.
//
// The default order is local-first: a Sidekick panel running on the
// user's machine always wins over the hosted fallback. A user-supplied
// override URL replaces the list entirely and is tried exclusively.
package endpoint

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// Descriptor describes one candidate server. Immutable.
type Descriptor struct {
	// Name is the human-readable identifier, e.g. "local" or "hosted".
	Name string
	// WSURL is the transport URL.
	WSURL string
	// UIURL is the companion page a human opens to see the panel. May be
	// empty for servers whose UI is already running (the local app).
	UIURL string
	// RequiresToken marks servers that correlate the transport connection
	// with a UI page through a per-session token.
	RequiresToken bool
	// ShowUIURL marks servers whose UI URL should be surfaced to the user.
	ShowUIURL bool
}

// Default Sidekick servers, in connection order.
const (
	LocalName  = "local"
	HostedName = "hosted"

	localWSURL   = "ws://localhost:5163"
	hostedWSURL  = "wss://app.sidekick.live/ws"
	hostedUIURL  = "https://app.sidekick.live/session"
)

// DefaultList returns the built-in endpoint order: the local panel first,
// the hosted fallback second.
func DefaultList() []Descriptor {
	return []Descriptor{
		{
			Name:  LocalName,
			WSURL: localWSURL,
		},
		{
			Name:          HostedName,
			WSURL:         hostedWSURL,
			UIURL:         hostedUIURL,
			RequiresToken: true,
			ShowUIURL:     true,
		},
	}
}

// ValidateOverride checks a user-supplied override URL. Only WebSocket
// schemes are accepted.
func ValidateOverride(raw string) error {
	if !strings.HasPrefix(raw, "ws://") && !strings.HasPrefix(raw, "wss://") {
		return fmt.Errorf("endpoint: invalid server URL %q: must start with ws:// or wss://", raw)
	}
	if _, err := url.Parse(raw); err != nil {
		return fmt.Errorf("endpoint: invalid server URL %q: %w", raw, err)
	}
	return nil
}

// NewSessionToken generates the random per-activation token spliced into
// tokenized endpoint URLs. Uniqueness matters, secrecy does not.
func NewSessionToken() string {
	return uuid.NewString()
}

// Tokenize returns a copy of the descriptor with the session token
// spliced into the transport URL (query parameter) and the UI URL (path
// segment). Descriptors that do not require a token are returned as-is.
func (d Descriptor) Tokenize(token string) (Descriptor, error) {
	if !d.RequiresToken {
		return d, nil
	}

	wsURL, err := url.Parse(d.WSURL)
	if err != nil {
		return Descriptor{}, fmt.Errorf("endpoint: parse %s URL: %w", d.Name, err)
	}
	q := wsURL.Query()
	q.Set("session", token)
	wsURL.RawQuery = q.Encode()
	d.WSURL = wsURL.String()

	if d.UIURL != "" {
		d.UIURL = strings.TrimRight(d.UIURL, "/") + "/" + token
	}
	return d, nil
}
