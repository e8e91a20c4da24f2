package endpoint

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sidekick-live/sidekick-go/internal/logging"
	"github.com/sidekick-live/sidekick-go/internal/transport"
)

// defaultDialTimeout bounds each individual connection attempt.
const defaultDialTimeout = 5 * time.Second

// Result reports which endpoint accepted the connection.
type Result struct {
	// Transport is the connected transport. The caller owns it.
	Transport transport.Transport
	// ServerName is the name of the winning endpoint.
	ServerName string
	// UIURL is the (possibly tokenized) companion UI URL, if any.
	UIURL string
	// ShowUIURL indicates the UI URL should be surfaced to the user.
	ShowUIURL bool
}

// Attempt records one failed connection attempt.
type Attempt struct {
	Name string
	URL  string
	Err  error
}

// AllFailedError aggregates every attempted endpoint and its failure
// reason, so activation failures explain themselves instead of surfacing
// only the last attempt.
type AllFailedError struct {
	Attempts []Attempt
}

func (e *AllFailedError) Error() string {
	var b strings.Builder
	b.WriteString("could not reach any Sidekick server:")
	for _, a := range e.Attempts {
		fmt.Fprintf(&b, "\n  %s (%s): %v", a.Name, a.URL, a.Err)
	}
	b.WriteString("\nis the Sidekick UI running?")
	return b.String()
}

// Connector tries candidate endpoints in order until one accepts.
type Connector struct {
	// Endpoints is the ordered candidate list. Defaults to DefaultList.
	Endpoints []Descriptor
	// Override, if set, fully replaces Endpoints and is tried exclusively.
	Override string
	// DialTimeout bounds each connection attempt.
	DialTimeout time.Duration

	// NewTransport builds the transport for one URL. Defaults to the
	// WebSocket transport; tests substitute their own.
	NewTransport func(url string, cbs transport.Callbacks) transport.Transport
}

func (c *Connector) newTransport(url string, cbs transport.Callbacks) transport.Transport {
	if c.NewTransport != nil {
		return c.NewTransport(url, cbs)
	}
	return transport.NewWebSocket(url, cbs)
}

func (c *Connector) dialTimeout() time.Duration {
	if c.DialTimeout > 0 {
		return c.DialTimeout
	}
	return defaultDialTimeout
}

// Connect walks the endpoint list in order and returns the first
// connected transport. With an override set, only the override is tried
// and its failure is final (no fallback to the default list).
func (c *Connector) Connect(ctx context.Context, cbs transport.Callbacks) (*Result, error) {
	logger := logging.Endpoint()

	if c.Override != "" {
		if err := ValidateOverride(c.Override); err != nil {
			return nil, err
		}
		logger.Debug("trying override server", "url", c.Override)
		tr, err := c.dial(ctx, c.Override, cbs)
		if err != nil {
			return nil, fmt.Errorf("endpoint: connection to %s refused: %w", c.Override, err)
		}
		return &Result{Transport: tr, ServerName: "override"}, nil
	}

	endpoints := c.Endpoints
	if endpoints == nil {
		endpoints = DefaultList()
	}

	var attempts []Attempt
	for _, d := range endpoints {
		if d.RequiresToken {
			var err error
			d, err = d.Tokenize(NewSessionToken())
			if err != nil {
				attempts = append(attempts, Attempt{Name: d.Name, URL: d.WSURL, Err: err})
				continue
			}
		}

		logger.Debug("trying server", "name", d.Name, "url", d.WSURL)
		tr, err := c.dial(ctx, d.WSURL, cbs)
		if err != nil {
			logger.Debug("server unavailable", "name", d.Name, "error", err)
			attempts = append(attempts, Attempt{Name: d.Name, URL: d.WSURL, Err: err})
			continue
		}

		logger.Info("connected", "name", d.Name, "url", d.WSURL)
		return &Result{
			Transport:  tr,
			ServerName: d.Name,
			UIURL:      d.UIURL,
			ShowUIURL:  d.ShowUIURL,
		}, nil
	}

	return nil, &AllFailedError{Attempts: attempts}
}

// dial connects one transport with the per-attempt timeout applied.
func (c *Connector) dial(ctx context.Context, url string, cbs transport.Callbacks) (transport.Transport, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.dialTimeout())
	defer cancel()

	tr := c.newTransport(url, cbs)
	if err := tr.Connect(dialCtx); err != nil {
		tr.Close()
		return nil, err
	}
	return tr, nil
}
