package sidekick

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sidekick-live/sidekick-go/internal/config"
	"github.com/sidekick-live/sidekick-go/internal/endpoint"
	"github.com/sidekick-live/sidekick-go/internal/engine"
	"github.com/sidekick-live/sidekick-go/internal/logging"
	"github.com/sidekick-live/sidekick-go/internal/transport"
	"github.com/sidekick-live/sidekick-go/message"
)

// Version is the Hero version string announced to the Sidekick UI.
const Version = "0.9.0"

// Handler receives messages addressed to one instance id. Handlers run
// on the session's dispatch goroutine and must not block; offload long
// work to your own goroutine.
type Handler = engine.Handler

// Status is the session lifecycle state.
type Status = engine.Status

// Session states.
const (
	StatusIdle             = engine.StatusIdle
	StatusActivating       = engine.StatusActivating
	StatusActive           = engine.StatusActive
	StatusFailed           = engine.StatusFailed
	StatusShuttingDown     = engine.StatusShuttingDown
	StatusShutdownComplete = engine.StatusShutdownComplete
)

// Errors re-exported from the session engine.
var (
	ErrDuplicateHandler    = engine.ErrDuplicateHandler
	ErrWaitTimeout         = engine.ErrWaitTimeout
	ErrUIWaitTimeout       = engine.ErrUIWaitTimeout
	ErrBlockingUnsupported = engine.ErrBlockingUnsupported
	ErrShutdown            = engine.ErrShutdown
	ErrConnectionLost      = engine.ErrConnectionLost
)

// Config is the programmatic library configuration. It applies to the
// next session created; changing it while a session is live is an error.
type Config struct {
	// URL overrides the built-in server list with a single ws:// or
	// wss:// URL, tried exclusively.
	URL string
	// ClearOnConnect controls whether stale UI state is cleared during
	// the handshake. Nil means on.
	ClearOnConnect *bool
	// UIWaitTimeout bounds how long activation waits for the Sidekick
	// panel to come online. Zero uses the default (3 minutes).
	UIWaitTimeout time.Duration
	// Logging configures the library logger.
	Logging *logging.Config
}

// global holds the one session per process. Lazily constructed, torn
// down on Shutdown; a later activation builds a brand-new engine.
var global struct {
	mu   sync.Mutex
	eng  *engine.Engine
	cfg  Config
	file *config.Settings

	// bridge, when set by UseBridge, replaces endpoint selection.
	bridge         *transport.Bridge
	bridgeExternal bool
}

// obtain returns the live engine, building one lazily. A shut-down
// engine is never reused.
func obtain() *engine.Engine {
	global.mu.Lock()
	defer global.mu.Unlock()
	return obtainLocked()
}

func obtainLocked() *engine.Engine {
	if global.eng != nil && global.eng.Status() != StatusShutdownComplete {
		return global.eng
	}
	global.eng = engine.New(buildEngineConfig())
	return global.eng
}

// buildEngineConfig merges programmatic config over the settings file.
// Call with global.mu held.
func buildEngineConfig() engine.Config {
	if global.file == nil {
		s, err := config.Load()
		if err != nil {
			logging.Facade().Warn("settings file ignored", "error", err)
			s = &config.Settings{}
		}
		global.file = s
	}

	cfg := engine.Config{
		Version:        Version,
		ClearOnConnect: global.cfg.ClearOnConnect,
		UIWaitTimeout:  global.cfg.UIWaitTimeout,
	}
	if cfg.ClearOnConnect == nil {
		cfg.ClearOnConnect = global.file.ClearOnConnect
	}
	if cfg.UIWaitTimeout == 0 {
		if d, err := global.file.UIWait(); err == nil {
			cfg.UIWaitTimeout = d
		} else {
			logging.Facade().Warn("invalid uiWaitTimeout in settings", "error", err)
		}
	}

	if global.bridge != nil {
		bridge := global.bridge
		cfg.ExternalLoop = global.bridgeExternal
		cfg.BridgeFactory = func(cbs transport.Callbacks) transport.Transport {
			bridge.SetCallbacks(cbs)
			return bridge
		}
		return cfg
	}

	override := global.cfg.URL
	if override == "" {
		override = global.file.ServerURL
	}
	cfg.Connector = &endpoint.Connector{Override: override}
	return cfg
}

// Configure applies programmatic configuration. It must be called before
// the session activates; configuring a live session is an error.
func Configure(cfg Config) error {
	if cfg.URL != "" {
		if err := endpoint.ValidateOverride(cfg.URL); err != nil {
			return err
		}
	}

	global.mu.Lock()
	defer global.mu.Unlock()
	if global.eng != nil {
		switch global.eng.Status() {
		case StatusIdle, StatusShutdownComplete:
		default:
			return fmt.Errorf("sidekick: cannot reconfigure a session that is %s", global.eng.Status())
		}
	}
	global.cfg = cfg
	if cfg.URL != "" {
		// An explicit server URL reinstates endpoint selection over a
		// previously installed bridge.
		global.bridge = nil
		global.bridgeExternal = false
	}
	// Force the next obtain to build a fresh engine with the new config.
	// A terminal engine is dropped too, so status queries report the
	// fresh session rather than the dead one.
	if global.eng != nil {
		switch global.eng.Status() {
		case StatusIdle:
			global.eng.Shutdown(false)
			global.eng = nil
		case StatusShutdownComplete:
			global.eng = nil
		}
	}
	if cfg.Logging != nil {
		if err := logging.Initialize(*cfg.Logging); err != nil {
			return err
		}
	}
	return nil
}

// SetURL overrides the server list with a single URL (ws:// or wss://).
// Shorthand for Configure(Config{URL: url}).
func SetURL(url string) error {
	return Configure(Config{URL: url})
}

// Activate starts connecting to a Sidekick server in the background.
// Idempotent; it returns immediately. Sends issued before the session is
// ready are queued and flushed, in order, once it is.
func Activate() {
	obtain().Activate()
}

// WaitUntilActive blocks until the session is Active, activation fails,
// or the timeout expires. It triggers activation if needed. The returned
// error is the true activation failure when there is one, ErrWaitTimeout
// when only the caller's own timeout expired. Must not be called from a
// handler.
func WaitUntilActive(timeout time.Duration) error {
	return obtain().WaitUntilActive(timeout)
}

// ActiveChan is the non-blocking activation waiter: the returned channel
// receives nil once the session is Active, or the failure cause. Safe
// from any context, including handlers and external-loop hosts.
func ActiveChan() <-chan error {
	return obtain().ActiveChan()
}

// Send queues or transmits one message. It triggers activation if the
// session is still idle. The only synchronous errors are caller bugs
// (malformed messages); transmission problems are logged, not returned.
func Send(msg message.Message) error {
	return obtain().Send(msg)
}

// RegisterHandler installs the callback receiving events and errors for
// one instance id. Registering an id twice returns ErrDuplicateHandler.
func RegisterHandler(id string, h Handler) error {
	return obtain().RegisterHandler(id, h)
}

// UnregisterHandler removes the callback for an instance id.
func UnregisterHandler(id string) {
	obtain().UnregisterHandler(id)
}

// RegisterGlobalHandler installs a callback that sees every inbound
// message before per-instance dispatch. Nil removes it.
func RegisterGlobalHandler(h Handler) {
	obtain().RegisterGlobalHandler(h)
}

// ClearAll asks the UI to remove every spawned component. A no-op unless
// the session is Active.
func ClearAll() {
	obtain().ClearAll()
}

// CurrentStatus returns the session status snapshot.
func CurrentStatus() Status {
	global.mu.Lock()
	e := global.eng
	global.mu.Unlock()
	if e == nil {
		return StatusIdle
	}
	return e.Status()
}

// UIURL returns the companion UI URL for the connected server and
// whether it is meant to be shown to the user. Empty before connection.
func UIURL() (string, bool) {
	global.mu.Lock()
	e := global.eng
	global.mu.Unlock()
	if e == nil {
		return "", false
	}
	info := e.Info()
	return info.UIURL, info.ShowUIURL
}

// Shutdown tears the session down: offline announce (best effort),
// transport close, all handlers dropped. Idempotent. With wait set, it
// blocks until the session loop has fully stopped.
func Shutdown(wait bool) {
	global.mu.Lock()
	e := global.eng
	global.mu.Unlock()
	if e == nil {
		return
	}
	e.Shutdown(wait)
}

// RunForever blocks the calling goroutine until the session shuts down:
// by user code calling Shutdown, by SIGINT/SIGTERM, or by an
// unrecoverable failure of an active session. It then performs shutdown
// if not already done. Typically the last line of a Hero program.
func RunForever() {
	e := obtain()
	e.Activate()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	logger := logging.Facade()
	select {
	case <-e.Done():
		return
	case sig := <-sigCh:
		logger.Info("signal received, shutting down", "signal", sig.String())
	case err := <-e.Fatal():
		logger.Error("session died, shutting down", "error", err)
	}
	e.Shutdown(true)
}

// BridgePeer is the host-side handle of an in-process bridge session:
// the embedded host reads the Hero's frames from Frames and injects UI
// frames with Inject.
type BridgePeer = transport.BridgePeer

// UseBridge switches the session to the in-process bridge transport for
// embedded/sandboxed hosts, replacing endpoint selection entirely. It
// must be called before activation. With externalLoop set, blocking
// waiters fail fast with ErrBlockingUnsupported instead of deadlocking
// the host's only goroutine.
//
// A bridge session is single-shot: if it fails, the process needs a new
// bridge.
func UseBridge(externalLoop bool) (*BridgePeer, error) {
	global.mu.Lock()
	defer global.mu.Unlock()

	if global.eng != nil {
		switch global.eng.Status() {
		case StatusIdle, StatusShutdownComplete:
		default:
			return nil, fmt.Errorf("sidekick: cannot switch transport on a session that is %s", global.eng.Status())
		}
		if global.eng.Status() == StatusIdle {
			global.eng.Shutdown(false)
		}
		global.eng = nil
	}

	bridge, peer := transport.NewBridge(transport.Callbacks{})
	global.bridge = bridge
	global.bridgeExternal = externalLoop
	return peer, nil
}
