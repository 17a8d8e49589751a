package cdpcontrol

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/goccy/go-json"
)

// transientHints are substrings in error causes that indicate a transient
// failure worth retrying (e.g. broken connection, closed session).
var transientHints = []string{
	"context canceled",
	"target closed",
	"session closed",
	"websocket",
	"connection reset",
	"broken pipe",
	"eof",
	"connection refused",
	"connection closed",
	"cannot find context",
}

type tabSession struct {
	info      TabInfo
	mu        sync.Mutex
	sessionID string // CDP session ID from Target.attachToTarget
}

// Client drives the single exchange history tab matched by tabFilter.
type Client struct {
	cdpURL      string
	tabFilter   string
	evalTimeout time.Duration

	mu  sync.Mutex
	cdp *rawCDP
	tab *tabSession

	// evalMu serialises evaluations; the page runs one script at a time anyway.
	evalMu sync.Mutex

	bindingMu  sync.Mutex
	bindings   map[string]struct{}
	pageEvents bool

	events eventBus
}

type evalEnvelope struct {
	OK           bool            `json:"ok"`
	Data         json.RawMessage `json:"data,omitempty"`
	ErrorCode    string          `json:"error_code,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

func NewClient(cdpURL, tabFilter string, evalTimeout time.Duration) *Client {
	return &Client{
		cdpURL:      cdpURL,
		tabFilter:   strings.ToLower(strings.TrimSpace(tabFilter)),
		evalTimeout: evalTimeout,
		bindings:    make(map[string]struct{}),
	}
}

func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *Client) connectLocked(ctx context.Context) error {
	if c.cdpURL == "" {
		return newError(CodeCDPUnavailable, "missing CDP URL", nil)
	}

	slog.Info("cdpcontrol connect start", "cdp_url", c.cdpURL)
	c.cleanupLocked()

	c.cdp = newRawCDP(c.cdpURL, c.events.dispatch)
	if err := c.cdp.connect(ctx); err != nil {
		c.cdp = nil
		return newError(CodeCDPUnavailable, "connect to CDP failed", err)
	}

	if err := c.syncTabLocked(ctx); err != nil {
		slog.Error("cdpcontrol initial tab sync failed", "error", err)
		c.cleanupLocked()
		return err
	}

	slog.Info("cdpcontrol connect ok", "cdp_url", c.cdpURL, "target_id", c.tab.info.TargetID, "url", c.tab.info.URL)
	return nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanupLocked()
	return nil
}

func (c *Client) cleanupLocked() {
	if c.cdp != nil {
		if c.tab != nil {
			c.tab.mu.Lock()
			if c.tab.sessionID != "" {
				ctx, cancel := context.WithTimeout(context.Background(), time.Second)
				if err := c.cdp.detachFromTarget(ctx, c.tab.sessionID); err != nil {
					slog.Debug("cdpcontrol detach cleanup failed", "session_id", c.tab.sessionID, "error", err)
				}
				cancel()
				c.tab.sessionID = ""
			}
			c.tab.mu.Unlock()
		}
		c.cdp.close()
		c.cdp = nil
	}
	c.tab = nil
}

// Tab returns the currently matched history tab.
func (c *Client) Tab(ctx context.Context) (TabInfo, error) {
	if err := c.ensureConnected(ctx); err != nil {
		return TabInfo{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tab == nil {
		return TabInfo{}, newError(CodeTabNotFound, "no history tab matched", nil)
	}
	return c.tab.info, nil
}

// Eval wraps body in an async IIFE, evaluates it on the history tab and
// decodes the envelope's data into out. One reconnect+retry on transient
// failures.
func (c *Client) Eval(ctx context.Context, body string, out any) error {
	c.evalMu.Lock()
	defer c.evalMu.Unlock()

	js := WrapAsync(body)
	err := c.evalOnce(ctx, js, out)
	if err == nil || !c.shouldRetry(err) {
		return err
	}

	slog.Warn("cdpcontrol eval retry after transient failure", "error", err)
	if recErr := c.reconnect(ctx); recErr != nil {
		slog.Error("cdpcontrol reconnect failed during retry", "error", recErr)
		return recErr
	}
	return c.evalOnce(ctx, js, out)
}

func (c *Client) evalOnce(ctx context.Context, js string, out any) error {
	cdp, session, err := c.session(ctx)
	if err != nil {
		return err
	}
	sessionID, err := c.ensureSession(ctx, cdp, session)
	if err != nil {
		return err
	}

	evalCtx, evalCancel := context.WithTimeout(ctx, c.evalTimeout)
	defer evalCancel()

	raw, err := cdp.evaluate(evalCtx, sessionID, js)
	if err != nil {
		slog.Warn("cdpcontrol eval failed", "target_id", session.info.TargetID, "error", err)
		// Reset session so a fresh attach happens on retry.
		session.mu.Lock()
		session.sessionID = ""
		session.mu.Unlock()

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(evalCtx.Err(), context.DeadlineExceeded) {
			return newError(CodeEvalTimeout, "evaluation timed out", err)
		}
		return newError(CodeEvalFailure, "evaluation failed", err)
	}
	return decodeEnvelope(raw, out)
}

func decodeEnvelope(raw string, out any) error {
	var env evalEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return newError(CodeEvalFailure, "invalid evaluation envelope", err)
	}
	if !env.OK {
		code := env.ErrorCode
		if code == "" {
			code = CodeEvalFailure
		}
		return newError(code, env.ErrorMessage, nil)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return newError(CodeEvalFailure, "invalid evaluation data", err)
	}
	return nil
}

// Click dispatches a trusted mouse click on the history tab.
func (c *Client) Click(ctx context.Context, x, y float64) error {
	cdp, session, err := c.session(ctx)
	if err != nil {
		return err
	}
	sessionID, err := c.ensureSession(ctx, cdp, session)
	if err != nil {
		return err
	}
	if err := cdp.dispatchMouseClick(ctx, sessionID, x, y); err != nil {
		return newError(CodeEvalFailure, "failed to dispatch trusted mouse click", err)
	}
	return nil
}

// AddBinding exposes window.<name> on the history tab. Bindings are
// remembered and re-added after a reconnect.
func (c *Client) AddBinding(ctx context.Context, name string) error {
	cdp, session, err := c.session(ctx)
	if err != nil {
		return err
	}
	sessionID, err := c.ensureSession(ctx, cdp, session)
	if err != nil {
		return err
	}
	if err := cdp.addBinding(ctx, sessionID, name); err != nil {
		return newError(CodeEvalFailure, "add binding failed", err)
	}
	c.bindingMu.Lock()
	c.bindings[name] = struct{}{}
	c.bindingMu.Unlock()
	return nil
}

// OnBinding subscribes to calls of window.<name>(payload). The subscription
// survives reconnects.
func (c *Client) OnBinding(name string, fn func(payload string)) func() {
	return c.events.on(string(cdproto.EventRuntimeBindingCalled), func(_ string, params []byte) {
		var ev runtime.EventBindingCalled
		if err := json.Unmarshal(params, &ev); err != nil {
			slog.Debug("cdpcontrol binding decode failed", "error", err)
			return
		}
		if ev.Name == name {
			fn(ev.Payload)
		}
	})
}

// OnPageLoad subscribes to Page.loadEventFired on the history tab. The page
// domain is re-enabled on every new session.
func (c *Client) OnPageLoad(ctx context.Context, fn func()) (func(), error) {
	cdp, session, err := c.session(ctx)
	if err != nil {
		return nil, err
	}
	sessionID, err := c.ensureSession(ctx, cdp, session)
	if err != nil {
		return nil, err
	}
	if err := cdp.enablePageDomain(ctx, sessionID); err != nil {
		return nil, newError(CodeEvalFailure, "enable page domain failed", err)
	}
	c.bindingMu.Lock()
	c.pageEvents = true
	c.bindingMu.Unlock()

	// Only the history tab's session has the page domain enabled.
	return c.events.on(string(cdproto.EventPageLoadEventFired), func(string, []byte) { fn() }), nil
}

func (c *Client) session(ctx context.Context) (*rawCDP, *tabSession, error) {
	if err := c.ensureConnected(ctx); err != nil {
		return nil, nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cdp == nil {
		return nil, nil, newError(CodeCDPUnavailable, "CDP client not connected", nil)
	}
	if c.tab == nil {
		return nil, nil, newError(CodeTabNotFound, "no history tab matched", nil)
	}
	return c.cdp, c.tab, nil
}

// ensureSession returns a CDP session ID for the tab, attaching if needed.
func (c *Client) ensureSession(ctx context.Context, cdp *rawCDP, session *tabSession) (string, error) {
	session.mu.Lock()
	defer session.mu.Unlock()

	if session.sessionID != "" {
		return session.sessionID, nil
	}

	sid, err := cdp.attachToTarget(ctx, session.info.TargetID)
	if err != nil {
		return "", newError(CodeCDPUnavailable, "attach to target failed", err)
	}
	session.sessionID = sid
	slog.Debug("cdpcontrol session attached", "target_id", session.info.TargetID, "session_id", sid)

	c.bindingMu.Lock()
	names := make([]string, 0, len(c.bindings))
	for name := range c.bindings {
		names = append(names, name)
	}
	pageEvents := c.pageEvents
	c.bindingMu.Unlock()
	for _, name := range names {
		if err := cdp.addBinding(ctx, sid, name); err != nil {
			slog.Warn("cdpcontrol rebind failed", "binding", name, "error", err)
		}
	}
	if pageEvents {
		if err := cdp.enablePageDomain(ctx, sid); err != nil {
			slog.Warn("cdpcontrol page events re-enable failed", "error", err)
		}
	}
	return sid, nil
}

func (c *Client) reconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *Client) syncTabLocked(ctx context.Context) error {
	if c.cdp == nil {
		return newError(CodeCDPUnavailable, "CDP client not connected", nil)
	}

	targets, err := c.cdp.listTargets(ctx)
	if err != nil {
		return newError(CodeCDPUnavailable, "failed to list targets", err)
	}

	info, ok := matchTab(targets, c.tabFilter)
	if !ok {
		return newError(CodeTabNotFound, "no page target matches "+c.tabFilter, nil)
	}
	if c.tab != nil && c.tab.info.TargetID == info.TargetID {
		c.tab.info = info
		return nil
	}
	c.tab = &tabSession{info: info}
	slog.Debug("cdpcontrol tab sync", "targets", len(targets), "target_id", info.TargetID)
	return nil
}

func matchTab(targets []*target.Info, filter string) (TabInfo, bool) {
	for _, t := range targets {
		if t == nil || t.Type != "page" {
			continue
		}
		if filter != "" && !strings.Contains(strings.ToLower(t.URL), filter) {
			continue
		}
		return TabInfo{TargetID: string(t.TargetID), URL: t.URL, Title: t.Title}, true
	}
	return TabInfo{}, false
}

func (c *Client) ensureConnected(ctx context.Context) error {
	c.mu.Lock()
	connected := c.cdp != nil && c.tab != nil
	c.mu.Unlock()
	if connected {
		return nil
	}
	return c.reconnect(ctx)
}

func (c *Client) shouldRetry(err error) bool {
	var coded *CodedError
	if !errors.As(err, &coded) {
		return false
	}

	switch coded.Code {
	case CodeCDPUnavailable:
		return true
	case CodeEvalFailure:
		if coded.Cause == nil {
			return false
		}
		cause := strings.ToLower(coded.Cause.Error())
		for _, hint := range transientHints {
			if strings.Contains(cause, hint) {
				return true
			}
		}
	}
	return false
}
