package cdpcontrol

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/goccy/go-json"
)

var errConnClosed = errors.New("rawcdp: connection closed")

// rawCDP speaks CDP over one browser-level WebSocket. chromedp's session
// bootstrap is skipped since it auto-attaches to every worker of the page.
type rawCDP struct {
	endpoint string
	client   *http.Client
	onEvent  func(method, sessionID string, params []byte)

	connMu  sync.Mutex
	conn    net.Conn
	writeMu sync.Mutex
	nextID  atomic.Int64

	callsMu sync.Mutex
	calls   map[int64]chan frame
}

// frame is any message read from the socket: a reply carries ID, an event
// carries Method.
type frame struct {
	ID        int64           `json:"id"`
	Method    string          `json:"method"`
	SessionID string          `json:"sessionId"`
	Params    json.RawMessage `json:"params"`
	Result    json.RawMessage `json:"result"`
	Error     *frameError     `json:"error"`
}

type frameError struct {
	Code    int64  `json:"code"`
	Message string `json:"message"`
}

func (e *frameError) Error() string {
	return fmt.Sprintf("cdp error %d: %s", e.Code, e.Message)
}

type command struct {
	ID        int64  `json:"id"`
	Method    string `json:"method"`
	SessionID string `json:"sessionId,omitempty"`
	Params    any    `json:"params,omitempty"`
}

// newRawCDP prepares a client for the CDP HTTP endpoint. onEvent receives
// every event frame on the read loop and must not block.
func newRawCDP(endpoint string, onEvent func(method, sessionID string, params []byte)) *rawCDP {
	return &rawCDP{
		endpoint: strings.TrimRight(endpoint, "/"),
		onEvent:  onEvent,
		calls:    make(map[int64]chan frame),
	}
}

func (r *rawCDP) httpClient() *http.Client {
	if r.client != nil {
		return r.client
	}
	return http.DefaultClient
}

func (r *rawCDP) connect(ctx context.Context) error {
	r.connMu.Lock()
	defer r.connMu.Unlock()
	if r.conn != nil {
		return nil
	}

	wsURL, err := r.browserWSURL(ctx)
	if err != nil {
		return fmt.Errorf("rawcdp: browser ws url: %w", err)
	}
	conn, _, _, err := ws.Dial(ctx, wsURL)
	if err != nil {
		return fmt.Errorf("rawcdp: dial %s: %w", wsURL, err)
	}
	slog.Debug("rawcdp connected", "ws_url", wsURL)

	r.conn = conn
	go r.readLoop(conn)
	return nil
}

func (r *rawCDP) close() {
	r.connMu.Lock()
	defer r.connMu.Unlock()
	if r.conn != nil {
		_ = r.conn.Close()
		r.conn = nil
	}
}

func (r *rawCDP) readLoop(conn net.Conn) {
	defer r.failCalls()
	for {
		data, err := wsutil.ReadServerText(conn)
		if err != nil {
			slog.Debug("rawcdp read loop exit", "error", err)
			return
		}
		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			slog.Debug("rawcdp undecodable frame", "error", err)
			continue
		}
		switch {
		case f.ID != 0:
			if ch := r.takeCall(f.ID); ch != nil {
				ch <- f
			}
		case f.Method != "" && r.onEvent != nil:
			r.onEvent(f.Method, f.SessionID, f.Params)
		}
	}
}

func (r *rawCDP) takeCall(id int64) chan frame {
	r.callsMu.Lock()
	defer r.callsMu.Unlock()
	ch := r.calls[id]
	delete(r.calls, id)
	return ch
}

func (r *rawCDP) failCalls() {
	r.callsMu.Lock()
	defer r.callsMu.Unlock()
	for id, ch := range r.calls {
		close(ch)
		delete(r.calls, id)
	}
}

// call sends method on sessionID (empty for the browser) and decodes the
// result into out when out is non-nil.
func (r *rawCDP) call(ctx context.Context, sessionID, method string, params, out any) error {
	r.connMu.Lock()
	conn := r.conn
	r.connMu.Unlock()
	if conn == nil {
		return errors.New("rawcdp: not connected")
	}

	cmd := command{ID: r.nextID.Add(1), Method: method, SessionID: sessionID, Params: params}
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("rawcdp: %s: encode: %w", method, err)
	}

	reply := make(chan frame, 1)
	r.callsMu.Lock()
	r.calls[cmd.ID] = reply
	r.callsMu.Unlock()

	r.writeMu.Lock()
	err = wsutil.WriteClientText(conn, payload)
	r.writeMu.Unlock()
	if err != nil {
		r.takeCall(cmd.ID)
		return fmt.Errorf("rawcdp: %s: send: %w", method, err)
	}

	select {
	case f, ok := <-reply:
		if !ok {
			return errConnClosed
		}
		if f.Error != nil {
			return fmt.Errorf("rawcdp: %s: %w", method, f.Error)
		}
		if out == nil || len(f.Result) == 0 {
			return nil
		}
		if err := json.Unmarshal(f.Result, out); err != nil {
			return fmt.Errorf("rawcdp: %s: decode result: %w", method, err)
		}
		return nil
	case <-ctx.Done():
		r.takeCall(cmd.ID)
		return ctx.Err()
	}
}

func (r *rawCDP) attachToTarget(ctx context.Context, targetID string) (string, error) {
	var res struct {
		SessionID string `json:"sessionId"`
	}
	params := target.AttachToTarget(target.ID(targetID)).WithFlatten(true)
	if err := r.call(ctx, "", target.CommandAttachToTarget, params, &res); err != nil {
		return "", err
	}
	if res.SessionID == "" {
		return "", errors.New("rawcdp: attach returned empty session")
	}
	return res.SessionID, nil
}

func (r *rawCDP) detachFromTarget(ctx context.Context, sessionID string) error {
	params := target.DetachFromTarget().WithSessionID(target.SessionID(sessionID))
	return r.call(ctx, "", target.CommandDetachFromTarget, params, nil)
}

// evaluate runs js on the session and returns its string result.
func (r *rawCDP) evaluate(ctx context.Context, sessionID, js string) (string, error) {
	var res struct {
		Result struct {
			Type  string          `json:"type"`
			Value json.RawMessage `json:"value"`
		} `json:"result"`
		ExceptionDetails *struct {
			Text      string `json:"text"`
			Exception *struct {
				Description string `json:"description"`
			} `json:"exception"`
		} `json:"exceptionDetails"`
	}
	params := runtime.Evaluate(js).WithReturnByValue(true).WithAwaitPromise(true)
	if err := r.call(ctx, sessionID, runtime.CommandEvaluate, params, &res); err != nil {
		return "", err
	}
	if ex := res.ExceptionDetails; ex != nil {
		msg := ex.Text
		if ex.Exception != nil && ex.Exception.Description != "" {
			msg = ex.Exception.Description
		}
		return "", fmt.Errorf("rawcdp: eval exception: %s", msg)
	}
	if res.Result.Type != "string" {
		return string(res.Result.Value), nil
	}
	var s string
	if err := json.Unmarshal(res.Result.Value, &s); err != nil {
		return "", fmt.Errorf("rawcdp: eval result: %w", err)
	}
	return s, nil
}

// addBinding exposes window.<name>(payload), reported as Runtime.bindingCalled.
func (r *rawCDP) addBinding(ctx context.Context, sessionID, name string) error {
	if err := r.call(ctx, sessionID, runtime.CommandEnable, runtime.Enable(), nil); err != nil {
		return err
	}
	return r.call(ctx, sessionID, runtime.CommandAddBinding, runtime.AddBinding(name), nil)
}

func (r *rawCDP) enablePageDomain(ctx context.Context, sessionID string) error {
	return r.call(ctx, sessionID, page.CommandEnable, page.Enable(), nil)
}

// dispatchMouseClick presses and releases the left button at x,y.
func (r *rawCDP) dispatchMouseClick(ctx context.Context, sessionID string, x, y float64) error {
	for _, typ := range []input.MouseType{input.MousePressed, input.MouseReleased} {
		params := input.DispatchMouseEvent(typ, x, y).WithButton(input.Left).WithClickCount(1)
		if err := r.call(ctx, sessionID, input.CommandDispatchMouseEvent, params, nil); err != nil {
			return err
		}
	}
	return nil
}
