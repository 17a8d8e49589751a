package cdpcontrol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/gobwas/ws/wsutil"
)

// pipeCDP wires a rawCDP to an in-memory browser. serve handles each decoded
// command and returns the frames to write back.
func pipeCDP(t *testing.T, onEvent func(method, sessionID string, params []byte), serve func(id int64, method string, params json.RawMessage) []string) *rawCDP {
	t.Helper()
	browser, client := net.Pipe()
	t.Cleanup(func() {
		_ = browser.Close()
		_ = client.Close()
	})

	r := newRawCDP("http://example.com", onEvent)
	r.conn = client
	go r.readLoop(client)

	go func() {
		for {
			data, err := wsutil.ReadClientText(browser)
			if err != nil {
				return
			}
			var cmd struct {
				ID     int64           `json:"id"`
				Method string          `json:"method"`
				Params json.RawMessage `json:"params"`
			}
			if err := json.Unmarshal(data, &cmd); err != nil {
				return
			}
			for _, out := range serve(cmd.ID, cmd.Method, cmd.Params) {
				if err := wsutil.WriteServerText(browser, []byte(out)); err != nil {
					return
				}
			}
		}
	}()
	return r
}

func TestRawCDPAttachRoutesReplyAndEvents(t *testing.T) {
	events := make(chan string, 1)
	r := pipeCDP(t, func(method, _ string, _ []byte) { events <- method }, func(id int64, method string, params json.RawMessage) []string {
		if method != "Target.attachToTarget" {
			return []string{fmt.Sprintf(`{"id":%d,"error":{"code":-32601,"message":"unexpected %s"}}`, id, method)}
		}
		var p struct {
			TargetID string `json:"targetId"`
			Flatten  bool   `json:"flatten"`
		}
		_ = json.Unmarshal(params, &p)
		if p.TargetID != "page-1" || !p.Flatten {
			return []string{fmt.Sprintf(`{"id":%d,"error":{"code":1,"message":"bad params"}}`, id)}
		}
		return []string{
			`{"method":"Page.loadEventFired","params":{"timestamp":1}}`,
			fmt.Sprintf(`{"id":%d,"result":{"sessionId":"session-1"}}`, id),
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	sid, err := r.attachToTarget(ctx, "page-1")
	if err != nil {
		t.Fatalf("attachToTarget() error = %v", err)
	}
	if sid != "session-1" {
		t.Fatalf("session = %q; want session-1", sid)
	}
	select {
	case m := <-events:
		if m != "Page.loadEventFired" {
			t.Fatalf("event = %q", m)
		}
	case <-ctx.Done():
		t.Fatal("event was not dispatched")
	}
}

func TestRawCDPEvaluate(t *testing.T) {
	tests := []struct {
		name    string
		result  string
		want    string
		wantErr bool
	}{
		{"string result", `{"result":{"type":"string","value":"{\"ok\":true}"}}`, `{"ok":true}`, false},
		{"number result", `{"result":{"type":"number","value":42}}`, `42`, false},
		{"exception", `{"result":{"type":"object"},"exceptionDetails":{"text":"Uncaught","exception":{"description":"ReferenceError: x"}}}`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := pipeCDP(t, nil, func(id int64, _ string, _ json.RawMessage) []string {
				return []string{fmt.Sprintf(`{"id":%d,"sessionId":"s","result":%s}`, id, tt.result)}
			})
			got, err := r.evaluate(context.Background(), "s", "1")
			if (err != nil) != tt.wantErr {
				t.Fatalf("evaluate() error = %v; wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("evaluate() = %q; want %q", got, tt.want)
			}
		})
	}
}

func TestRawCDPProtocolError(t *testing.T) {
	r := pipeCDP(t, nil, func(id int64, _ string, _ json.RawMessage) []string {
		return []string{fmt.Sprintf(`{"id":%d,"error":{"code":-32000,"message":"No target with given id"}}`, id)}
	})
	err := r.detachFromTarget(context.Background(), "gone")
	var fe *frameError
	if !errors.As(err, &fe) || fe.Code != -32000 {
		t.Fatalf("detachFromTarget() = %v; want frameError -32000", err)
	}
}

func TestRawCDPClosedConnectionFailsPendingCall(t *testing.T) {
	browser, client := net.Pipe()
	r := newRawCDP("http://example.com", nil)
	r.conn = client
	go r.readLoop(client)
	go func() {
		_, _ = wsutil.ReadClientText(browser)
		_ = browser.Close()
	}()

	err := r.enablePageDomain(context.Background(), "s")
	if !errors.Is(err, errConnClosed) {
		t.Fatalf("enablePageDomain() = %v; want %v", err, errConnClosed)
	}
}

func TestRawCDPNotConnected(t *testing.T) {
	r := newRawCDP("http://example.com", nil)
	if err := r.enablePageDomain(context.Background(), "s"); err == nil {
		t.Fatal("expected error without a connection")
	}
}

func TestEventBusUnsubscribe(t *testing.T) {
	var bus eventBus
	var calls int
	off := bus.on("Runtime.bindingCalled", func(string, []byte) { calls++ })
	bus.dispatch("Runtime.bindingCalled", "", nil)
	bus.dispatch("Page.loadEventFired", "", nil)
	off()
	off()
	bus.dispatch("Runtime.bindingCalled", "", nil)
	if calls != 1 {
		t.Fatalf("calls = %d; want 1", calls)
	}
}
