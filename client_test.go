package rtconsole

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/stretchr/testify/require"

	"github.com/codewandler/rtconsole-go/events"
)

// realtimeStub plays the server side of the realtime protocol: it announces
// session.created on connect, acks session.update, and records every client
// event it receives.
type realtimeStub struct {
	srv *httptest.Server

	mu       sync.Mutex
	received []json.RawMessage
}

func newRealtimeStub(t *testing.T) *realtimeStub {
	t.Helper()

	stub := &realtimeStub{}
	stub.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			return
		}
		go func() {
			defer conn.Close()

			if err := wsutil.WriteServerText(conn, []byte(`{"type":"session.created","session":{"id":"sess_1"}}`)); err != nil {
				return
			}

			for {
				msg, op, err := wsutil.ReadClientData(conn)
				if err != nil {
					return
				}
				if op != ws.OpText {
					continue
				}

				stub.mu.Lock()
				stub.received = append(stub.received, json.RawMessage(append([]byte(nil), msg...)))
				stub.mu.Unlock()

				var head struct {
					Type string `json:"type"`
				}
				if json.Unmarshal(msg, &head) == nil && head.Type == "session.update" {
					if err := wsutil.WriteServerText(conn, []byte(`{"type":"session.updated"}`)); err != nil {
						return
					}
				}
			}
		}()
	}))
	t.Cleanup(stub.srv.Close)
	return stub
}

func (s *realtimeStub) url() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func (s *realtimeStub) receivedTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.received))
	for i, raw := range s.received {
		var head struct {
			Type string `json:"type"`
		}
		_ = json.Unmarshal(raw, &head)
		out[i] = head.Type
	}
	return out
}

func (s *realtimeStub) lastOfType(t *testing.T, eventType string) []byte {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.received) - 1; i >= 0; i-- {
		var head struct {
			Type string `json:"type"`
		}
		_ = json.Unmarshal(s.received[i], &head)
		if head.Type == eventType {
			return s.received[i]
		}
	}
	t.Fatalf("no %s event received", eventType)
	return nil
}

func (s *realtimeStub) countReceived(eventType string) int {
	n := 0
	for _, typ := range s.receivedTypes() {
		if typ == eventType {
			n++
		}
	}
	return n
}

func newStubClient(t *testing.T, stub *realtimeStub) *Client {
	t.Helper()
	c := NewClient(WithURL(stub.url()), WithKey("test-key"))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = c.Close(ctx)
	})
	return c
}

func TestClient_OpenWaitsForSessionCreated(t *testing.T) {
	stub := newRealtimeStub(t)
	c := newStubClient(t, stub)

	var (
		mu   sync.Mutex
		seen []string
	)
	c.OnEvent(func(data []byte) {
		var head struct {
			Type string `json:"type"`
		}
		_ = json.Unmarshal(data, &head)
		mu.Lock()
		seen = append(seen, head.Type)
		mu.Unlock()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Open(ctx))

	mu.Lock()
	require.Contains(t, seen, "session.created")
	mu.Unlock()
}

func TestClient_OpenRequiresKey(t *testing.T) {
	c := NewClient(WithKey(""))
	err := c.Open(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid config")
}

func TestClient_SendBeforeOpen(t *testing.T) {
	c := NewClient(WithKey("test-key"))
	err := c.Send(events.ResponseCreateEvent{BaseEvent: events.NewBaseEvent("response.create")})
	require.ErrorIs(t, err, ErrNotConnected)
}

func TestClient_SessionUpdateAck(t *testing.T) {
	stub := newRealtimeStub(t)
	c := newStubClient(t, stub)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Open(ctx))

	require.NoError(t, c.SendSessionUpdate(events.SessionUpdate{
		Modalities:   []string{"text", "audio"},
		Instructions: "Be brief.",
	}))

	raw := stub.lastOfType(t, "session.update")
	evt, err := events.Parse[events.SessionUpdateEvent](raw)
	require.NoError(t, err)
	require.Equal(t, "Be brief.", evt.Session.Instructions)

	// Manual turn taking serializes an explicit null, not an omission.
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	session, ok := m["session"].(map[string]any)
	require.True(t, ok)
	td, present := session["turn_detection"]
	require.True(t, present)
	require.Nil(t, td)
}

func TestClient_ToolCallRoundTrip(t *testing.T) {
	stub := newRealtimeStub(t)
	c := newStubClient(t, stub)

	var (
		mu    sync.Mutex
		calls []string
	)
	c.OnToolCall(func(name string, args map[string]any) any {
		mu.Lock()
		calls = append(calls, name)
		mu.Unlock()
		return map[string]any{"ok": true, "echo": args["text"]}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Open(ctx))

	// Simulate the agent finishing a response that contains one completed
	// function call. The stub delivers it via the write side of the socket,
	// so it routes through the real read loop.
	done := events.ResponseDoneEvent{
		BaseEvent: events.NewBaseEvent("response.done"),
		Response: events.Response{
			ID:     "resp_1",
			Status: "completed",
			Output: []events.ConversationItem{
				{
					ID:        "item_1",
					Type:      "function_call",
					Status:    "completed",
					CallID:    "call_1",
					Name:      "echo",
					Arguments: `{"text":"hi"}`,
				},
				{
					ID:     "item_2",
					Type:   "message",
					Status: "completed",
					Role:   "assistant",
				},
			},
		},
	}
	payload, err := json.Marshal(done)
	require.NoError(t, err)
	c.handle(make(chan struct{}), payload)

	require.Eventually(t, func() bool {
		return stub.countReceived("conversation.item.create") == 1 &&
			stub.countReceived("response.create") == 1
	}, time.Second, time.Millisecond)

	mu.Lock()
	require.Equal(t, []string{"echo"}, calls)
	mu.Unlock()

	raw := stub.lastOfType(t, "conversation.item.create")
	evt, err := events.Parse[events.ConversationItemCreateEvent](raw)
	require.NoError(t, err)
	require.Equal(t, "function_call_output", evt.Item.Type)
	require.Equal(t, "call_1", evt.Item.CallID)
	require.JSONEq(t, `{"ok":true,"echo":"hi"}`, evt.Item.Output)
}

func TestClient_ToolCallMalformedArguments(t *testing.T) {
	stub := newRealtimeStub(t)
	c := newStubClient(t, stub)

	var (
		mu      sync.Mutex
		gotArgs map[string]any
	)
	c.OnToolCall(func(name string, args map[string]any) any {
		mu.Lock()
		gotArgs = args
		mu.Unlock()
		return map[string]any{"ok": true}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Open(ctx))

	c.handle(make(chan struct{}), []byte(`{
		"type": "response.done",
		"response": {
			"status": "completed",
			"output": [{
				"type": "function_call",
				"status": "completed",
				"call_id": "call_1",
				"name": "echo",
				"arguments": "{not json"
			}]
		}
	}`))

	// Malformed arguments still produce a call, with empty args.
	require.Eventually(t, func() bool {
		return stub.countReceived("conversation.item.create") == 1
	}, time.Second, time.Millisecond)
	mu.Lock()
	require.NotNil(t, gotArgs)
	require.Empty(t, gotArgs)
	mu.Unlock()
}

func TestClient_CallbackRouting(t *testing.T) {
	stub := newRealtimeStub(t)
	c := newStubClient(t, stub)

	var (
		mu          sync.Mutex
		errs        []string
		interrupted int
		updated     []string
	)
	c.OnError(func(e *events.ErrorEvent) {
		mu.Lock()
		errs = append(errs, e.ErrorDetail.Message)
		mu.Unlock()
	})
	c.OnInterrupted(func(e *events.SpeechStartedEvent) {
		mu.Lock()
		interrupted++
		mu.Unlock()
	})
	c.OnUpdated(func(data []byte) {
		var head struct {
			Type string `json:"type"`
		}
		_ = json.Unmarshal(data, &head)
		mu.Lock()
		updated = append(updated, head.Type)
		mu.Unlock()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Open(ctx))

	created := make(chan struct{})
	c.handle(created, []byte(`{"type":"error","error":{"type":"invalid_request_error","message":"boom"}}`))
	c.handle(created, []byte(`{"type":"input_audio_buffer.speech_started","item_id":"x"}`))
	c.handle(created, []byte(`{"type":"response.audio.delta","item_id":"x","delta":""}`))
	c.handle(created, []byte(`{"type":"response.created"}`)) // not an item event

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"boom"}, errs)
	require.Equal(t, 1, interrupted)
	require.Equal(t, []string{"response.audio.delta"}, updated)
}

func TestClient_SlowToolCallDoesNotStallPipeline(t *testing.T) {
	stub := newRealtimeStub(t)
	c := newStubClient(t, stub)

	started := make(chan struct{})
	release := make(chan struct{})
	c.OnToolCall(func(name string, args map[string]any) any {
		close(started)
		<-release
		return map[string]any{"ok": true}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Open(ctx))

	// Event handling returns while the handler is still parked; only the
	// tool's own answer waits on it.
	c.handle(make(chan struct{}), []byte(`{
		"type": "response.done",
		"response": {
			"status": "completed",
			"output": [{
				"type": "function_call",
				"status": "completed",
				"call_id": "call_1",
				"name": "slow",
				"arguments": "{}"
			}]
		}
	}`))

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("handler never started")
	}
	require.Equal(t, 0, stub.countReceived("conversation.item.create"))

	close(release)
	require.Eventually(t, func() bool {
		return stub.countReceived("conversation.item.create") == 1
	}, time.Second, time.Millisecond)
}

func TestClient_SessionUpdateFromToolHandler(t *testing.T) {
	stub := newRealtimeStub(t)
	c := newStubClient(t, stub)

	// Memory tools re-push the session config from inside their handler; the
	// ack has to arrive while the handler is still running.
	updateErr := make(chan error, 1)
	c.OnToolCall(func(name string, args map[string]any) any {
		updateErr <- c.SendSessionUpdate(events.SessionUpdate{Instructions: "remember this"})
		return map[string]any{"ok": true}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Open(ctx))

	c.handle(make(chan struct{}), []byte(`{
		"type": "response.done",
		"response": {
			"status": "completed",
			"output": [{
				"type": "function_call",
				"status": "completed",
				"call_id": "call_1",
				"name": "set_memory",
				"arguments": "{}"
			}]
		}
	}`))

	select {
	case err := <-updateErr:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("session update from handler never resolved")
	}
	require.Eventually(t, func() bool {
		return stub.countReceived("conversation.item.create") == 1
	}, time.Second, time.Millisecond)
}

func TestClient_SessionUpdateIgnoresStaleAck(t *testing.T) {
	stub := newRealtimeStub(t)
	c := newStubClient(t, stub)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Open(ctx))

	// A leftover ack from a timed-out update must not satisfy the next call.
	c.update <- struct{}{}
	require.NoError(t, c.SendSessionUpdate(events.SessionUpdate{Instructions: "fresh"}))

	// The call consumed its own ack; nothing may be left buffered.
	time.Sleep(100 * time.Millisecond)
	select {
	case <-c.update:
		t.Fatal("ack left behind in update channel")
	default:
	}
}

func TestClient_SendAfterClose(t *testing.T) {
	stub := newRealtimeStub(t)
	c := newStubClient(t, stub)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Open(ctx))
	require.NoError(t, c.Close(ctx))

	err := c.Send(events.ResponseCreateEvent{BaseEvent: events.NewBaseEvent("response.create")})
	require.ErrorIs(t, err, ErrNotConnected)
}
