package rtconsole

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/codewandler/rtconsole-go/events"
	"github.com/codewandler/rtconsole-go/internal/websocket"
)

// updatedTypes is the closed set of server events that affect conversation
// items and therefore feed the transcript reconciler.
var updatedTypes = map[string]bool{
	"conversation.item.created":                             true,
	"conversation.item.truncated":                           true,
	"conversation.item.deleted":                             true,
	"conversation.item.input_audio_transcription.completed": true,
	"response.output_item.added":                            true,
	"response.output_item.done":                             true,
	"response.audio.delta":                                  true,
	"response.audio.done":                                   true,
	"response.audio_transcript.delta":                       true,
	"response.audio_transcript.done":                        true,
	"response.text.delta":                                   true,
	"response.text.done":                                    true,
	"response.function_call_arguments.done":                 true,
}

// ToolCallFunc resolves a tool call to its normalized result payload. It is
// total: the dispatcher guarantees a structured result for every call.
type ToolCallFunc func(name string, args map[string]any) any

// Transport is the duplex channel to the remote agent, expressed as the
// closed set of event callbacks plus send. Satisfied by *Client and by test
// fakes.
type Transport interface {
	Open(ctx context.Context) error
	Close(ctx context.Context) error
	Send(evt any) error
	SendSessionUpdate(su events.SessionUpdate) error

	OnEvent(func(data []byte))
	OnError(func(e *events.ErrorEvent))
	OnInterrupted(func(e *events.SpeechStartedEvent))
	OnUpdated(func(data []byte))
	OnToolCall(ToolCallFunc)
}

// Client speaks the realtime protocol over a websocket.
type Client struct {
	config *config
	ws     *websocket.Client
	logger *slog.Logger
	update chan struct{}

	onEvent       func(data []byte)
	onError       func(e *events.ErrorEvent)
	onInterrupted func(e *events.SpeechStartedEvent)
	onUpdated     func(data []byte)
	onToolCall    ToolCallFunc
	onSent        func(eventType string, data []byte)
}

func NewClient(opts ...Option) *Client {
	cfg := &config{}
	withDefaults()(cfg)
	WithOptions(opts...)(cfg)

	return &Client{
		config: cfg,
		logger: cfg.logger,
		update: make(chan struct{}, 1),
	}
}

func (c *Client) OnEvent(h func(data []byte)) { c.onEvent = h }

func (c *Client) OnError(h func(e *events.ErrorEvent)) { c.onError = h }

func (c *Client) OnInterrupted(h func(e *events.SpeechStartedEvent)) { c.onInterrupted = h }

func (c *Client) OnUpdated(h func(data []byte)) { c.onUpdated = h }

func (c *Client) OnToolCall(h ToolCallFunc) { c.onToolCall = h }

// onSentFunc lets the session mirror outbound events into the audit log.
func (c *Client) onSentFunc(h func(eventType string, data []byte)) { c.onSent = h }

// Send marshals and writes any client event. Once the transport is gone it
// returns ErrNotConnected; late tool results hitting this are dropped by the
// caller rather than treated as fatal.
func (c *Client) Send(evt any) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}

	if c.ws == nil {
		return ErrNotConnected
	}
	if err := c.ws.WriteText(data); err != nil {
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}

	if c.onSent != nil {
		var head struct {
			Type string `json:"type"`
		}
		_ = json.Unmarshal(data, &head)
		c.onSent(head.Type, data)
	}

	return nil
}

// SendSessionUpdate pushes a session.update and waits for the server ack.
func (c *Client) SendSessionUpdate(su events.SessionUpdate) error {
	evt := events.SessionUpdateEvent{
		BaseEvent: events.NewBaseEvent("session.update"),
		Session:   su,
	}

	// A previously timed-out update may have left its ack behind; it must
	// not satisfy this one.
	select {
	case <-c.update:
	default:
	}

	if err := c.Send(evt); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	select {
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for session update")
	case <-c.update:
	}

	return nil
}

func (c *Client) Close(ctx context.Context) error {
	if c.ws == nil {
		return nil
	}
	return c.ws.Close(ctx)
}

func (c *Client) Done() <-chan struct{} {
	if c.ws == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return c.ws.Done()
}

// Open dials the server and blocks until the session is created.
func (c *Client) Open(ctx context.Context) error {
	if err := c.config.validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	headers := http.Header{}
	headers.Add("Authorization", fmt.Sprintf("Bearer %s", c.config.apiKey))
	headers.Add("OpenAI-Beta", "realtime=v1")

	created := make(chan struct{})

	ws, err := websocket.Connect(ctx, websocket.ClientConfig{
		Logger:  slog.New(slog.DiscardHandler),
		URL:     fmt.Sprintf("%s?model=%s", c.config.url, c.config.model),
		Headers: headers,
		OnText: func(data []byte) error {
			return c.handle(created, data)
		},
	})
	if err != nil {
		return err
	}
	c.ws = ws

	select {
	case <-created:
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for session: %w", ctx.Err())
	case <-ws.Done():
		return fmt.Errorf("connection closed before session was created")
	}

	return nil
}

func (c *Client) handle(created chan struct{}, data []byte) error {
	var head struct {
		Type    string `json:"type"`
		EventID string `json:"event_id"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}

	if c.onEvent != nil {
		c.onEvent(data)
	}

	switch head.Type {
	case "error":
		evt, err := events.Parse[events.ErrorEvent](data)
		if err != nil {
			c.logger.Error("failed to parse error event", slog.Any("err", err))
		} else if c.onError != nil {
			c.onError(evt)
		}

	case "session.created":
		select {
		case <-created:
		default:
			close(created)
		}

	case "session.updated":
		select {
		case c.update <- struct{}{}:
		default:
		}

	case "input_audio_buffer.speech_started":
		if c.onInterrupted != nil {
			if evt, err := events.Parse[events.SpeechStartedEvent](data); err == nil {
				c.onInterrupted(evt)
			}
		}

	case "response.done":
		c.handleResponseDone(data)
	}

	if updatedTypes[head.Type] && c.onUpdated != nil {
		c.onUpdated(data)
	}

	return nil
}

// handleResponseDone resolves every completed function call in the response
// and answers each with exactly one function_call_output.
func (c *Client) handleResponseDone(data []byte) {
	evt, err := events.Parse[events.ResponseDoneEvent](data)
	if err != nil {
		c.logger.Error("failed to parse response done event", slog.Any("err", err))
		return
	}
	if c.onToolCall == nil {
		return
	}

	for _, o := range evt.Response.Output {
		if o.Type != "function_call" || o.Status != "completed" {
			continue
		}
		// Resolved off the read pump: a slow handler must not hold up event
		// delivery, nor the session.updated ack it may itself wait on.
		go c.resolveToolCall(o)
	}
}

func (c *Client) resolveToolCall(o events.ConversationItem) {
	var args map[string]any
	if err := json.Unmarshal([]byte(o.Arguments), &args); err != nil {
		args = map[string]any{} // malformed arguments still get an answer
	}

	res := c.onToolCall(o.Name, args)
	c.logger.Debug("tool call",
		slog.String("name", o.Name),
		slog.Any("args", args),
		slog.Any("res", res),
	)

	output, err := json.Marshal(res)
	if err != nil {
		output = []byte(`{"error":"unencodable tool result"}`)
	}

	// The transport may already be gone when a slow handler resolves; then
	// the output is simply dropped.
	if err := c.Send(events.ConversationItemCreateEvent{
		BaseEvent: events.NewBaseEvent("conversation.item.create"),
		Item: events.ConversationItem{
			Type:   "function_call_output",
			CallID: o.CallID,
			Output: string(output),
		},
	}); err != nil {
		c.logger.Debug("dropping tool result", slog.String("name", o.Name), slog.Any("err", err))
		return
	}
	_ = c.Send(events.ResponseCreateEvent{
		BaseEvent: events.NewBaseEvent("response.create"),
		Response:  events.ResponseCreatePayload{},
	})
}
