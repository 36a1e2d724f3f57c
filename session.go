package rtconsole

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"sync"

	"github.com/codewandler/rtconsole-go/events"
	"github.com/codewandler/rtconsole-go/tool"
)

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

// Session orchestrates one live conversation: it owns the audio channel and
// the transport, routes inbound events through the reconciler, pushes
// configuration, and wires tool calls through the registry. Reconnection is
// a fresh pass through connecting; only Memory survives it.
type Session struct {
	cfg       *config
	transport Transport
	recorder  *Recorder
	player    *Player
	memory    *Memory
	display   *Display
	registry  *tool.Registry
	log       *EventLog
	rec       *Reconciler
	logger    *slog.Logger

	mu        sync.Mutex
	state     State
	mode      TurnMode
	audioless bool
}

func NewSession(transport Transport, recorder *Recorder, player *Player, opts ...Option) *Session {
	cfg := &config{}
	withDefaults()(cfg)
	WithOptions(opts...)(cfg)

	log := NewEventLog()

	s := &Session{
		cfg:       cfg,
		transport: transport,
		recorder:  recorder,
		player:    player,
		memory:    NewMemory(),
		display:   NewDisplay(),
		registry:  tool.NewRegistry(cfg.logger),
		log:       log,
		rec:       NewReconciler(log, player, cfg.logger),
		logger:    cfg.logger,
		state:     StateDisconnected,
		mode:      cfg.turnMode,
	}

	transport.OnEvent(s.rec.LogServer)
	transport.OnUpdated(s.rec.Fold)
	transport.OnError(func(e *events.ErrorEvent) {
		s.logger.Error("server error", slog.Any("err", e))
	})
	transport.OnInterrupted(func(e *events.SpeechStartedEvent) {
		s.cancelPlayback()
	})
	transport.OnToolCall(func(name string, args map[string]any) any {
		return s.registry.Dispatch(context.Background(), name, args)
	})
	if c, ok := transport.(*Client); ok {
		c.onSentFunc(s.rec.LogClient)
	}

	return s
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Mode() TurnMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

func (s *Session) Registry() *tool.Registry { return s.registry }
func (s *Session) Memory() *Memory          { return s.memory }
func (s *Session) Display() *Display        { return s.display }
func (s *Session) Log() *EventLog           { return s.log }

// Items returns the current transcript snapshot.
func (s *Session) Items() []Item { return s.rec.Items() }

// TextOnly reports whether the capture device failed and the session is
// running without microphone input.
func (s *Session) TextOnly() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.audioless
}

// Connect opens the transport, resets the event log and transcript, acquires
// the audio devices, pushes the session configuration and the greeting, and
// in server_vad mode starts streaming the microphone right away.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateDisconnected {
		s.mu.Unlock()
		return fmt.Errorf("connect: session is %s", s.state)
	}
	s.state = StateConnecting
	s.mu.Unlock()

	s.log.Reset()
	s.rec.Reset()

	if err := s.transport.Open(ctx); err != nil {
		s.setState(StateDisconnected)
		return fmt.Errorf("transport: %w", err)
	}

	// A dead capture device degrades the session to text-only, it does not
	// abort the connect.
	if err := s.recorder.BeginCapture(); err != nil {
		s.logger.Warn("capture unavailable, continuing text-only", slog.Any("err", err))
		s.mu.Lock()
		s.audioless = true
		s.mu.Unlock()
	}

	s.setState(StateConnected)

	if err := s.pushSessionConfig(); err != nil {
		s.logger.Error("session config push failed", slog.Any("err", err))
	}

	if s.cfg.greeting != "" {
		if err := s.UserText(s.cfg.greeting); err != nil {
			s.logger.Error("greeting failed", slog.Any("err", err))
		}
	}

	if s.Mode() == TurnModeServerVAD {
		s.startStreaming()
	}

	return nil
}

// Disconnect tears the session down. Display state is reset, Memory is not.
func (s *Session) Disconnect(ctx context.Context) error {
	s.setState(StateDisconnected)

	s.recorder.PauseRecording()
	s.player.Interrupt()
	s.display.Reset()

	return s.transport.Close(ctx)
}

// BeginTurn starts a push-to-talk turn: any agent speech still playing is
// interrupted and cancelled first so it cannot overlap the user's.
func (s *Session) BeginTurn() error {
	if s.State() != StateConnected {
		return ErrNotConnected
	}

	s.cancelPlayback()
	return s.startStreaming()
}

// EndTurn stops the push-to-talk turn and asks the agent to respond.
func (s *Session) EndTurn() error {
	s.recorder.PauseRecording()

	if s.State() != StateConnected {
		return nil
	}
	if err := s.transport.Send(events.InputAudioBufferCommitEvent{
		BaseEvent: events.NewBaseEvent("input_audio_buffer.commit"),
	}); err != nil {
		return err
	}
	return s.transport.Send(events.ResponseCreateEvent{
		BaseEvent: events.NewBaseEvent("response.create"),
		Response:  events.ResponseCreatePayload{},
	})
}

// SetTurnMode switches between manual turn taking and server VAD. Active
// recording is paused before the mode flag changes; entering server_vad
// while connected resumes continuous streaming immediately.
func (s *Session) SetTurnMode(mode TurnMode) error {
	switch mode {
	case TurnModeNone, TurnModeServerVAD:
	default:
		return fmt.Errorf("invalid turn mode: %q", mode)
	}

	s.mu.Lock()
	if s.mode == mode {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if s.recorder.Recording() {
		s.recorder.PauseRecording()
	}

	s.mu.Lock()
	s.mode = mode
	connected := s.state == StateConnected
	s.mu.Unlock()

	if !connected {
		return nil
	}

	if err := s.pushSessionConfig(); err != nil {
		return err
	}
	if mode == TurnModeServerVAD {
		return s.startStreaming()
	}
	return nil
}

// UserText sends a user text message and asks for a response.
func (s *Session) UserText(text string) error {
	if err := s.transport.Send(events.ConversationItemCreateEvent{
		BaseEvent: events.NewBaseEvent("conversation.item.create"),
		Item: events.ConversationItem{
			Type: "message",
			Role: "user",
			Content: []events.ConversationItemContent{
				{Type: "input_text", Text: text},
			},
		},
	}); err != nil {
		return err
	}
	return s.transport.Send(events.ResponseCreateEvent{
		BaseEvent: events.NewBaseEvent("response.create"),
		Response:  events.ResponseCreatePayload{},
	})
}

// DeleteItem removes a transcript item on both sides.
func (s *Session) DeleteItem(id string) error {
	return s.transport.Send(events.ConversationItemDeleteEvent{
		BaseEvent: events.NewBaseEvent("conversation.item.delete"),
		ItemID:    id,
	})
}

// SyncMemory re-pushes the session configuration so the agent's instructions
// embed the current memory snapshot. Call after any memory mutation.
func (s *Session) SyncMemory() error {
	if s.State() != StateConnected {
		return nil
	}
	return s.pushSessionConfig()
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// startStreaming forwards captured frames to the input audio buffer, in
// capture order.
func (s *Session) startStreaming() error {
	err := s.recorder.StartRecording(func(frame []byte) {
		sendErr := s.transport.Send(events.InputAudioBufferAppendEvent{
			BaseEvent: events.NewBaseEvent("input_audio_buffer.append"),
			Audio:     base64.StdEncoding.EncodeToString(frame),
		})
		if sendErr != nil {
			s.logger.Debug("dropping mic frame", slog.Any("err", sendErr))
		}
	})
	if err != nil && err != ErrRecordingActive {
		s.logger.Warn("recording unavailable", slog.Any("err", err))
		return err
	}
	return nil
}

// cancelPlayback interrupts the speaker and, when a track was actually cut
// off, tells the server how much the user heard so generation past that
// point is discarded.
func (s *Session) cancelPlayback() {
	track, ok := s.player.Interrupt()
	if !ok || s.State() != StateConnected {
		return
	}

	audioEndMs := track.SampleOffset * 1000 / SampleRate

	if err := s.transport.Send(events.ConversationItemTruncateEvent{
		BaseEvent:  events.NewBaseEvent("conversation.item.truncate"),
		ItemID:     track.ItemID,
		AudioEndMs: audioEndMs,
	}); err != nil {
		s.logger.Debug("truncate failed", slog.Any("err", err))
		return
	}
	_ = s.transport.Send(events.ResponseCancelEvent{
		BaseEvent: events.NewBaseEvent("response.cancel"),
	})
}

func (s *Session) pushSessionConfig() error {
	toolChoice := tool.ChoiceNone
	if s.registry.Len() > 0 {
		toolChoice = tool.ChoiceAuto
	}

	return s.transport.SendSessionUpdate(events.SessionUpdate{
		Modalities:        []string{"text", "audio"},
		Instructions:      s.memory.Instructions(s.cfg.instruction),
		Voice:             s.cfg.voice,
		Temperature:       s.cfg.temperature,
		InputAudioFormat:  events.AudioFormatPCM16,
		OutputAudioFormat: events.AudioFormatPCM16,
		InputAudioTranscription: &events.InputAudioTranscription{
			Model: s.cfg.transcriptionModel,
		},
		TurnDetection: s.turnDetection(),
		Tools:         s.registry.Specs(),
		ToolChoice:    toolChoice,
	})
}

func (s *Session) turnDetection() *events.TurnDetection {
	if s.Mode() != TurnModeServerVAD {
		return nil // explicit null: manual turn taking
	}
	return &events.TurnDetection{
		Type:              "server_vad",
		CreateResponse:    true,
		InterruptResponse: true,
	}
}
