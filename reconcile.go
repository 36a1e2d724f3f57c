package rtconsole

import (
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/faiface/beep"

	"github.com/codewandler/rtconsole-go/events"
)

type LogSource string

const (
	SourceClient LogSource = "client"
	SourceServer LogSource = "server"
)

// LogEntry is one line of the session audit log. Count grows past 1 when
// consecutive events of the same type were coalesced into this entry.
type LogEntry struct {
	Time    time.Time
	Source  LogSource
	Type    string
	Count   int
	Payload []byte
}

// EventLog is the compact audit log of the raw event stream. Runs of the
// same event type (per-chunk audio deltas, mostly) collapse into a single
// entry with a repeat counter, which bounds growth during streaming without
// losing ordering.
type EventLog struct {
	mu      sync.Mutex
	entries []*LogEntry
}

func NewEventLog() *EventLog {
	return &EventLog{}
}

func (l *EventLog) Append(source LogSource, eventType string, payload []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n := len(l.entries); n > 0 && l.entries[n-1].Type == eventType {
		l.entries[n-1].Count++
		return
	}
	l.entries = append(l.entries, &LogEntry{
		Time:    time.Now(),
		Source:  source,
		Type:    eventType,
		Count:   1,
		Payload: payload,
	})
}

func (l *EventLog) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}

// Entries returns a snapshot of the log.
func (l *EventLog) Entries() []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]LogEntry, len(l.entries))
	for i, e := range l.entries {
		out[i] = *e
	}
	return out
}

// Formatted is the presentation-ready content of a transcript item.
type Formatted struct {
	Text       string
	Transcript string
	Audio      []byte       // accumulated raw PCM16
	Asset      *beep.Buffer // decoded playable audio, set once on completion
	Name       string       // function_call
	Arguments  string       // function_call
	Output     string       // function_call_output
}

// Item is one ordered entry of the conversation transcript. Identifiers are
// stable: updates mutate the existing item in place, never reorder it.
type Item struct {
	ID        string
	Role      string // user | assistant | tool
	Kind      string // message | function_call | function_call_output
	Status    string // in_progress | completed
	Formatted Formatted

	decoded bool
}

// Reconciler folds the raw duplex event stream into the audit log and the
// transcript, and routes streamed audio deltas into the player.
type Reconciler struct {
	log    *EventLog
	player *Player
	logger *slog.Logger

	mu    sync.Mutex
	items map[string]*Item
	order []string
}

func NewReconciler(log *EventLog, player *Player, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Reconciler{
		log:    log,
		player: player,
		logger: logger,
		items:  make(map[string]*Item),
	}
}

// Items returns the current transcript, in order. A full snapshot rather
// than an incremental patch, so consumers stay consistent even if they
// missed intermediate deltas.
func (r *Reconciler) Items() []Item {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Item, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.items[id])
	}
	return out
}

func (r *Reconciler) Item(id string) (Item, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	it, ok := r.items[id]
	if !ok {
		return Item{}, false
	}
	return *it, true
}

func (r *Reconciler) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = make(map[string]*Item)
	r.order = nil
}

// LogClient records an outbound event in the audit log.
func (r *Reconciler) LogClient(eventType string, payload []byte) {
	r.log.Append(SourceClient, eventType, payload)
}

// LogServer records an inbound event in the audit log.
func (r *Reconciler) LogServer(data []byte) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		r.logger.Error("unparsable server event", slog.Any("err", err))
		return
	}
	r.log.Append(SourceServer, head.Type, data)
}

// Fold applies an item-affecting server event to the transcript.
func (r *Reconciler) Fold(data []byte) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return
	}

	switch head.Type {
	case "conversation.item.created":
		if evt, err := events.Parse[events.ConversationItemCreatedEvent](data); err == nil {
			r.upsert(evt.Item)
		}
	case "response.output_item.added":
		if evt, err := events.Parse[events.ResponseOutputItemAddedEvent](data); err == nil {
			r.upsert(evt.Item)
		}
	case "response.audio.delta":
		evt, err := events.Parse[events.ResponseAudioDeltaEvent](data)
		if err != nil {
			return
		}
		pcm, err := base64.StdEncoding.DecodeString(evt.Delta)
		if err != nil {
			r.logger.Error("bad audio delta", slog.Any("err", err))
			return
		}
		if r.player != nil {
			r.player.Enqueue(pcm, evt.ItemID)
		}
		r.withItem(evt.ItemID, func(it *Item) {
			it.Formatted.Audio = append(it.Formatted.Audio, pcm...)
		})
	case "response.audio_transcript.delta":
		if evt, err := events.Parse[events.ResponseAudioTranscriptDeltaEvent](data); err == nil {
			r.withItem(evt.ItemID, func(it *Item) {
				it.Formatted.Transcript += evt.Delta
			})
		}
	case "response.audio_transcript.done":
		if evt, err := events.Parse[events.ResponseAudioTranscriptDoneEvent](data); err == nil {
			r.withItem(evt.ItemID, func(it *Item) {
				it.Formatted.Transcript = evt.Transcript
			})
		}
	case "response.text.delta":
		if evt, err := events.Parse[events.ResponseTextDeltaEvent](data); err == nil {
			r.withItem(evt.ItemID, func(it *Item) {
				it.Formatted.Text += evt.Delta
			})
		}
	case "response.text.done":
		if evt, err := events.Parse[events.ResponseTextDoneEvent](data); err == nil {
			r.withItem(evt.ItemID, func(it *Item) {
				it.Formatted.Text = evt.Text
			})
		}
	case "conversation.item.input_audio_transcription.completed":
		if evt, err := events.Parse[events.InputAudioTranscriptionCompletedEvent](data); err == nil {
			r.withItem(evt.ItemID, func(it *Item) {
				it.Formatted.Transcript = evt.Transcript
			})
		}
	case "response.function_call_arguments.done":
		if evt, err := events.Parse[events.ResponseFunctionCallArgumentsDoneEvent](data); err == nil {
			r.withItem(evt.ItemID, func(it *Item) {
				it.Formatted.Arguments = evt.Arguments
			})
		}
	case "response.output_item.done":
		if evt, err := events.Parse[events.ResponseOutputItemDoneEvent](data); err == nil {
			r.complete(evt.Item)
		}
	case "conversation.item.truncated":
		if evt, err := events.Parse[events.ConversationItemTruncatedEvent](data); err == nil {
			r.truncate(evt.ItemID, evt.AudioEndMs)
		}
	case "conversation.item.deleted":
		if evt, err := events.Parse[events.ConversationItemDeletedEvent](data); err == nil {
			r.delete(evt.ItemID)
		}
	}
}

// upsert creates the item on first sight and refreshes mutable fields on
// later sightings. The identifier and position never change.
func (r *Reconciler) upsert(ci events.ConversationItem) {
	if ci.ID == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	it, ok := r.items[ci.ID]
	if !ok {
		it = &Item{
			ID:   ci.ID,
			Role: itemRole(ci),
			Kind: ci.Type,
		}
		r.items[ci.ID] = it
		r.order = append(r.order, ci.ID)
	}
	if ci.Status != "" {
		it.Status = ci.Status
	} else if it.Status == "" {
		it.Status = "in_progress"
	}
	applyContent(it, ci)
}

func (r *Reconciler) withItem(id string, f func(*Item)) {
	if id == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if it, ok := r.items[id]; ok {
		f(it)
	}
}

func (r *Reconciler) complete(ci events.ConversationItem) {
	r.mu.Lock()
	defer r.mu.Unlock()

	it, ok := r.items[ci.ID]
	if !ok {
		return
	}
	it.Status = "completed"
	applyContent(it, ci)

	// Decode the accumulated audio into a playable asset, once.
	if len(it.Formatted.Audio) > 0 && !it.decoded {
		it.Formatted.Asset = DecodeAsset(it.Formatted.Audio)
		it.decoded = true
	}
}

func (r *Reconciler) truncate(id string, audioEndMs int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	it, ok := r.items[id]
	if !ok {
		return
	}
	keep := audioEndMs * SampleRate / 1000 * bytesPerSample
	if keep < len(it.Formatted.Audio) {
		it.Formatted.Audio = it.Formatted.Audio[:keep]
	}
	// The tail transcript no longer matches what was heard.
	it.Formatted.Transcript = ""
	it.Formatted.Asset = nil
	it.decoded = false
}

func (r *Reconciler) delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[id]; !ok {
		return
	}
	delete(r.items, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

func itemRole(ci events.ConversationItem) string {
	switch ci.Type {
	case "function_call", "function_call_output":
		return "tool"
	}
	if ci.Role != "" {
		return ci.Role
	}
	return "assistant"
}

func applyContent(it *Item, ci events.ConversationItem) {
	if ci.Name != "" {
		it.Formatted.Name = ci.Name
	}
	if ci.Arguments != "" {
		it.Formatted.Arguments = ci.Arguments
	}
	if ci.Output != "" {
		it.Formatted.Output = ci.Output
	}
	for _, c := range ci.Content {
		switch c.Type {
		case "text", "input_text":
			if c.Text != "" {
				it.Formatted.Text = c.Text
			}
		case "audio", "input_audio":
			if c.Transcript != "" {
				it.Formatted.Transcript = c.Transcript
			}
		}
	}
}
