package realtime

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MrWong99/aurelay/pkg/usage"
)

// Callbacks is the table of handlers a [Router] drives. Every field is
// optional; nil handlers are skipped. Handlers run synchronously on the
// goroutine calling [Router.Route] and must not block.
type Callbacks struct {
	// OnSessionCreated fires once the upstream service assigns a session ID.
	OnSessionCreated func(sessionID string, session *SessionPayload)

	// OnPartialTranscript fires with the full accumulated text of an
	// in-progress utterance, once per delta.
	OnPartialTranscript func(role Role, accumulated string)

	// OnTranscript fires exactly once per finalized utterance.
	OnTranscript func(t Transcript)

	// OnAudio delivers one decoded PCM16 sample buffer.
	OnAudio func(pcm []byte)

	// OnToolCall fires at most once per call ID with fully parsed arguments.
	OnToolCall func(tc ToolCall)

	// OnToolCallDelta streams raw argument fragments as they arrive.
	OnToolCallDelta func(callID, delta string)

	// OnToolCallDone signals the end of a call's argument stream.
	OnToolCallDone func(callID string)

	// OnUsage delivers an incremental usage report to be added to the ledger.
	OnUsage func(r usage.Report)

	// OnResponseCompleted marks the end of a model response turn.
	OnResponseCompleted func()

	OnSpeechStarted func()
	OnSpeechStopped func()

	// OnError receives non-fatal protocol-level errors: upstream error
	// events, malformed audio payloads, unparseable tool arguments.
	OnError func(err error)
}

// Option configures a [Router].
type Option func(*Router)

// WithLogger sets the router's logger. Defaults to [slog.Default].
func WithLogger(log *slog.Logger) Option {
	return func(r *Router) { r.log = log }
}

// WithLatencyRecorder shares an externally-owned recorder so the orchestrator
// and router write milestones into the same sequence.
func WithLatencyRecorder(rec *LatencyRecorder) Option {
	return func(r *Router) { r.marks = rec }
}

// WithClock overrides the timestamp source used for transcript and tool-call
// timestamps. Useful in tests that assert on deterministic output.
func WithClock(now func() time.Time) Option {
	return func(r *Router) { r.now = now }
}

// Router classifies inbound protocol events and reconstructs higher-level
// entities from them. It tracks three kinds of accumulation state: the
// in-progress user and assistant transcript buffers, a per-callID tool-call
// argument buffer map, and the set of call IDs already dispatched.
//
// Router is not safe for concurrent use. Confine it to the single goroutine
// that consumes the transport's event stream; events must be routed strictly
// in arrival order or the accumulation buffers will interleave.
type Router struct {
	cb    Callbacks
	log   *slog.Logger
	marks *LatencyRecorder
	now   func() time.Time

	userBuf string
	aiBuf   string

	// calls maps call_id to its in-flight argument buffer. Keying by ID
	// keeps interleaved argument streams from corrupting each other.
	calls map[string]*toolCallBuffer

	// processed holds every call ID already surfaced via OnToolCall. A call
	// can be reported both by the argument delta/done pair and by a
	// conversation.item.created event; this set guarantees one dispatch.
	processed map[string]struct{}
}

type toolCallBuffer struct {
	name string
	args string
}

// NewRouter builds a router around cb.
func NewRouter(cb Callbacks, opts ...Option) *Router {
	r := &Router{
		cb:        cb,
		log:       slog.Default(),
		now:       time.Now,
		calls:     make(map[string]*toolCallBuffer),
		processed: make(map[string]struct{}),
	}
	for _, o := range opts {
		o(r)
	}
	if r.marks == nil {
		r.marks = NewLatencyRecorder()
	}
	return r
}

// Latency exposes the recorder the router writes milestones to.
func (r *Router) Latency() *LatencyRecorder { return r.marks }

// Reset clears all accumulation state: transcript buffers, in-flight
// tool-call buffers, and the processed-call set. It does not touch any
// external collaborator (including a shared latency recorder). Call it
// between sessions so a previous session's partial text cannot leak into the
// next one.
func (r *Router) Reset() {
	r.userBuf = ""
	r.aiBuf = ""
	r.calls = make(map[string]*toolCallBuffer)
	r.processed = make(map[string]struct{})
}

// RouteRaw decodes one wire frame and routes it. Frames that are not JSON
// objects are dropped with a debug log line.
func (r *Router) RouteRaw(data []byte) {
	evt, err := ParseEvent(data)
	if err != nil {
		r.log.Debug("dropping undecodable frame", "err", err)
		return
	}
	r.Route(evt)
}

// Route classifies evt and updates accumulation state, emitting callbacks as
// side effects. It never returns an error and never panics on a structurally
// valid event, whatever its type.
func (r *Router) Route(evt *Event) {
	if evt == nil || evt.Type == "" {
		r.log.Debug("dropping event without type")
		return
	}

	switch evt.Type {
	case TypeSessionCreated:
		r.routeSessionCreated(evt)

	case TypeResponseTextDelta, TypeResponseTranscriptDelta:
		if evt.Delta == "" {
			return
		}
		r.aiBuf += evt.Delta
		r.emitPartial(RoleAssistant, r.aiBuf)

	case TypeResponseTextDone, TypeResponseTranscriptDone:
		r.finalizeAssistant()

	case TypeResponseAudioDelta:
		r.routeAudioDelta(evt)

	case TypeResponseDone, TypeResponseCompleted:
		r.routeResponseDone(evt)

	case TypeSpeechStarted:
		r.marks.Record(MarkSpeechStarted)
		if r.cb.OnSpeechStarted != nil {
			r.cb.OnSpeechStarted()
		}

	case TypeSpeechStopped:
		r.marks.Record(MarkSpeechStopped)
		if r.cb.OnSpeechStopped != nil {
			r.cb.OnSpeechStopped()
		}

	case TypeInputTranscriptionDelta:
		if evt.Delta == "" {
			return
		}
		r.userBuf += evt.Delta
		r.emitPartial(RoleUser, r.userBuf)

	case TypeInputTranscriptionDone:
		r.routeInputTranscriptionDone(evt)

	case TypeInputAudioCommitted:
		// Utterance boundary acknowledged; the transcript itself arrives via
		// a separate completed event.

	case TypeItemCreated:
		r.routeItemCreated(evt)

	case TypeItemCompleted:
		r.routeItemCompleted(evt)

	case TypeFunctionCallArgsDelta:
		r.routeToolArgsDelta(evt)

	case TypeFunctionCallArgsDone:
		r.routeToolArgsDone(evt)

	case TypeResponseError:
		r.emitError(errorFromEvent(evt))

	default:
		r.routeUnknown(evt)
	}
}

func (r *Router) routeSessionCreated(evt *Event) {
	if evt.Session == nil || evt.Session.ID == "" {
		r.log.Warn("session.created without session id")
		return
	}
	r.marks.Record(MarkSessionCreated)
	if r.cb.OnSessionCreated != nil {
		r.cb.OnSessionCreated(evt.Session.ID, evt.Session)
	}
}

func (r *Router) routeAudioDelta(evt *Event) {
	if evt.Delta == "" {
		return
	}
	pcm, err := base64.StdEncoding.DecodeString(evt.Delta)
	if err != nil {
		r.log.Warn("malformed audio payload", "err", err)
		r.emitError(fmt.Errorf("realtime: decode audio delta: %w", err))
		return
	}
	if len(pcm) == 0 {
		return
	}
	// The mark name is fixed; downstream TTFA only cares about the first
	// occurrence.
	r.marks.Record(MarkFirstAudio)
	if r.cb.OnAudio != nil {
		r.cb.OnAudio(pcm)
	}
}

func (r *Router) routeResponseDone(evt *Event) {
	report := evt.Usage
	if report == nil && evt.Response != nil {
		report = evt.Response.Usage
	}
	if report != nil && r.cb.OnUsage != nil {
		r.cb.OnUsage(*report)
	}

	r.finalizeAssistant()

	if evt.Type == TypeResponseCompleted && r.cb.OnResponseCompleted != nil {
		r.cb.OnResponseCompleted()
	}
}

func (r *Router) routeInputTranscriptionDone(evt *Event) {
	if evt.Transcript != "" {
		// Direct delivery: the completed event carries the whole utterance.
		r.marks.Record(MarkTranscriptionCompleted)
		r.emitFinal(RoleUser, evt.Transcript, "")
		r.userBuf = ""
		return
	}
	r.finalizeUser()
}

func (r *Router) routeItemCreated(evt *Event) {
	it := evt.Item
	if it == nil {
		return
	}

	switch it.Type {
	case "function_call":
		callID := it.CallID
		if callID == "" {
			callID = it.ID
		}
		if callID == "" {
			callID = NewID()
		}
		if _, done := r.processed[callID]; done {
			r.log.Debug("skipping duplicate tool call", "call_id", callID)
			return
		}
		r.processed[callID] = struct{}{}
		r.emitToolCall(callID, it.Name, parseArgs(it.Arguments))

	case "message":
		// Alternate delivery path for a user transcript: some upstream
		// versions inline the text on the created item instead of streaming
		// transcription events.
		if it.Role == string(RoleUser) {
			if text := it.text(); text != "" {
				r.emitFinal(RoleUser, text, it.ID)
			}
		}
	}
}

func (r *Router) routeItemCompleted(evt *Event) {
	it := evt.Item
	if it == nil || it.Type != "message" || it.Role != string(RoleAssistant) {
		return
	}
	if text := it.text(); text != "" {
		r.emitFinal(RoleAssistant, text, it.ID)
	}
}

func (r *Router) routeToolArgsDelta(evt *Event) {
	if evt.CallID == "" {
		r.log.Debug("function_call_arguments.delta without call_id")
		return
	}
	buf, ok := r.calls[evt.CallID]
	if !ok {
		buf = &toolCallBuffer{name: evt.Name}
		r.calls[evt.CallID] = buf
	}
	if buf.name == "" && evt.Name != "" {
		buf.name = evt.Name
	}
	buf.args += evt.Delta
	if r.cb.OnToolCallDelta != nil {
		r.cb.OnToolCallDelta(evt.CallID, evt.Delta)
	}
}

func (r *Router) routeToolArgsDone(evt *Event) {
	callID := evt.CallID
	if callID == "" {
		return
	}

	buf := r.calls[callID]
	// The buffer is cleared whatever happens below: a failed parse must not
	// leave stale fragments behind for an unrelated later call.
	delete(r.calls, callID)

	args := ""
	name := evt.Name
	if buf != nil {
		args = buf.args
		if name == "" {
			name = buf.name
		}
	}
	// The done event may carry a trailing fragment of its own, and some
	// upstream versions put the complete argument string on it instead of
	// streaming deltas. Fold the fragment in, then prefer the complete
	// string when it covers more than what was accumulated.
	args += evt.Delta
	if len(evt.Arguments) > len(args) {
		args = evt.Arguments
	}
	if args == "" {
		return
	}

	if _, done := r.processed[callID]; done {
		r.log.Debug("skipping duplicate tool call", "call_id", callID)
		return
	}

	parsed, err := parseArgsStrict(args)
	if err != nil {
		// Not marked processed: a later, well-formed delivery of the same
		// call may still succeed.
		r.emitError(fmt.Errorf("realtime: tool call %s arguments: %w", callID, err))
		return
	}

	r.processed[callID] = struct{}{}
	r.emitToolCall(callID, name, parsed)
	if r.cb.OnToolCallDone != nil {
		r.cb.OnToolCallDone(callID)
	}
	r.marks.Record(MarkToolCallDone)
}

// routeUnknown is the best-effort safety net for protocol additions. If the
// type string smells like a usage report, forward any usage payload; if it
// smells like user transcript content, salvage a plausible text field. This
// path deliberately stays outside the tool-call idempotence guarantees.
func (r *Router) routeUnknown(evt *Event) {
	lower := strings.ToLower(evt.Type)

	if containsAny(lower, "usage", "token", "cost") {
		report := evt.Usage
		if report == nil && evt.Response != nil {
			report = evt.Response.Usage
		}
		if report != nil && r.cb.OnUsage != nil {
			r.cb.OnUsage(*report)
			return
		}
	}

	if containsAny(lower, "transcript", "input", "user") {
		for _, candidate := range []string{
			evt.Transcript,
			evt.Text,
			evt.Delta,
			rawString(evt.Content),
			rawString(evt.Message),
		} {
			if s := strings.TrimSpace(candidate); s != "" {
				r.log.Debug("salvaged transcript from unknown event", "type", evt.Type)
				r.emitFinal(RoleUser, s, "")
				return
			}
		}
	}

	r.log.Debug("ignoring unknown event type", "type", evt.Type)
}

func (r *Router) finalizeAssistant() {
	text := strings.TrimSpace(r.aiBuf)
	r.aiBuf = ""
	if text == "" {
		return
	}
	r.emitFinal(RoleAssistant, text, "")
}

func (r *Router) finalizeUser() {
	text := strings.TrimSpace(r.userBuf)
	r.userBuf = ""
	if text == "" {
		return
	}
	r.emitFinal(RoleUser, text, "")
}

func (r *Router) emitPartial(role Role, accumulated string) {
	if r.cb.OnPartialTranscript != nil {
		r.cb.OnPartialTranscript(role, accumulated)
	}
}

func (r *Router) emitFinal(role Role, text, id string) {
	if r.cb.OnTranscript == nil {
		return
	}
	if id == "" {
		id = NewID()
	}
	r.cb.OnTranscript(Transcript{
		ID:        id,
		Role:      role,
		Text:      text,
		Kind:      KindFinal,
		Timestamp: r.now(),
	})
}

func (r *Router) emitToolCall(callID, name string, args map[string]any) {
	if r.cb.OnToolCall == nil {
		return
	}
	r.cb.OnToolCall(ToolCall{
		ID:        callID,
		Name:      name,
		Arguments: args,
		Timestamp: r.now(),
	})
}

func (r *Router) emitError(err error) {
	if r.cb.OnError != nil {
		r.cb.OnError(err)
	}
}

func errorFromEvent(evt *Event) error {
	if evt.Error != nil && evt.Error.Message != "" {
		return fmt.Errorf("realtime: upstream error %s: %s", evt.Error.Code, evt.Error.Message)
	}
	return fmt.Errorf("realtime: upstream error")
}

// parseArgs decodes a tool argument string leniently: empty or malformed
// input yields an empty map. Used on the item-created path where arguments
// may not have streamed yet.
func parseArgs(s string) map[string]any {
	parsed, err := parseArgsStrict(s)
	if err != nil {
		return map[string]any{}
	}
	return parsed
}

func parseArgsStrict(s string) (map[string]any, error) {
	if s == "" {
		return map[string]any{}, nil
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(s), &parsed); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	if parsed == nil {
		parsed = map[string]any{}
	}
	return parsed, nil
}

// rawString unquotes a JSON value when it is a plain string, for the
// heuristic field scan.
func rawString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
