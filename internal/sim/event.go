package sim

// Event kinds, in the order they are emitted within a tick.
const (
	EventAdmit  = "admit"
	EventDrain  = "drain"
	EventFlush  = "flush"
	EventIssue  = "issue"
	EventCancel = "cancel"
)

// Event is one observable occurrence in the model, stamped with the tick
// it happened on. Events exist for tracing and assertions only; nothing
// in the model reads them back.
type Event struct {
	Tick    uint64 `json:"tick"`
	Kind    string `json:"kind"`
	Port    int    `json:"port,omitempty"`
	Tag     string `json:"tag,omitempty"`
	Payload string `json:"payload,omitempty"`
	Via     string `json:"via,omitempty"`
	Count   uint32 `json:"count,omitempty"`
}

// Recorder consumes the event stream of a run.
// Implemented by the trace store (durable) and the harness (in-memory).
type Recorder interface {
	Record(ev Event)
}

// RecorderFunc adapts a function to the Recorder interface.
type RecorderFunc func(ev Event)

// Record implements Recorder.
func (f RecorderFunc) Record(ev Event) { f(ev) }
