package protocol

import "encoding/json"

// Role identifies who produced a transcript fragment.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Phase is the direction of a turn boundary.
type Phase int

const (
	PhaseOpen Phase = iota
	PhaseClose
)

func (p Phase) String() string {
	if p == PhaseOpen {
		return "open"
	}
	return "close"
}

// BoundaryKind says which wire signal produced a turn boundary.
type BoundaryKind string

const (
	// BoundaryResponse is an assistant response starting or finishing.
	BoundaryResponse BoundaryKind = "response"

	// BoundaryAudio is assistant audio playback starting or stopping.
	BoundaryAudio BoundaryKind = "audio"

	// BoundaryTranscript is the assistant transcript for one item completing.
	BoundaryTranscript BoundaryKind = "transcript"

	// BoundarySpeech is server VAD detecting user speech start or stop.
	BoundarySpeech BoundaryKind = "speech"
)

// Event is the typed result of classifying one inbound message.
type Event interface {
	// WireType returns the message type the event was parsed from.
	WireType() MessageType
}

// SessionReady confirms the remote session was negotiated.
type SessionReady struct {
	Type      MessageType
	SessionID string
}

// AssistantTextDelta is an incremental fragment of assistant speech text.
type AssistantTextDelta struct {
	Type    MessageType
	Text    string
	TurnKey string
}

// UserTextDelta is an incremental fragment of user speech text.
type UserTextDelta struct {
	Type   MessageType
	Text   string
	ItemID string
}

// UserTranscriptCompleted carries the full transcript of one user utterance.
// It replaces any accumulated deltas for that utterance and closes the turn.
type UserTranscriptCompleted struct {
	Type   MessageType
	Text   string
	ItemID string
}

// TurnBoundary marks a turn opening or closing.
type TurnBoundary struct {
	Type    MessageType
	Role    Role
	Phase   Phase
	Kind    BoundaryKind
	TurnKey string
}

// ToolCallRequested asks the client to run a named capability.
type ToolCallRequested struct {
	Type      MessageType
	Name      string
	CallID    string
	Arguments json.RawMessage
}

// ErrorReported is an error raised by the remote endpoint.
type ErrorReported struct {
	Type    MessageType
	Code    string
	Message string
}

// Unrecognized is any well-formed message the client does not act on.
type Unrecognized struct {
	Type MessageType
}

func (e SessionReady) WireType() MessageType            { return e.Type }
func (e AssistantTextDelta) WireType() MessageType      { return e.Type }
func (e UserTextDelta) WireType() MessageType           { return e.Type }
func (e UserTranscriptCompleted) WireType() MessageType { return e.Type }
func (e TurnBoundary) WireType() MessageType            { return e.Type }
func (e ToolCallRequested) WireType() MessageType       { return e.Type }
func (e ErrorReported) WireType() MessageType           { return e.Type }
func (e Unrecognized) WireType() MessageType            { return e.Type }

// TurnKey joins a response id and item id into one opaque turn identity.
// Either part may be empty; both empty yields "".
func TurnKey(responseID, itemID string) string {
	if responseID == "" && itemID == "" {
		return ""
	}
	return responseID + ":" + itemID
}
