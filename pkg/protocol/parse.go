package protocol

import (
	"encoding/json"
	"strings"
)

// Parse classifies one inbound data-channel message.
//
// Malformed JSON, a missing type and known types lacking required fields
// return a *ProtocolError. Well-formed messages the client does not act on
// return Unrecognized with a nil error.
func Parse(data []byte) (Event, error) {
	msg, err := ParseMessage(data)
	if err != nil {
		return nil, err
	}

	var p payload
	if err := msg.ParseData(&p); err != nil {
		return nil, err
	}
	t := msg.Type

	switch t {
	case TypeSessionCreated, TypeTranscriptionSessionCreated:
		ev := SessionReady{Type: t}
		if p.Session != nil {
			ev.SessionID = p.Session.ID
		}
		return ev, nil

	case TypeResponseCreated, TypeResponseDone:
		phase := PhaseOpen
		if t == TypeResponseDone {
			phase = PhaseClose
		}
		ev := TurnBoundary{Type: t, Role: RoleAssistant, Phase: phase, Kind: BoundaryResponse}
		if p.Response != nil {
			ev.TurnKey = p.Response.ID
		}
		return ev, nil

	case TypeAudioTranscriptDelta, TypeOutputAudioTranscriptDelta, TypeResponseTextDelta:
		return AssistantTextDelta{
			Type:    t,
			Text:    str(p.Delta),
			TurnKey: TurnKey(p.ResponseID, p.ItemID),
		}, nil

	case TypeAudioTranscriptDone, TypeOutputAudioTranscriptDone:
		return TurnBoundary{
			Type:    t,
			Role:    RoleAssistant,
			Phase:   PhaseClose,
			Kind:    BoundaryTranscript,
			TurnKey: TurnKey(p.ResponseID, p.ItemID),
		}, nil

	case TypeOutputAudioBufferStarted:
		return TurnBoundary{Type: t, Role: RoleAssistant, Phase: PhaseOpen, Kind: BoundaryAudio, TurnKey: p.ResponseID}, nil

	case TypeOutputAudioBufferStopped, TypeOutputAudioBufferCleared,
		TypeResponseAudioDone, TypeResponseOutputAudioDone:
		return TurnBoundary{Type: t, Role: RoleAssistant, Phase: PhaseClose, Kind: BoundaryAudio, TurnKey: p.ResponseID}, nil

	case TypeInputAudioSpeechStarted, TypeInputAudioSpeechStopped:
		phase := PhaseOpen
		if t == TypeInputAudioSpeechStopped {
			phase = PhaseClose
		}
		return TurnBoundary{Type: t, Role: RoleUser, Phase: phase, Kind: BoundarySpeech, TurnKey: p.ItemID}, nil

	case TypeInputAudioTranscriptionDelta:
		text := str(p.Delta)
		if p.Delta == nil {
			text = str(p.Transcript)
		}
		return UserTextDelta{Type: t, Text: text, ItemID: p.ItemID}, nil

	case TypeInputAudioTranscriptionDone:
		text := str(p.Transcript)
		if p.Transcript == nil {
			text = str(p.Text)
		}
		return UserTranscriptCompleted{Type: t, Text: text, ItemID: p.ItemID}, nil

	case TypeFunctionCallArgumentsDone:
		if p.Name == "" {
			return nil, missing(t, "name")
		}
		if p.CallID == "" {
			return nil, missing(t, "call_id")
		}
		args := strings.TrimSpace(str(p.Arguments))
		if args == "" {
			args = "{}"
		}
		return ToolCallRequested{Type: t, Name: p.Name, CallID: p.CallID, Arguments: json.RawMessage(args)}, nil

	case TypeError:
		ev := ErrorReported{Type: t, Message: "unknown error"}
		if p.Error != nil {
			ev.Code = p.Error.Code
			if p.Error.Message != "" {
				ev.Message = p.Error.Message
			}
		}
		return ev, nil
	}

	return fallback(t, &p), nil
}

// fallback normalizes transcription shapes outside the fixed vocabulary.
// Assistant-side types are never treated as user speech.
func fallback(t MessageType, p *payload) Event {
	s := string(t)
	if strings.HasPrefix(s, "response.") || strings.HasPrefix(s, "output_audio") {
		return Unrecognized{Type: t}
	}
	switch {
	case p.Delta != nil && *p.Delta != "":
		return UserTextDelta{Type: t, Text: *p.Delta, ItemID: p.ItemID}
	case p.Transcript != nil:
		return UserTranscriptCompleted{Type: t, Text: *p.Transcript, ItemID: p.ItemID}
	case p.Text != nil && *p.Text != "":
		return UserTextDelta{Type: t, Text: *p.Text, ItemID: p.ItemID}
	}
	return Unrecognized{Type: t}
}
