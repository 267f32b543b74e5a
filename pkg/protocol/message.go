// Package protocol defines the realtime voice data-channel vocabulary.
//
// Inbound messages are JSON objects discriminated by a "type" string.
// Parse classifies them into a small set of typed events; the builders in
// helpers.go produce the outbound messages the client is allowed to send.
package protocol

import (
	"encoding/json"
	"fmt"
)

// MessageType identifies the type of a data-channel message.
type MessageType string

const (
	// Remote → client: session lifecycle
	TypeSessionCreated              MessageType = "session.created"
	TypeSessionUpdated              MessageType = "session.updated"
	TypeTranscriptionSessionCreated MessageType = "transcription_session.created"
	TypeTranscriptionSessionUpdated MessageType = "transcription_session.updated"

	// Remote → client: assistant response
	TypeResponseCreated                MessageType = "response.created"
	TypeResponseDone                   MessageType = "response.done"
	TypeResponseTextDelta              MessageType = "response.text.delta"
	TypeAudioTranscriptDelta           MessageType = "response.audio_transcript.delta"
	TypeAudioTranscriptDone            MessageType = "response.audio_transcript.done"
	TypeOutputAudioTranscriptDelta     MessageType = "response.output_audio_transcript.delta"
	TypeOutputAudioTranscriptDone      MessageType = "response.output_audio_transcript.done"
	TypeResponseAudioDone              MessageType = "response.audio.done"
	TypeResponseOutputAudioDone        MessageType = "response.output_audio.done"
	TypeOutputAudioBufferStarted       MessageType = "output_audio_buffer.started"
	TypeOutputAudioBufferStopped       MessageType = "output_audio_buffer.stopped"
	TypeOutputAudioBufferCleared       MessageType = "output_audio_buffer.cleared"
	TypeFunctionCallArgumentsDone      MessageType = "response.function_call_arguments.done"
	TypeInputAudioSpeechStarted        MessageType = "input_audio_buffer.speech_started"
	TypeInputAudioSpeechStopped        MessageType = "input_audio_buffer.speech_stopped"
	TypeInputAudioTranscriptionDelta   MessageType = "conversation.item.input_audio_transcription.delta"
	TypeInputAudioTranscriptionDone    MessageType = "conversation.item.input_audio_transcription.completed"
	TypeInputAudioTranscriptionFailed  MessageType = "conversation.item.input_audio_transcription.failed"
	TypeError                          MessageType = "error"

	// Client → remote
	TypeSessionUpdate              MessageType = "session.update"
	TypeTranscriptionSessionUpdate MessageType = "transcription_session.update"
	TypeConversationItemCreate     MessageType = "conversation.item.create"
	TypeResponseCreate             MessageType = "response.create"
)

// Message is a raw inbound message with its discriminator decoded.
type Message struct {
	Type MessageType
	Raw  json.RawMessage
}

// ParseMessage decodes the type discriminator of a JSON message.
func ParseMessage(data []byte) (*Message, error) {
	var head struct {
		Type MessageType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, &ProtocolError{Cause: fmt.Errorf("%w: %v", ErrMalformed, err)}
	}
	if head.Type == "" {
		return nil, &ProtocolError{Cause: ErrMissingType}
	}
	return &Message{Type: head.Type, Raw: json.RawMessage(data)}, nil
}

// ParseData unmarshals the full message into v.
func (m *Message) ParseData(v any) error {
	if err := json.Unmarshal(m.Raw, v); err != nil {
		return &ProtocolError{Type: m.Type, Cause: fmt.Errorf("%w: %v", ErrMalformed, err)}
	}
	return nil
}

// payload is the union of the fields the reducer reads from inbound messages.
type payload struct {
	Type       MessageType `json:"type"`
	EventID    string      `json:"event_id"`
	Delta      *string     `json:"delta"`
	Transcript *string     `json:"transcript"`
	Text       *string     `json:"text"`
	ResponseID string      `json:"response_id"`
	ItemID     string      `json:"item_id"`
	CallID     string      `json:"call_id"`
	Name       string      `json:"name"`
	Arguments  *string     `json:"arguments"`

	Session *struct {
		ID string `json:"id"`
	} `json:"session"`

	Response *struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"response"`

	Error *struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
