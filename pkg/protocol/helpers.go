package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// =============================================================================
// Outbound messages
// =============================================================================

// Header is embedded in every outbound message.
type Header struct {
	Type    MessageType `json:"type"`
	EventID string      `json:"event_id,omitempty"`
}

func newHeader(t MessageType) Header {
	return Header{Type: t, EventID: "evt_" + uuid.NewString()}
}

// ToolDefinition describes a callable function to the remote agent.
type ToolDefinition struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// TurnDetection configures server-side voice activity detection.
type TurnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold,omitempty"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms,omitempty"`
	SilenceDurationMs int     `json:"silence_duration_ms,omitempty"`
}

// DefaultTurnDetection returns server VAD settings tuned for spoken answers.
func DefaultTurnDetection() *TurnDetection {
	return &TurnDetection{
		Type:              "server_vad",
		Threshold:         0.5,
		PrefixPaddingMs:   300,
		SilenceDurationMs: 2000,
	}
}

// Transcription selects the model that transcribes input audio.
type Transcription struct {
	Model    string `json:"model"`
	Language string `json:"language,omitempty"`
	Prompt   string `json:"prompt,omitempty"`
}

// NoiseReduction selects an input noise reduction profile.
type NoiseReduction struct {
	Type string `json:"type"`
}

// SessionConfig is the body of a session.update.
type SessionConfig struct {
	Instructions            string           `json:"instructions,omitempty"`
	Voice                   string           `json:"voice,omitempty"`
	Modalities              []string         `json:"modalities,omitempty"`
	InputAudioTranscription *Transcription   `json:"input_audio_transcription,omitempty"`
	TurnDetection           *TurnDetection   `json:"turn_detection,omitempty"`
	Tools                   []ToolDefinition `json:"tools,omitempty"`
	ToolChoice              string           `json:"tool_choice,omitempty"`
	Temperature             float64          `json:"temperature,omitempty"`
}

// SessionUpdate configures a realtime conversation session.
type SessionUpdate struct {
	Header
	Session SessionConfig `json:"session"`
}

// NewSessionUpdate creates a session.update message.
func NewSessionUpdate(cfg SessionConfig) *SessionUpdate {
	if cfg.ToolChoice == "" && len(cfg.Tools) > 0 {
		cfg.ToolChoice = "auto"
	}
	return &SessionUpdate{Header: newHeader(TypeSessionUpdate), Session: cfg}
}

// TranscriptionConfig is the body of a transcription_session.update.
type TranscriptionConfig struct {
	InputAudioFormat         string          `json:"input_audio_format,omitempty"`
	InputAudioTranscription  *Transcription  `json:"input_audio_transcription"`
	TurnDetection            *TurnDetection  `json:"turn_detection,omitempty"`
	InputAudioNoiseReduction *NoiseReduction `json:"input_audio_noise_reduction,omitempty"`
}

// DefaultTranscriptionConfig returns the capture flow's transcription settings.
func DefaultTranscriptionConfig(model string) TranscriptionConfig {
	if model == "" {
		model = "gpt-4o-mini-transcribe"
	}
	return TranscriptionConfig{
		InputAudioTranscription:  &Transcription{Model: model},
		TurnDetection:            DefaultTurnDetection(),
		InputAudioNoiseReduction: &NoiseReduction{Type: "near_field"},
	}
}

// TranscriptionSessionUpdate configures a transcription-only session.
type TranscriptionSessionUpdate struct {
	Header
	Session TranscriptionConfig `json:"session"`
}

// NewTranscriptionSessionUpdate creates a transcription_session.update message.
func NewTranscriptionSessionUpdate(cfg TranscriptionConfig) *TranscriptionSessionUpdate {
	return &TranscriptionSessionUpdate{Header: newHeader(TypeTranscriptionSessionUpdate), Session: cfg}
}

// FunctionCallOutputItem carries a tool result back to the remote agent.
type FunctionCallOutputItem struct {
	Type   string `json:"type"`
	CallID string `json:"call_id"`
	Output string `json:"output"`
}

// ConversationItemCreate adds an item to the remote conversation.
type ConversationItemCreate struct {
	Header
	Item FunctionCallOutputItem `json:"item"`
}

// NewFunctionCallOutput creates a conversation.item.create holding the
// JSON-encoded output of the tool call identified by callID.
func NewFunctionCallOutput(callID string, output any) (*ConversationItemCreate, error) {
	encoded, err := json.Marshal(output)
	if err != nil {
		return nil, fmt.Errorf("encode tool output: %w", err)
	}
	return &ConversationItemCreate{
		Header: newHeader(TypeConversationItemCreate),
		Item: FunctionCallOutputItem{
			Type:   "function_call_output",
			CallID: callID,
			Output: string(encoded),
		},
	}, nil
}

// ResponseOptions overrides the session defaults for one response.
type ResponseOptions struct {
	Instructions string   `json:"instructions,omitempty"`
	Modalities   []string `json:"modalities,omitempty"`
}

// ResponseCreate asks the remote agent to produce a response.
type ResponseCreate struct {
	Header
	Response *ResponseOptions `json:"response,omitempty"`
}

// NewResponseCreate creates a response.create message.
func NewResponseCreate() *ResponseCreate {
	return &ResponseCreate{Header: newHeader(TypeResponseCreate)}
}

// NewSpokenResponse asks the agent to read text aloud verbatim.
func NewSpokenResponse(text string) *ResponseCreate {
	r := NewResponseCreate()
	r.Response = &ResponseOptions{
		Instructions: "Read the following text aloud exactly as written. Do not add anything.\n\n" + text,
		Modalities:   []string{"audio", "text"},
	}
	return r
}
