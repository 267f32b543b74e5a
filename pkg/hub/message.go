// Package hub fans state updates out to websocket clients using a
// channel-owned client set.
package hub

import "encoding/json"

// Message is one pre-encoded JSON frame.
type Message struct {
	Data []byte
}

// NewJSONMessage encodes v as a Message.
func NewJSONMessage(v any) (Message, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Message{}, err
	}
	return Message{Data: data}, nil
}
