package roster

import (
	"encoding/json"
	"fmt"
)

// Events exchanged with the chat service.
const (
	EventLogin      = "login"
	EventAck        = "ack"
	EventUserUpdate = "user_update"
)

// Frame is one JSON text message on the chat socket.
type Frame struct {
	Event string            `json:"event"`
	Args  []json.RawMessage `json:"args,omitempty"`
	ID    int64             `json:"id,omitempty"`
}

// NewFrame marshals args into a frame.
func NewFrame(event string, id int64, args ...any) (*Frame, error) {
	f := &Frame{Event: event, ID: id}
	for _, a := range args {
		raw, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("marshal %s arg: %w", event, err)
		}
		f.Args = append(f.Args, raw)
	}
	return f, nil
}

// Users decodes the roster carried by a user_update frame. A missing or null
// argument is an empty roster.
func (f *Frame) Users() ([]string, error) {
	if len(f.Args) == 0 {
		return []string{}, nil
	}
	var users []string
	if err := json.Unmarshal(f.Args[0], &users); err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.Event, err)
	}
	if users == nil {
		users = []string{}
	}
	return users, nil
}
