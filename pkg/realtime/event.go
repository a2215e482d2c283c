package realtime

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/kaptinlin/jsonrepair"
)

// Client event types (sent over the auxiliary channel to the remote side).
const (
	EventTypeSessionUpdate          = "session.update"
	EventTypeInputAudioBufferAppend = "input_audio_buffer.append"
	EventTypeConversationItemCreate = "conversation.item.create"
	EventTypeResponseCreate         = "response.create"
)

// Server event types (received over the auxiliary channel).
const (
	EventTypeError          = "error"
	EventTypeSessionCreated = "session.created"
	EventTypeSessionUpdated = "session.updated"

	EventTypeConversationItemCreated = "conversation.item.created"

	EventTypeResponseDone                      = "response.done"
	EventTypeResponseFunctionCallArgumentsDone = "response.function_call_arguments.done"
)

// Response statuses carried by response.done.
const (
	ResponseStatusCompleted = "completed"
	ResponseStatusFailed    = "failed"
	ResponseStatusCancelled = "cancelled"
)

// Item types inside conversation events.
const (
	ItemTypeFunctionCall       = "function_call"
	ItemTypeFunctionCallOutput = "function_call_output"
)

// SessionConfig is the session-configure payload sent on channel open.
type SessionConfig struct {
	Modalities        []string   `json:"modalities,omitzero"`
	Instructions      string     `json:"instructions,omitzero"`
	Voice             string     `json:"voice,omitzero"`
	InputAudioFormat  string     `json:"input_audio_format,omitzero"`
	OutputAudioFormat string     `json:"output_audio_format,omitzero"`
	Tools             []ToolDecl `json:"tools,omitzero"`
}

// ConversationItem represents an item in the conversation.
type ConversationItem struct {
	ID        string          `json:"id,omitzero"`
	Type      string          `json:"type,omitzero"`
	Status    string          `json:"status,omitzero"`
	Role      string          `json:"role,omitzero"`
	CallID    string          `json:"call_id,omitzero"`   // for function_call and function_call_output
	Name      string          `json:"name,omitzero"`      // for function_call
	Arguments json.RawMessage `json:"arguments,omitzero"` // for function_call
	Output    string          `json:"output,omitzero"`    // for function_call_output
}

// ResponseResource represents a generation turn reported by response.done.
type ResponseResource struct {
	ID            string         `json:"id,omitzero"`
	Status        string         `json:"status,omitzero"`
	StatusDetails *StatusDetails `json:"status_details,omitzero"`
}

// StatusDetails carries failure detail for a response.
type StatusDetails struct {
	Type   string      `json:"type,omitzero"`
	Reason string      `json:"reason,omitzero"`
	Error  *EventError `json:"error,omitzero"`
}

// EventError contains error information from error events.
type EventError struct {
	Type    string `json:"type,omitzero"`
	Code    string `json:"code,omitzero"`
	Message string `json:"message,omitzero"`
	Param   string `json:"param,omitzero"`
	EventID string `json:"event_id,omitzero"`
}

// ToError converts EventError to Error.
func (e *EventError) ToError() *Error {
	return &Error{
		Type:    e.Type,
		Code:    e.Code,
		Message: e.Message,
		Param:   e.Param,
		EventID: e.EventID,
	}
}

// ServerEvent is an inbound control message, decoded as a tagged union.
type ServerEvent struct {
	Type    string `json:"type"`
	EventID string `json:"event_id,omitzero"`

	// Item is set for conversation.item.* events.
	Item *ConversationItem `json:"item,omitzero"`

	// Response is set for response.* events.
	Response *ResponseResource `json:"response,omitzero"`

	// CallID, Name and Arguments are set for function-call argument events.
	CallID    string          `json:"call_id,omitzero"`
	Name      string          `json:"name,omitzero"`
	Arguments json.RawMessage `json:"arguments,omitzero"`

	// Err is set for error events.
	Err *EventError `json:"error,omitzero"`

	// Raw is the original JSON message.
	Raw []byte `json:"-"`
}

// parseEvent parses a raw JSON message into a ServerEvent.
func parseEvent(message []byte) (*ServerEvent, error) {
	var event ServerEvent
	if err := json.Unmarshal(message, &event); err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	event.Raw = message
	return &event, nil
}

// FunctionCall is a tool invocation normalized from either delivery shape:
// a just-created conversation item of type function_call, or a
// function-call-arguments-done event.
type FunctionCall struct {
	CallID    string
	Name      string
	Arguments map[string]any
}

// FunctionCall extracts a normalized tool invocation from the event.
// It returns false if the event is not a tool invocation.
func (e *ServerEvent) FunctionCall() (*FunctionCall, bool, error) {
	var name, callID string
	var raw json.RawMessage

	switch {
	case e.Type == EventTypeResponseFunctionCallArgumentsDone:
		name, callID, raw = e.Name, e.CallID, e.Arguments
	case e.Type == EventTypeConversationItemCreated && e.Item != nil && e.Item.Type == ItemTypeFunctionCall:
		name, callID, raw = e.Item.Name, e.Item.CallID, e.Item.Arguments
	default:
		return nil, false, nil
	}

	args, err := decodeArguments(raw)
	if err != nil {
		return nil, true, fmt.Errorf("decode arguments for %q: %w", name, err)
	}
	return &FunctionCall{CallID: callID, Name: name, Arguments: args}, true, nil
}

// decodeArguments normalizes tool-call arguments. They arrive either as a
// structured JSON object or as a JSON-encoded string holding an object;
// model-produced strings are occasionally malformed and get repaired before
// the retry.
func decodeArguments(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}

	var args map[string]any
	if err := json.Unmarshal(raw, &args); err == nil {
		return args, nil
	}

	var encoded string
	if err := json.Unmarshal(raw, &encoded); err != nil {
		return nil, fmt.Errorf("arguments are neither object nor string: %s", truncate(string(raw), 200))
	}
	if encoded == "" {
		return map[string]any{}, nil
	}

	if err := json.Unmarshal([]byte(encoded), &args); err == nil {
		return args, nil
	}

	fixed, err := jsonrepair.JSONRepair(encoded)
	if err != nil {
		return nil, fmt.Errorf("unparseable arguments: %w", err)
	}
	if err := json.Unmarshal([]byte(fixed), &args); err != nil {
		return nil, fmt.Errorf("unparseable arguments: %w", err)
	}
	return args, nil
}

// generateEventID generates a unique client event ID.
func generateEventID() string {
	return "evt_" + uuid.New().String()[:12]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
