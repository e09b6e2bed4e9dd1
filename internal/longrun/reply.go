package longrun

import (
	"encoding/json"
	"errors"
)

// Wire statuses and messages shared by every transport that exposes a
// Tracker (agent tools, MCP, HTTP).
const (
	StatusStarted = "STARTED"
	StatusPending = "PENDING"
	StatusOK      = "OK"
	StatusError   = "ERROR"

	MessageNotReady      = "NOT_READY"
	MessageMissingHandle = "MISSING_HANDLE"
	MessageNoSuchHandle  = "NO_SUCH_HANDLE"
)

// Reply is the request/response shape of start and resume calls. Replies
// for a finished operation always carry payload and result on the wire,
// even when they are empty.
type Reply struct {
	Status  string `json:"status"`
	Handle  string `json:"handle,omitempty"`
	Message string `json:"message,omitempty"`
	Payload string `json:"payload,omitempty"`
	Result  any    `json:"result,omitempty"`

	finished bool
}

// MarshalJSON implements json.Marshaler.
func (r Reply) MarshalJSON() ([]byte, error) {
	type plain Reply
	if r.Status != StatusOK && !r.finished {
		return json.Marshal(plain(r))
	}
	return json.Marshal(struct {
		Status  string `json:"status"`
		Handle  string `json:"handle,omitempty"`
		Message string `json:"message,omitempty"`
		Payload string `json:"payload"`
		Result  any    `json:"result"`
	}{r.Status, r.Handle, r.Message, r.Payload, r.Result})
}

// StartedReply is the reply to a start call.
func StartedReply(handle string) Reply {
	return Reply{Status: StatusStarted, Handle: handle}
}

// ResumeReply converts the return values of Tracker.Resume into a Reply.
func ResumeReply(out Outcome, err error) Reply {
	switch {
	case errors.Is(err, ErrMissingHandle):
		return Reply{Status: StatusError, Message: MessageMissingHandle}
	case errors.Is(err, ErrUnknownHandle):
		return Reply{Status: StatusError, Message: MessageNoSuchHandle}
	case err != nil:
		return Reply{Status: StatusError, Message: err.Error()}
	}

	if out.State == StatePending {
		return Reply{Status: StatusPending, Message: MessageNotReady}
	}
	if out.Err != nil {
		return Reply{Status: StatusError, Payload: out.Payload, Message: out.Err.Error(), finished: true}
	}
	return Reply{Status: StatusOK, Payload: out.Payload, Result: out.Result, finished: true}
}

// Map returns the reply as a JSON object, the form tool callers exchange.
func (r Reply) Map() map[string]any {
	data, err := json.Marshal(r)
	if err != nil {
		return map[string]any{"status": StatusError, "message": err.Error()}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]any{"status": StatusError, "message": err.Error()}
	}
	return m
}
