// Package ipc implements the session-scoped command protocol: one JSON
// request per Unix socket connection, one JSON response, connection closed.
// Framing is deliberate half-close: the client shuts down its write side to
// signal end-of-request, the server responds and closes. There is no
// multi-message framing, so every command gets its own fresh connection.
package ipc

import (
	"encoding/json"
	"fmt"
)

// Request is a single command invocation. Args carries either a JSON string
// or a structured value, decoded per command by the dispatcher.
type Request struct {
	Command string          `json:"command"`
	Args    json.RawMessage `json:"args,omitempty"`
}

// Response carries exactly one of Result or Error. The zero Response
// marshals as {"result":null}, which is a valid empty success.
type Response struct {
	Result interface{}
	Error  string
}

// OK builds a success response.
func OK(v interface{}) Response {
	return Response{Result: v}
}

// Fail builds an error response.
func Fail(format string, args ...interface{}) Response {
	return Response{Error: fmt.Sprintf(format, args...)}
}

// MarshalJSON enforces the result-XOR-error wire shape. The result key is
// always present on success so that falsy values (0, false, null) survive.
func (r Response) MarshalJSON() ([]byte, error) {
	if r.Error != "" {
		return json.Marshal(struct {
			Error string `json:"error"`
		}{Error: r.Error})
	}
	return json.Marshal(struct {
		Result interface{} `json:"result"`
	}{Result: r.Result})
}

// UnmarshalJSON decodes either wire shape.
func (r *Response) UnmarshalJSON(data []byte) error {
	var wire struct {
		Result interface{} `json:"result"`
		Error  string      `json:"error"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	r.Result = wire.Result
	r.Error = wire.Error
	return nil
}
