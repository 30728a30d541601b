// Package rpc implements the JSON-RPC 2.0 envelope layer used by the MCP
// endpoint: request parsing, structural validation, batch handling, and
// response assembly.
//
// The codec is transport-agnostic. It takes a raw payload and a Dispatcher
// and returns zero or more responses; HTTP concerns (status codes, bodies)
// stay in the httpserver package.
//
// Batch members are processed independently: a parse or validation failure
// in one member never aborts its siblings, and responses for notifications
// (requests without an id) are never emitted.
package rpc

import (
	"context"
	"encoding/json"
)

// Protocol error codes defined by the JSON-RPC 2.0 specification.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Version is the only supported jsonrpc envelope version.
const Version = "2.0"

// Error is a JSON-RPC error object. Data carries the domain-specific
// error code (e.g. "invalid_limit") for validation failures.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// NewError creates a JSON-RPC error without attached data.
func NewError(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewErrorWithData creates a JSON-RPC error carrying a data payload.
func NewErrorWithData(code int, message string, data interface{}) *Error {
	return &Error{Code: code, Message: message, Data: data}
}

// Response is a single JSON-RPC response envelope. Exactly one of Result
// or Error is set.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// ResultResponse builds a success response correlated to id.
func ResultResponse(id interface{}, result interface{}) Response {
	return Response{JSONRPC: Version, Result: result, ID: id}
}

// ErrorResponse builds an error response correlated to id.
func ErrorResponse(id interface{}, err *Error) Response {
	return Response{JSONRPC: Version, Error: err, ID: id}
}

// Dispatcher routes a validated call to its handler. Implementations return
// either a result value or an error; a returned *Error is passed through to
// the client verbatim, any other error is masked as an internal error.
type Dispatcher interface {
	Dispatch(ctx context.Context, method string, params json.RawMessage) (interface{}, error)
}

// Outcome is the codec result for one payload. Batch reports whether the
// payload was an array envelope; an empty Responses slice with no Batch
// means the payload was a single notification.
type Outcome struct {
	Responses []Response
	Batch     bool
}

// Empty reports whether no response body should be written at all.
func (o Outcome) Empty() bool {
	return len(o.Responses) == 0
}

// Handle decodes body, dispatches every contained call, and aggregates the
// responses. It never returns an error: protocol failures surface as error
// responses per the JSON-RPC spec.
func Handle(ctx context.Context, body []byte, d Dispatcher) Outcome {
	var raw interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return Outcome{Responses: []Response{
			ErrorResponse(nil, NewError(CodeParseError, "Parse error")),
		}}
	}

	if batch, ok := raw.([]interface{}); ok {
		if len(batch) == 0 {
			return Outcome{
				Batch: true,
				Responses: []Response{
					ErrorResponse(nil, NewError(CodeInvalidRequest, "Invalid Request")),
				},
			}
		}

		responses := make([]Response, 0, len(batch))
		for _, member := range batch {
			if resp := handleValue(ctx, member, d); resp != nil {
				responses = append(responses, *resp)
			}
		}
		return Outcome{Responses: responses, Batch: true}
	}

	if resp := handleValue(ctx, raw, d); resp != nil {
		return Outcome{Responses: []Response{*resp}}
	}
	return Outcome{}
}

// handleValue validates and dispatches one decoded envelope. It returns nil
// when the envelope is a notification.
func handleValue(ctx context.Context, value interface{}, d Dispatcher) *Response {
	object, ok := value.(map[string]interface{})
	if !ok {
		resp := ErrorResponse(nil, NewError(CodeInvalidRequest, "Invalid Request"))
		return &resp
	}

	id, hasID := requestID(object)

	version, _ := object["jsonrpc"].(string)
	method, _ := object["method"].(string)
	if version != Version || method == "" {
		if !hasID {
			id = nil
		}
		resp := ErrorResponse(id, NewError(CodeInvalidRequest, "Invalid Request"))
		return &resp
	}

	var params json.RawMessage
	if rawParams, present := object["params"]; present {
		encoded, err := json.Marshal(rawParams)
		if err != nil {
			resp := ErrorResponse(id, NewError(CodeInvalidRequest, "Invalid Request"))
			return &resp
		}
		params = encoded
	}

	if !hasID {
		// Notification: dispatch for side effects, suppress the response.
		_, _ = d.Dispatch(ctx, method, params)
		return nil
	}

	result, err := d.Dispatch(ctx, method, params)
	var resp Response
	if err != nil {
		resp = ErrorResponse(id, mapError(err))
	} else {
		resp = ResultResponse(id, result)
	}
	return &resp
}

// requestID extracts the id member. A present-but-null id is treated the
// same as an absent one, matching notification semantics.
func requestID(object map[string]interface{}) (interface{}, bool) {
	id, present := object["id"]
	if !present || id == nil {
		return nil, false
	}
	return id, true
}

// mapError converts a handler error into a wire error. *Error passes
// through untouched; everything else is masked.
func mapError(err error) *Error {
	if rpcErr, ok := err.(*Error); ok {
		return rpcErr
	}
	return NewError(CodeInternalError, "Internal error")
}
