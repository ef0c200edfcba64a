package jsonrpc

import "encoding/json"

// Version is the only JSON-RPC version this codec accepts or emits.
const Version = "2.0"

// Message is implemented by Request, Response, Notification, and Batch —
// the four envelope variants of spec §3. Every envelope on the wire is
// exactly one of these.
type Message interface {
	isMessage()
}

// Request is a JSON-RPC request: has both a method and a non-null id.
type Request struct {
	ID     ID
	Method string
	Params json.RawMessage
}

func (*Request) isMessage() {}

// IsNotification is always false for Request; kept as a convenience so
// callers can treat Request/Notification uniformly when only Method and
// Params matter.
func (r *Request) IsNotification() bool { return false }

// Notification is a JSON-RPC request with no id: fire-and-forget, no
// Response is ever produced for it (spec §3, §4.3.4).
type Notification struct {
	Method string
	Params json.RawMessage
}

func (*Notification) isMessage() {}

// Response carries exactly one of Result or Error (spec §3 invariant).
// ID is null only when the originating Request could not be parsed.
type Response struct {
	ID     ID
	Result json.RawMessage
	Error  *Error
}

func (*Response) isMessage() {}

// IsError reports whether this response carries an error rather than a result.
func (r *Response) IsError() bool { return r.Error != nil }

// Batch is an ordered, non-empty array of Request/Notification/Response.
type Batch []Message

func (Batch) isMessage() {}

// wireEnvelope is the on-the-wire shape used to sniff and marshal a single
// (non-batch) envelope. Using RawMessage for result/error/params lets Decode
// validate presence without committing to a concrete params/result shape.
type wireEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *ID             `json:"id,omitempty"`
	Method  *string         `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// NewResult builds a success Response, marshaling result to JSON.
func NewResult(id ID, result any) (*Response, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return &Response{ID: id, Result: raw}, nil
}

// NewErrorResponse builds a failure Response for the given id and error.
func NewErrorResponse(id ID, rpcErr *Error) *Response {
	return &Response{ID: id, Error: rpcErr}
}

// NewRequest builds a Request, marshaling params to JSON (params may be nil).
func NewRequest(id ID, method string, params any) (*Request, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return &Request{ID: id, Method: method, Params: raw}, nil
}

// NewNotification builds a Notification, marshaling params to JSON.
func NewNotification(method string, params any) (*Notification, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return &Notification{Method: method, Params: raw}, nil
}

func marshalParams(params any) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	return json.Marshal(params)
}
