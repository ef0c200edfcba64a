package jsonrpc

import (
	"bytes"
	"encoding/json"
)

// Encode serializes a Message to a single compact JSON document. The caller
// is responsible for applying the transport's frame delimiter (spec §4.1);
// Encode never appends one itself.
//
// encoding/json never emits an unescaped control byte inside a JSON string,
// so the stdio/TCP/Unix "no literal LF/CR" framing invariant (spec §4.1,
// testable property #7) holds automatically for any Message this function
// accepts.
func Encode(msg Message) ([]byte, error) {
	switch m := msg.(type) {
	case *Request:
		return json.Marshal(wireEnvelope{
			JSONRPC: Version,
			ID:      idPtr(m.ID),
			Method:  &m.Method,
			Params:  m.Params,
		})
	case *Notification:
		return json.Marshal(wireEnvelope{
			JSONRPC: Version,
			Method:  &m.Method,
			Params:  m.Params,
		})
	case *Response:
		env := wireEnvelope{JSONRPC: Version, ID: idPtr(m.ID)}
		if m.IsError() {
			env.Error = m.Error
		} else {
			env.Result = m.Result
			if env.Result == nil {
				env.Result = json.RawMessage("null")
			}
		}
		return json.Marshal(env)
	case Batch:
		return encodeBatch(m)
	default:
		return nil, NewError(CodeInternalError, "unknown message type")
	}
}

func encodeBatch(batch Batch) ([]byte, error) {
	if len(batch) == 0 {
		return nil, ErrEmptyBatch
	}
	parts := make([]json.RawMessage, 0, len(batch))
	for _, m := range batch {
		raw, err := Encode(m)
		if err != nil {
			return nil, err
		}
		parts = append(parts, raw)
	}
	return json.Marshal(parts)
}

func idPtr(id ID) *ID {
	v := id
	return &v
}

// Decode parses raw bytes into exactly one Message: a *Request, *Notification,
// *Response, or Batch (spec §3). It validates jsonrpc=="2.0", the
// result/error mutual exclusion, id presence rules, and batch non-emptiness.
func Decode(data []byte) (Message, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, NewError(CodeParseError, "empty message")
	}
	if trimmed[0] == '[' {
		return decodeBatch(trimmed)
	}
	return decodeOne(trimmed)
}

func decodeBatch(data []byte) (Message, error) {
	var rawItems []json.RawMessage
	if err := json.Unmarshal(data, &rawItems); err != nil {
		return nil, NewError(CodeParseError, "malformed batch: "+err.Error())
	}
	if len(rawItems) == 0 {
		return nil, ErrEmptyBatch
	}
	batch := make(Batch, 0, len(rawItems))
	for _, raw := range rawItems {
		msg, err := decodeOne(raw)
		if err != nil {
			return nil, err
		}
		batch = append(batch, msg)
	}
	return batch, nil
}

func decodeOne(data []byte) (Message, error) {
	var env wireEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, NewError(CodeParseError, "malformed envelope: "+err.Error())
	}
	if env.JSONRPC != Version {
		return nil, NewError(CodeInvalidRequest, "jsonrpc field must be \"2.0\"")
	}

	if env.Method != nil {
		if env.Result != nil || env.Error != nil {
			return nil, NewError(CodeInvalidRequest, "request envelope must not carry result or error")
		}
		if env.ID == nil {
			return &Notification{Method: *env.Method, Params: env.Params}, nil
		}
		return &Request{ID: *env.ID, Method: *env.Method, Params: env.Params}, nil
	}

	// No method: this must be a Response.
	hasResult := env.Result != nil
	hasError := env.Error != nil
	if hasResult == hasError {
		// Neither or both present — violates the mutual-exclusion invariant.
		if hasResult {
			return nil, NewError(CodeInvalidRequest, "response must not carry both result and error")
		}
		return nil, NewError(CodeInvalidRequest, "envelope has neither method nor result/error")
	}
	id := NullID
	if env.ID != nil {
		id = *env.ID
	}
	resp := &Response{ID: id}
	if hasError {
		resp.Error = env.Error
	} else {
		resp.Result = env.Result
	}
	return resp, nil
}
