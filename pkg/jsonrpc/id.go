// Package jsonrpc implements the JSON-RPC 2.0 wire envelope used by MCP
// 2025-06-18: request/response/notification/batch encoding and decoding,
// transport framing rules, and the RequestId newtype used to correlate
// requests with responses across a session.
package jsonrpc

import (
	"encoding/json"
	"strconv"
)

// idKind distinguishes the three legal wire representations of an id.
type idKind uint8

const (
	idKindNull idKind = iota
	idKindString
	idKindNumber
)

// ID is a JSON-RPC request identifier: a non-null string or integer while
// outstanding, or null only on a Response whose originating Request could
// not be parsed. The zero value is the null id.
type ID struct {
	kind idKind
	str  string
	num  int64
}

// NewStringID builds a string-valued ID.
func NewStringID(s string) ID { return ID{kind: idKindString, str: s} }

// NewNumberID builds an integer-valued ID.
func NewNumberID(n int64) ID { return ID{kind: idKindNumber, num: n} }

// NullID is the id carried by a Response when the Request could not be
// parsed at all (spec §3).
var NullID = ID{kind: idKindNull}

// IsNull reports whether this is the null id.
func (id ID) IsNull() bool { return id.kind == idKindNull }

// IsString reports whether the id is a string.
func (id ID) IsString() bool { return id.kind == idKindString }

// String renders the id for logs and error messages, not for wire output.
func (id ID) String() string {
	switch id.kind {
	case idKindString:
		return strconv.Quote(id.str)
	case idKindNumber:
		return strconv.FormatInt(id.num, 10)
	default:
		return "null"
	}
}

// Equal implements structural equality, as required by spec §3 ("Equality
// is structural").
func (id ID) Equal(other ID) bool {
	if id.kind != other.kind {
		return false
	}
	switch id.kind {
	case idKindString:
		return id.str == other.str
	case idKindNumber:
		return id.num == other.num
	default:
		return true
	}
}

// MarshalJSON encodes the id per its kind; the null id marshals to the JSON
// literal null.
func (id ID) MarshalJSON() ([]byte, error) {
	switch id.kind {
	case idKindString:
		return json.Marshal(id.str)
	case idKindNumber:
		return json.Marshal(id.num)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts a JSON string, number, or null and resolves the kind
// accordingly. A non-integer number is rejected: MCP ids are never
// fractional.
func (id *ID) UnmarshalJSON(data []byte) error {
	trimmed := string(data)
	if trimmed == "null" {
		*id = ID{kind: idKindNull}
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err == nil {
		*id = ID{kind: idKindNumber, num: n}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return &Error{Code: CodeInvalidRequest, Message: "id must be a string, integer, or null"}
	}
	*id = ID{kind: idKindString, str: s}
	return nil
}
