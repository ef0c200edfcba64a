// Package session implements the bidirectional JSON-RPC peer: the per-connection
// state machine that allocates ids, correlates server-initiated requests with
// their responses, serves inbound requests under a bounded concurrency permit,
// and tears down cleanly on cancellation, EOF, or shutdown (spec §4.3).
package session

import "fmt"

// State is the session lifecycle state machine of spec §4.3.1.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateActive
	StateDraining
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateActive:
		return "active"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Role determines the default direction of outbound requests a session
// issues: a server session issues sampling/elicitation/roots/ping requests
// to its client; a client session answers them and issues nothing on its
// own initiative beyond what the application layer asks for.
type Role int

const (
	RoleServer Role = iota
	RoleClient
)

func (r Role) String() string {
	if r == RoleClient {
		return "client"
	}
	return "server"
}

// acceptedWhileNotActive is the exact method allowlist spec §4.3.1 grants
// to a session still in Uninitialized/Initializing.
var acceptedWhileNotActive = map[string]bool{
	"initialize":                  true,
	"notifications/initialized":   true,
	"ping":                        true,
}

// methodAllowed reports whether method may be dispatched given state.
func methodAllowed(state State, method string) bool {
	if state == StateActive || state == StateDraining {
		return true
	}
	return acceptedWhileNotActive[method]
}
