package session

import (
	"github.com/yuriipolishchuk/ssh2iot/internal/tunnel"
)

// State is a step of the source-role session lifecycle.
type State int

const (
	Idle State = iota
	Opening
	AwaitingDestination
	ProxyStarting
	AwaitingSource
	Interactive
	Closing
	Closed
)

var stateNames = [...]string{
	Idle:                "idle",
	Opening:             "opening",
	AwaitingDestination: "awaiting-destination",
	ProxyStarting:       "proxy-starting",
	AwaitingSource:      "awaiting-source",
	Interactive:         "interactive",
	Closing:             "closing",
	Closed:              "closed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == Closed
}

// Observer is called on every state transition.
type Observer func(from, to State)

// TunnelSession is the orchestrator's view of one tunnel for its lifetime.
type TunnelSession struct {
	ID          string
	Thing       string
	AccessToken string
	Role        tunnel.Role
	Service     string
	LocalPort   int
	Status      State
}

// clearToken drops the access token. It is single-use and must not be
// reused once the source side has connected or the session has ended.
func (s *TunnelSession) clearToken() {
	s.AccessToken = ""
}
