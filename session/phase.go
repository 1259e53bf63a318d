package session

import "sync/atomic"

// Phase is the protocol stage of a connection. Transitions only move
// forward; entering PhasePlay is the only one with a side effect.
type Phase uint32

const (
	PhaseHandshake Phase = iota
	PhaseStatus
	PhaseLogin
	PhasePlay
)

func (p Phase) String() string {
	switch p {
	case PhaseHandshake:
		return "handshake"
	case PhaseStatus:
		return "status"
	case PhaseLogin:
		return "login"
	case PhasePlay:
		return "play"
	}
	return "unknown"
}

// toggle is a one-way switch guarding the compression and encryption flags.
// enable performs the checked transition exactly once; later attempts fail
// with ErrAlreadyEnabled.
type toggle struct {
	state atomic.Bool
}

func (t *toggle) enabled() bool {
	return t.state.Load()
}

func (t *toggle) enable() error {
	if !t.state.CompareAndSwap(false, true) {
		return ErrAlreadyEnabled
	}
	return nil
}
