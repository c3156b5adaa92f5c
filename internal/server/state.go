package server

// State mirrors the readiness of a connection's transport.
type State int32

const (
	// StateConnecting means the connection exists but its pumps have not
	// started. Messages sent now are queued and flushed once it opens.
	StateConnecting State = iota
	// StateOpen means messages flow in both directions.
	StateOpen
	// StateClosing means a close frame has been requested and the
	// connection is waiting for the peer to confirm.
	StateClosing
	// StateClosed is terminal.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateOpen:
		return "OPEN"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

func (s State) writable() bool {
	return s == StateConnecting || s == StateOpen
}
