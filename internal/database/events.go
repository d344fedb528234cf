package database

import "fmt"

// EventType is a driver-level connection signal
type EventType int

const (
	EventConnected EventType = iota
	EventDisconnected
	EventError
)

func (t EventType) String() string {
	switch t {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventError:
		return "error"
	default:
		return fmt.Sprintf("event(%d)", int(t))
	}
}

// Event is a state-transition message consumed by the ConnectionManager loop.
// Generation identifies the handle that produced it; zero means "current".
type Event struct {
	Type       EventType
	Err        error
	Generation uint64
}

// EventSink receives driver signals
type EventSink func(Event)

// ConnStatus is the connection state reported by the manager
type ConnStatus string

const (
	StatusUninitialized ConnStatus = "uninitialized"
	StatusConnecting    ConnStatus = "connecting"
	StatusConnected     ConnStatus = "connected"
	StatusDisconnecting ConnStatus = "disconnecting"
	StatusDisconnected  ConnStatus = "disconnected"
)

// ReadyState maps the status onto the numeric codes health tooling expects
func (s ConnStatus) ReadyState() int {
	switch s {
	case StatusDisconnected:
		return 0
	case StatusConnected:
		return 1
	case StatusConnecting:
		return 2
	case StatusDisconnecting:
		return 3
	default:
		return 99
	}
}

// ConnectionError describes a failed connection attempt. It never leaves the
// manager; callers receive the fallback store instead.
type ConnectionError struct {
	Host string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection to %s failed: %v", e.Host, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }
