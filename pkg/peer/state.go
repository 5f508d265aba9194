package peer

const (
	// Outbound connections were dialed by this node
	Outbound Direction = iota
	// Inbound connections were accepted by this node
	Inbound
)

// Direction records which side initiated a connection
type Direction uint8

func (d Direction) String() string {
	switch d {
	case Outbound:
		return "outbound"
	case Inbound:
		return "inbound"
	}

	panic("unreachable")
}

const (
	// Connecting is the initial state, up to handshake completion
	Connecting State = iota
	// Active connections have completed the handshake
	Active
	// Closing is terminal
	Closing
)

// State of a connection's lifecycle.  Transitions are monotonic:
// Connecting -> Active -> Closing, or Connecting -> Closing.
type State int32

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Active:
		return "active"
	case Closing:
		return "closing"
	}

	panic("unreachable")
}

// StateHandler is called when a connection changes state
type StateHandler interface {
	OnState(*Conn, State)
}

// StateHandlerFunc is a function that satisfies StateHandler
type StateHandlerFunc func(*Conn, State)

// OnState calls the function that underpins StateHandlerFunc
func (h StateHandlerFunc) OnState(c *Conn, s State) { h(c, s) }
