package sender

// CloseHandler receives the single asynchronous notification that a port has
// finished its two-phase close. HandleClosed runs on the loop goroutine,
// exactly once per port, after both the socket handle and the wakeup handle
// have reported closed.
type CloseHandler interface {
	HandleClosed(port *UDPSenderPort)
}

// CloseHandlerFunc adapts a plain function to the CloseHandler interface.
type CloseHandlerFunc func(port *UDPSenderPort)

// HandleClosed calls f(port).
func (f CloseHandlerFunc) HandleClosed(port *UDPSenderPort) {
	f(port)
}
