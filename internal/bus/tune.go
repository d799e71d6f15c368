package bus

import (
	"net"
	"time"
)

// tuneSocket applies best-effort TCP tuning to a freshly dialed
// connection. Failure to tune is never fatal: a slower socket still
// speaks the protocol correctly.
func tuneSocket(conn net.Conn) {
	tcp, ok := conn.(*net.TCPConn)
	if !ok {
		return
	}
	_ = tcp.SetNoDelay(true)
	_ = tcp.SetKeepAlive(true)
	_ = tcp.SetKeepAlivePeriod(30 * time.Second)
}
