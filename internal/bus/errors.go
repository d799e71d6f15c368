package bus

import "errors"

// ErrTransport is wrapped into every error Send returns when a socket
// call is short, errors, or the connection dies.
var ErrTransport = errors.New("transport error")
