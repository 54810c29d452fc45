// Package sockopt applies OS-level listener tuning (SO_REUSEADDR,
// TCP_NODELAY) the way a production HTTP server wants its accept socket
// configured. The actual syscalls are platform-gated; Tune is a no-op on
// platforms without a tuning file.
package sockopt

import "net"

// Tune applies best-effort socket tuning to ln. Listeners that are not
// *net.TCPListener (e.g. in tests using net.Pipe-backed listeners) are left
// untouched.
func Tune(ln net.Listener) {
	tcpLn, ok := ln.(*net.TCPListener)
	if !ok {
		return
	}
	tune(tcpLn)
}
