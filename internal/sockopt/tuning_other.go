//go:build !linux && !darwin

package sockopt

import "net"

func tune(*net.TCPListener) {}
