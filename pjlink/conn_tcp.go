package pjlink

import (
	"net"

	"github.com/joomcode/errorx"
	"github.com/mikioh/tcp"
	"github.com/mikioh/tcpopt"
)

// tuneTCP forces netConn uncorked. PJLink frames are shorter than 136
// bytes and always form a complete request or response on their own; there
// is never a second write coming that corking could usefully batch with.
func tuneTCP(netConn net.Conn) error {
	tcpConn, err := tcp.NewConn(netConn)
	if err != nil {
		// Not a TCP socket (e.g. a test net.Pipe); nothing to tune.
		return nil
	}
	if err := tcpConn.SetOption(tcpopt.Cork(false)); err != nil {
		return errorx.EnsureStackTrace(err)
	}
	return nil
}
