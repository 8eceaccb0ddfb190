package oob

import (
	"errors"
	"io"
	"log"
	"net"
	"time"
)

// Negotiate offers GMCP to a telnet client and waits up to timeout for
// the answer.
func Negotiate(conn net.Conn, timeout time.Duration) *Capabilities {
	caps := NewCapabilities()

	conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	conn.Write([]byte{IAC, WILL, TeloptGMCP})

	conn.SetReadDeadline(time.Now().Add(timeout))
	buf := make([]byte, 256)
	answered := false
	for !answered {
		n, err := conn.Read(buf)
		if err != nil {
			var ne net.Error
			if !(errors.As(err, &ne) && ne.Timeout()) && !errors.Is(err, io.EOF) {
				log.Printf("oob negotiate read error: %v", err)
			}
			break
		}
		for i := 0; i < n-2; i++ {
			if buf[i] != IAC || buf[i+2] != TeloptGMCP {
				continue
			}
			switch buf[i+1] {
			case DO:
				caps.GMCP = true
				answered = true
			case DONT:
				answered = true
			}
			i += 2
		}
	}

	conn.SetReadDeadline(time.Time{})
	conn.SetWriteDeadline(time.Time{})
	return caps
}
