package nbd

import (
	"context"
	"log"
	"net"

	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"
)

// SizedDevice is the capability the server needs beyond Device: the
// greeting carries the volume's total size.
type SizedDevice interface {
	Device
	SizeBytes() int64
}

// readChunkSize bounds how much is read from the network per conn.Read call.
const readChunkSize = 32 * 1024

// Serve accepts connections on ln until ctx is cancelled, serving NBD
// oldstyle sessions backed by device. Each connection is handled by its own
// goroutine, supervised by an errgroup.Group. The block device is shared by
// reference across every connection with no locking: callers are expected
// not to mutate the same region of the volume concurrently from different
// connections.
func Serve(ctx context.Context, ln net.Listener, device SizedDevice, logger *log.Logger) error {
	var eg errgroup.Group
	eg.Go(func() error {
		<-ctx.Done()
		return ln.Close()
	})

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				_ = eg.Wait()
				return nil
			default:
				return xerrors.Errorf("nbd: accept: %w", err)
			}
		}
		eg.Go(func() error {
			handleConn(conn, device, logger)
			return nil
		})
	}
}

// handleConn drives one connection end to end: greeting, then Feed-ing
// chunks read off the wire until disconnection, a fatal protocol error, or
// a transport error.
func handleConn(conn net.Conn, device SizedDevice, logger *log.Logger) {
	defer conn.Close()

	greeting := appendGreeting(make([]byte, 0, greetingSize), device.SizeBytes())
	if _, err := conn.Write(greeting); err != nil {
		logger.Printf("nbd: %s: writing greeting: %v", conn.RemoteAddr(), err)
		return
	}

	engine := NewEngine(device)
	buf := make([]byte, readChunkSize)
	for {
		n, readErr := conn.Read(buf)
		if n > 0 {
			if err := engine.Feed(buf[:n], conn); err != nil {
				logger.Printf("nbd: %s: %v", conn.RemoteAddr(), err)
				return
			}
			if engine.Disconnected() {
				return
			}
		}
		if readErr != nil {
			return
		}
	}
}
