package transport

import (
	"bufio"
	"net"
	"sync"

	"github.com/datastax/go-cassandra-native-protocol/frame"

	"github.com/bjmb/simulacron-go/store"
)

// Conn is one accepted client socket attached to a bound Node. A reader
// goroutine decodes frames off the wire and, for each one, spawns a fresh
// goroutine to dispatch it against the Node's prime store; this lets
// distinct requests pipeline (a later request is processed while an
// earlier one's action list is still running, per spec.md §5) while a
// writer goroutine drains per-request result slots strictly in the order
// requests arrived, so responses never get reordered on the wire even when
// some are delayed.
type Conn struct {
	raw        net.Conn
	remoteAddr string
	node       *Node

	slots chan chan *frame.Frame

	closeOnce sync.Once

	compressorMu sync.Mutex
	compressor   Compressor
}

func newConn(raw net.Conn, node *Node) *Conn {
	return &Conn{
		raw:        raw,
		remoteAddr: raw.RemoteAddr().String(),
		node:       node,
		slots:      make(chan chan *frame.Frame, 64),
	}
}

// RemoteAddr is the address of the connected client.
func (c *Conn) RemoteAddr() string { return c.remoteAddr }

// SetCompressor records the Compressor negotiated off this connection's
// Startup frame, per spec.md §4.3's COMPRESSION capability.
func (c *Conn) SetCompressor(comp Compressor) {
	c.compressorMu.Lock()
	c.compressor = comp
	c.compressorMu.Unlock()
}

// Compressor reports the Compressor this connection negotiated on Startup,
// or CompressNone if it hasn't started up yet or declared none.
func (c *Conn) Compressor() Compressor {
	c.compressorMu.Lock()
	defer c.compressorMu.Unlock()
	return c.compressor
}

func (c *Conn) start() {
	go c.writeLoop()
	go c.readLoop()
}

func (c *Conn) readLoop() {
	defer c.Close()

	br := bufio.NewReader(c.raw)
	for {
		f, err := readFrame(br)
		if err != nil {
			return
		}

		slot := make(chan *frame.Frame, 8)
		c.slots <- slot

		go c.node.dispatch(c, f, slot)
	}
}

func (c *Conn) writeLoop() {
	for slot := range c.slots {
		for f := range slot {
			if f == nil {
				continue
			}
			if err := writeFrame(c.raw, f); err != nil {
				c.Close()
				return
			}
		}
	}
}

// CloseHow closes the connection using the indicated method. ShutdownRead
// and ShutdownWrite fall back to a full Disconnect when the underlying
// socket doesn't support a half-close (e.g. it isn't a *net.TCPConn), per
// spec.md §4.3.
func (c *Conn) CloseHow(how store.DisconnectHow) {
	switch how {
	case store.ShutdownRead:
		if hc, ok := c.raw.(interface{ CloseRead() error }); ok {
			_ = hc.CloseRead()
			return
		}
	case store.ShutdownWrite:
		if hc, ok := c.raw.(interface{ CloseWrite() error }); ok {
			_ = hc.CloseWrite()
			return
		}
	}
	c.Close()
}

// Close tears the connection down. Idempotent.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		_ = c.raw.Close()
		close(c.slots)
		c.node.forgetConn(c)
	})
}
