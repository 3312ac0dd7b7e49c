package server

import (
	"net"
	"time"

	"github.com/google/uuid"
)

// Hostname recorded when reverse lookup fails.
const unknownHost = "UNKNOWN"

// Largest binary chunk handed to the socket in one write.
const sendChunkSize = 5000

// Per-connection protocol mode. A connection speaks text commands until
// a successful image response arms streaming, and reverts once the
// payload is exhausted.
type protocolMode int

const (
	modeText protocolMode = iota
	modeBinaryStreaming
)

// Per-connection session state.
type conn struct {
	id          string
	nc          net.Conn
	hostname    string
	connectedAt time.Time

	mode    protocolMode
	payload []byte // Owned copy of the encoded image being streamed.
	total   int
	cursor  int
}

// Wraps an accepted connection, resolving the peer's hostname. Reverse
// lookup failure is not an error; the session just records a sentinel.
func newConn(nc net.Conn) *conn {
	return &conn{
		id:          uuid.NewString(),
		nc:          nc,
		hostname:    resolveHostname(nc.RemoteAddr()),
		connectedAt: time.Now(),
		mode:        modeText,
	}
}

func resolveHostname(addr net.Addr) string {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return unknownHost
	}

	names, err := net.LookupAddr(host)
	if err != nil || len(names) == 0 {
		return unknownHost
	}
	return names[0]
}

// Arms binary streaming for an encoded image. The connection takes
// ownership of the buffer until the final zero-length chunk releases it.
func (c *conn) arm(payload []byte) {
	c.payload = payload
	c.total = len(payload)
	c.cursor = 0
	c.mode = modeBinaryStreaming
}

// Returns the next chunk of the pending payload, at most sendChunkSize
// bytes. A zero-length chunk marks end of stream: the payload is
// released exactly once and the connection reverts to text framing.
func (c *conn) nextChunk() []byte {
	if c.mode != modeBinaryStreaming {
		return nil
	}

	if c.cursor == c.total {
		c.payload = nil
		c.total = 0
		c.cursor = 0
		c.mode = modeText
		return nil
	}

	n := c.total - c.cursor
	if n > sendChunkSize {
		n = sendChunkSize
	}

	chunk := c.payload[c.cursor : c.cursor+n]
	c.cursor += n
	return chunk
}

// Drops any pending payload, e.g. when the session parameters change
// or the client disconnects mid-stream.
func (c *conn) release() {
	c.payload = nil
	c.total = 0
	c.cursor = 0
	c.mode = modeText
}
