// Package bus owns the single stream socket the driver speaks to the
// remote RAID server on and turns one driver call into one
// request/response exchange.
package bus

import (
	"fmt"
	"io"
	"net"
	"time"

	"github.com/LeoZ100/RaidArrayDriver/internal/constants"
	"github.com/LeoZ100/RaidArrayDriver/internal/wire"
)

// Client owns at most one socket to the RAID server. It is not safe for
// concurrent use: the bus is synchronous and single-threaded, one
// outstanding request at a time.
type Client struct {
	addr       string
	blockSize  int
	conn       net.Conn
	dialTimeout time.Duration
	ioTimeout   time.Duration
}

// New creates a bus client bound to addr. No socket is opened until the
// first Send with op.Type == wire.Init.
func New(addr string, blockSize int) *Client {
	return &Client{
		addr:        addr,
		blockSize:   blockSize,
		dialTimeout: constants.DialTimeout,
		ioTimeout:   constants.IOTimeout,
	}
}

// Connected reports whether the client currently owns an open socket.
func (c *Client) Connected() bool {
	return c.conn != nil
}

// Send extracts type and block_quantity from op, computes the payload
// length for READ/WRITE, and performs exactly one exchange: transmit
// opcode, length, then (WRITE only) payload; receive opcode, length,
// then (READ only) payload into out.
//
// On Type == Init it dials a fresh socket first. On Type == Close it
// closes the socket after the exchange completes (successfully or not).
func (c *Client) Send(op wire.Opcode, payload []byte, out []byte) (resp wire.Opcode, err error) {
	if op.Type == wire.Init {
		if err := c.dial(); err != nil {
			return wire.Opcode{}, fmt.Errorf("bus: dial: %w", err)
		}
	}

	if c.conn == nil {
		return wire.Opcode{}, fmt.Errorf("bus: %w: no connection (call INIT first)", ErrTransport)
	}

	if op.Type == wire.Close {
		defer func() {
			if closeErr := c.conn.Close(); closeErr != nil && err == nil {
				err = fmt.Errorf("bus: %w: close socket: %v", ErrTransport, closeErr)
			}
			c.conn = nil
		}()
	}

	payloadLen := uint64(0)
	if op.Type == wire.Read || op.Type == wire.Write {
		payloadLen = uint64(op.BlockQuantity) * uint64(c.blockSize)
	}

	if err := c.conn.SetDeadline(time.Now().Add(c.ioTimeout)); err != nil {
		return wire.Opcode{}, fmt.Errorf("bus: %w: set deadline: %v", ErrTransport, err)
	}

	if err := writeFull(c.conn, op.EncodeBytes()); err != nil {
		return wire.Opcode{}, fmt.Errorf("bus: %w: write opcode: %v", ErrTransport, err)
	}

	lenBuf := make([]byte, 8)
	wire.PutUint64(lenBuf, payloadLen)
	if err := writeFull(c.conn, lenBuf); err != nil {
		return wire.Opcode{}, fmt.Errorf("bus: %w: write length: %v", ErrTransport, err)
	}

	if op.Type == wire.Write {
		if uint64(len(payload)) < payloadLen {
			return wire.Opcode{}, fmt.Errorf("bus: %w: short write payload: have %d need %d", ErrTransport, len(payload), payloadLen)
		}
		if err := writeFull(c.conn, payload[:payloadLen]); err != nil {
			return wire.Opcode{}, fmt.Errorf("bus: %w: write payload: %v", ErrTransport, err)
		}
	}

	respOpBuf := make([]byte, 8)
	if err := readFull(c.conn, respOpBuf); err != nil {
		return wire.Opcode{}, fmt.Errorf("bus: %w: read opcode: %v", ErrTransport, err)
	}
	respOp, err := wire.DecodeBytes(respOpBuf)
	if err != nil {
		return wire.Opcode{}, fmt.Errorf("bus: %w: %v", ErrTransport, err)
	}

	respLenBuf := make([]byte, 8)
	if err := readFull(c.conn, respLenBuf); err != nil {
		return wire.Opcode{}, fmt.Errorf("bus: %w: read length: %v", ErrTransport, err)
	}
	respLen := wire.Uint64(respLenBuf)

	if op.Type == wire.Read {
		if uint64(len(out)) < respLen {
			return wire.Opcode{}, fmt.Errorf("bus: %w: response payload too large for buffer: have %d need %d", ErrTransport, len(out), respLen)
		}
		if err := readFull(c.conn, out[:respLen]); err != nil {
			return wire.Opcode{}, fmt.Errorf("bus: %w: read payload: %v", ErrTransport, err)
		}
	}

	return respOp, nil
}

func (c *Client) dial() error {
	conn, err := net.DialTimeout("tcp", c.addr, c.dialTimeout)
	if err != nil {
		return err
	}
	tuneSocket(conn)
	c.conn = conn
	return nil
}

func writeFull(w io.Writer, buf []byte) error {
	n, err := w.Write(buf)
	if err != nil {
		return err
	}
	if n != len(buf) {
		return fmt.Errorf("short write: wrote %d of %d bytes", n, len(buf))
	}
	return nil
}

func readFull(r io.Reader, buf []byte) error {
	_, err := io.ReadFull(r, buf)
	return err
}
