// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/safenet-project/safenet/lib/codec"
	"github.com/safenet-project/safenet/lib/keys"
	"github.com/safenet-project/safenet/lib/netutil"
	"github.com/safenet-project/safenet/lib/xorname"
)

// MaxFrameSize bounds one frame on the wire, header excluded.
const MaxFrameSize = 16 << 20

var (
	// ErrClosed is returned by operations on a closed Conn.
	ErrClosed = errors.New("transport: connection closed")

	// ErrNoResponse means a request was written but no response
	// arrived: the peer reset the stream, or the connection dropped
	// after the request went out.
	ErrNoResponse = errors.New("transport: no response")
)

type frameType uint8

const (
	frameOneway frameType = iota + 1
	frameRequest
	frameResponse
	frameReset
)

type frame struct {
	Stream  uint64    `cbor:"1,keyasint,omitempty"`
	Type    frameType `cbor:"2,keyasint"`
	Payload []byte    `cbor:"3,keyasint,omitempty"`
}

type reply struct {
	payload []byte
	reset   bool
}

// Conn is an authenticated, multiplexed connection to one peer.
type Conn struct {
	raw    net.Conn
	local  keys.PublicKey
	remote keys.PublicKey
	logger *slog.Logger

	writeMu sync.Mutex
	writer  *bufio.Writer

	nextStream atomic.Uint64

	mu      sync.Mutex
	pending map[uint64]chan reply

	incoming  chan *Message
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// ConnConfig tunes a Conn.
type ConnConfig struct {
	Keypair *keys.Keypair

	// Expect, when set, is the name the remote key must hash to.
	Expect *xorname.Name

	// IncomingBuffer is the number of unread inbound messages queued
	// before the read loop stops reading. Defaults to 64.
	IncomingBuffer int

	Logger *slog.Logger
}

// Client authenticates raw as the dialing side.
func Client(ctx context.Context, raw net.Conn, cfg ConnConfig) (*Conn, error) {
	return establish(ctx, raw, cfg, 1)
}

// Server authenticates raw as the accepting side.
func Server(ctx context.Context, raw net.Conn, cfg ConnConfig) (*Conn, error) {
	return establish(ctx, raw, cfg, 2)
}

func establish(ctx context.Context, raw net.Conn, cfg ConnConfig, firstStream uint64) (*Conn, error) {
	if cfg.Keypair == nil {
		return nil, errors.New("transport: Keypair is required")
	}
	if deadline, ok := ctx.Deadline(); ok {
		raw.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { raw.Close() })
	remote, err := handshake(raw, cfg.Keypair)
	if !stop() {
		err = errors.Join(err, ctx.Err())
	}
	if err == nil && cfg.Expect != nil && remote.Name() != *cfg.Expect {
		err = fmt.Errorf("%w: peer is %s, want %s", ErrHandshake, remote.Name(), *cfg.Expect)
	}
	if err != nil {
		raw.Close()
		return nil, err
	}
	raw.SetDeadline(time.Time{})

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	buffer := cfg.IncomingBuffer
	if buffer <= 0 {
		buffer = 64
	}
	c := &Conn{
		raw:      raw,
		local:    cfg.Keypair.Public(),
		remote:   remote,
		logger:   logger.With("peer", remote.Name().String(), "remote_addr", raw.RemoteAddr().String()),
		writer:   bufio.NewWriter(raw),
		pending:  make(map[uint64]chan reply),
		incoming: make(chan *Message, buffer),
		done:     make(chan struct{}),
	}
	c.nextStream.Store(firstStream)
	go c.readLoop()
	return c, nil
}

// Remote is the key the peer proved during the handshake.
func (c *Conn) Remote() keys.PublicKey { return c.remote }

// RemoteName is the peer's XOR name.
func (c *Conn) RemoteName() xorname.Name { return c.remote.Name() }

// RemoteAddr is the underlying connection's remote address.
func (c *Conn) RemoteAddr() string { return c.raw.RemoteAddr().String() }

// Incoming delivers one-way messages and requests from the peer. It is
// closed when the connection ends.
func (c *Conn) Incoming() <-chan *Message { return c.incoming }

// Done is closed when the connection ends.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Err reports why the connection ended, or nil while it is open.
func (c *Conn) Err() error {
	select {
	case <-c.done:
		return c.closeErr
	default:
		return nil
	}
}

// Close ends the connection. Pending requests fail with ErrNoResponse.
func (c *Conn) Close() error {
	c.shutdown(ErrClosed)
	return nil
}

func (c *Conn) shutdown(cause error) {
	c.closeOnce.Do(func() {
		c.closeErr = cause
		close(c.done)
		c.raw.Close()
	})
}

// Send writes a one-way message.
func (c *Conn) Send(ctx context.Context, payload []byte) error {
	return c.write(ctx, frame{Type: frameOneway, Payload: payload})
}

// Request opens a stream, writes payload and waits for the peer's
// response. A failure to write is returned as is; anything after the
// request went out wraps ErrNoResponse.
func (c *Conn) Request(ctx context.Context, payload []byte) ([]byte, error) {
	stream := c.nextStream.Add(2) - 2
	replies := make(chan reply, 1)
	c.mu.Lock()
	c.pending[stream] = replies
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, stream)
		c.mu.Unlock()
	}()

	if err := c.write(ctx, frame{Stream: stream, Type: frameRequest, Payload: payload}); err != nil {
		return nil, err
	}

	select {
	case r := <-replies:
		if r.reset {
			return nil, fmt.Errorf("stream %d reset by peer: %w", stream, ErrNoResponse)
		}
		return r.payload, nil
	case <-c.done:
		return nil, fmt.Errorf("%w: %w", ErrNoResponse, c.closeErr)
	case <-ctx.Done():
		go c.write(context.Background(), frame{Stream: stream, Type: frameReset})
		return nil, fmt.Errorf("%w: %w", ErrNoResponse, ctx.Err())
	}
}

func (c *Conn) write(ctx context.Context, f frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-c.done:
		return fmt.Errorf("%w: %w", ErrClosed, c.closeErr)
	default:
	}

	body, err := codec.Marshal(f)
	if err != nil {
		return fmt.Errorf("encoding frame: %w", err)
	}
	if len(body) > MaxFrameSize {
		return fmt.Errorf("frame of %d bytes exceeds limit %d", len(body), MaxFrameSize)
	}
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(body)))

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		c.raw.SetWriteDeadline(deadline)
		defer c.raw.SetWriteDeadline(time.Time{})
	}
	_, err = c.writer.Write(header[:])
	if err == nil {
		_, err = c.writer.Write(body)
	}
	if err == nil {
		err = c.writer.Flush()
	}
	if err != nil {
		// A partial frame leaves the stream unusable.
		c.shutdown(err)
		return fmt.Errorf("%w: %w", ErrClosed, err)
	}
	return nil
}

func (c *Conn) readLoop() {
	defer close(c.incoming)
	reader := bufio.NewReader(c.raw)
	for {
		f, err := readFrame(reader)
		if err != nil {
			if !netutil.IsExpectedCloseError(err) {
				c.logger.Debug("connection read failed", "error", err)
			}
			c.shutdown(err)
			return
		}

		switch f.Type {
		case frameOneway, frameRequest:
			message := &Message{Payload: f.Payload, conn: c}
			if f.Type == frameRequest {
				message.stream = f.Stream
			}
			select {
			case c.incoming <- message:
			case <-c.done:
				return
			}
		case frameResponse, frameReset:
			c.mu.Lock()
			replies := c.pending[f.Stream]
			delete(c.pending, f.Stream)
			c.mu.Unlock()
			if replies == nil {
				continue
			}
			replies <- reply{payload: f.Payload, reset: f.Type == frameReset}
		default:
			c.logger.Warn("dropping frame of unknown type", "type", f.Type)
		}
	}
}

func readFrame(reader io.Reader) (frame, error) {
	var header [4]byte
	if _, err := io.ReadFull(reader, header[:]); err != nil {
		return frame{}, err
	}
	size := binary.BigEndian.Uint32(header[:])
	if size > MaxFrameSize {
		return frame{}, fmt.Errorf("frame of %d bytes exceeds limit %d", size, MaxFrameSize)
	}
	body := make([]byte, size)
	if _, err := io.ReadFull(reader, body); err != nil {
		return frame{}, err
	}
	var f frame
	if err := codec.Unmarshal(body, &f); err != nil {
		return frame{}, fmt.Errorf("decoding frame: %w", err)
	}
	return f, nil
}

// Message is one inbound one-way message or request.
type Message struct {
	Payload []byte

	conn      *Conn
	stream    uint64
	responded atomic.Bool
}

// Conn is the connection the message arrived on.
func (m *Message) Conn() *Conn { return m.conn }

// ExpectsResponse reports whether the sender is waiting on a stream.
func (m *Message) ExpectsResponse() bool { return m.stream != 0 }

// Respond answers a request. Only the first response is sent.
func (m *Message) Respond(ctx context.Context, payload []byte) error {
	if !m.ExpectsResponse() {
		return errors.New("transport: message has no response stream")
	}
	if m.responded.Swap(true) {
		return errors.New("transport: response already sent")
	}
	return m.conn.write(ctx, frame{Stream: m.stream, Type: frameResponse, Payload: payload})
}

// Reset tells a waiting requester no response is coming.
func (m *Message) Reset(ctx context.Context) error {
	if !m.ExpectsResponse() || m.responded.Swap(true) {
		return nil
	}
	return m.conn.write(ctx, frame{Stream: m.stream, Type: frameReset})
}
