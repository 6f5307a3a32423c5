// Package ipc is a file device reached over a local socket: a Unix domain
// socket, or a named pipe on Windows.
//
// The [Client] implements the reader's Device interface for "ipc://" paths;
// the [Server] answers its requests from an afero filesystem. Both speak
// length-prefixed frames (see [EncodeFrame]): a JSON handshake, then one
// FILE_CONTENTS request at a time answered by an OpData frame or an ERROR
// event.
package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"tools.zach/dev/safesave/internal/fileerr"
)

// ///////////////////////////////////////////////
// Messages
// ///////////////////////////////////////////////

const (
	cmdFileContents = "FILE_CONTENTS"
	evtReady        = "READY"
	evtError        = "ERROR"

	// Error codes carried by ERROR events.
	codeNotFound   = "not_found"
	codeOpen       = "open"
	codeRead       = "read"
	codeBadRequest = "bad_request"
)

type handshake struct {
	V      int    `json:"v"`
	Client string `json:"client"`
}

type request struct {
	Cmd   string      `json:"cmd"`
	Args  requestArgs `json:"args"`
	Nonce string      `json:"nonce"`
}

type requestArgs struct {
	Path string `json:"path"`
}

type event struct {
	Evt   string     `json:"evt"`
	Nonce string     `json:"nonce,omitempty"`
	Data  *eventData `json:"data,omitempty"`
}

type eventData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ///////////////////////////////////////////////
// Client
// ///////////////////////////////////////////////

// Client fetches files from a device server. It connects lazily and
// reconnects after a transport failure.
type Client struct {
	// endpoint is the socket path or pipe name.
	endpoint string
	// dial opens the transport; replaced in tests.
	dial func(ctx context.Context, endpoint string) (net.Conn, error)

	// mu serializes requests and protects conn and nonce.
	mu sync.Mutex
	// conn is the active connection, or nil when disconnected.
	conn net.Conn
	// nonce tags each request.
	nonce uint64
}

// NewClient creates a client for the server listening at endpoint.
func NewClient(endpoint string) *Client {
	return &Client{endpoint: endpoint, dial: dial}
}

// Connect dials the server and performs the handshake.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connect(ctx)
}

// connect replaces any existing connection. The caller must hold c.mu.
func (c *Client) connect(ctx context.Context) error {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	conn, err := c.dial(ctx, c.endpoint)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.endpoint, err)
	}
	c.conn = conn
	if err := c.handshake(ctx); err != nil {
		c.drop()
		return err
	}
	return nil
}

// Connected reports whether the client has an active connection.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Close sends a close frame and closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	// Best effort; the server also treats EOF as a close.
	_ = WriteFrame(c.conn, OpClose, nil)
	err := c.conn.Close()
	c.conn = nil
	return err
}

// FileContents returns the contents of path, which may carry an "ipc://"
// prefix, from the server.
func (c *Client) FileContents(ctx context.Context, path string) ([]byte, error) {
	remote := path
	if _, rest, ok := strings.Cut(path, "://"); ok {
		remote = rest
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		if err := c.connect(ctx); err != nil {
			return nil, fileerr.ReadOpen(path, err)
		}
	}
	data, ev, err := c.roundTrip(ctx, remote)
	if err != nil {
		c.drop()
		return nil, fileerr.ReadIO(path, err)
	}
	if ev != nil {
		return nil, eventError(path, ev)
	}
	return data, nil
}

// roundTrip sends one request and reads its answer: data, or an error
// event. The caller must hold c.mu.
func (c *Client) roundTrip(ctx context.Context, remote string) ([]byte, *event, error) {
	c.setDeadline(ctx)
	defer c.conn.SetDeadline(time.Time{})

	c.nonce++
	payload, err := json.Marshal(request{
		Cmd:   cmdFileContents,
		Args:  requestArgs{Path: remote},
		Nonce: strconv.FormatUint(c.nonce, 10),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("marshaling request: %w", err)
	}
	if err := WriteFrame(c.conn, OpFrame, payload); err != nil {
		return nil, nil, fmt.Errorf("writing request: %w", err)
	}

	opcode, resp, err := DecodeFrame(c.conn)
	if err != nil {
		return nil, nil, err
	}
	switch opcode {
	case OpData:
		return resp, nil, nil
	case OpFrame:
		var ev event
		if err := json.Unmarshal(resp, &ev); err != nil {
			return nil, nil, fmt.Errorf("parsing response: %w", err)
		}
		if ev.Evt != evtError || ev.Data == nil {
			return nil, nil, fmt.Errorf("unexpected event %q", ev.Evt)
		}
		return nil, &ev, nil
	case OpClose:
		return nil, nil, errors.New("server closed the connection")
	default:
		return nil, nil, fmt.Errorf("unexpected response opcode: %d", opcode)
	}
}

// handshake sends the handshake frame and waits for READY. The caller
// must hold c.mu.
func (c *Client) handshake(ctx context.Context) error {
	c.setDeadline(ctx)
	defer c.conn.SetDeadline(time.Time{})

	payload, err := json.Marshal(handshake{V: 1, Client: "safesave"})
	if err != nil {
		return fmt.Errorf("marshaling handshake: %w", err)
	}
	if err := WriteFrame(c.conn, OpHandshake, payload); err != nil {
		return fmt.Errorf("writing handshake: %w", err)
	}

	opcode, resp, err := DecodeFrame(c.conn)
	if err != nil {
		return fmt.Errorf("reading handshake response: %w", err)
	}
	if opcode != OpFrame {
		return fmt.Errorf("unexpected handshake response opcode: %d", opcode)
	}
	var ev event
	if err := json.Unmarshal(resp, &ev); err != nil {
		return fmt.Errorf("parsing handshake response: %w", err)
	}
	if ev.Evt != evtReady {
		msg := ""
		if ev.Data != nil {
			msg = ev.Data.Message
		}
		return fmt.Errorf("handshake rejected: %s", msg)
	}
	return nil
}

func (c *Client) setDeadline(ctx context.Context) {
	if dl, ok := ctx.Deadline(); ok {
		c.conn.SetDeadline(dl)
	}
}

// drop closes a broken connection. The caller must hold c.mu.
func (c *Client) drop() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// eventError maps a server ERROR event onto the file error taxonomy.
func eventError(path string, ev *event) error {
	switch ev.Data.Code {
	case codeNotFound:
		return fileerr.ReadOpen(path, fs.ErrNotExist)
	case codeOpen, codeBadRequest:
		return fileerr.ReadOpen(path, errors.New(ev.Data.Message))
	default:
		return fileerr.ReadIO(path, errors.New(ev.Data.Message))
	}
}
