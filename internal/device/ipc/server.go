package ipc

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"sync"

	"github.com/spf13/afero"

	"tools.zach/dev/safesave/internal/fileerr"
)

// ///////////////////////////////////////////////
// Server
// ///////////////////////////////////////////////

// Server answers FILE_CONTENTS requests from a filesystem.
type Server struct {
	// fs is the filesystem requests are resolved against.
	fs afero.Fs

	// wg tracks live connections so Serve can wait for them.
	wg sync.WaitGroup

	// mu protects conns.
	mu sync.Mutex
	// conns holds live connections so CloseConns can end them.
	conns map[net.Conn]struct{}
}

// NewServer creates a server reading from fs. Wrap fs with
// afero.NewReadOnlyFs and afero.NewBasePathFs to confine it.
func NewServer(fs afero.Fs) *Server {
	return &Server{fs: fs, conns: make(map[net.Conn]struct{})}
}

// Serve accepts connections on l until l is closed, then waits for open
// connections to finish. A closed listener is not an error.
func (s *Server) Serve(l net.Listener) error {
	defer s.wg.Wait()
	for {
		conn, err := l.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		s.track(conn, true)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.track(conn, false)
			s.ServeConn(conn)
		}()
	}
}

// CloseConns ends every live connection. Close the listener first so
// Serve stops accepting; Serve then returns once the sessions are gone.
func (s *Server) CloseConns() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		conn.Close()
	}
}

func (s *Server) track(conn net.Conn, live bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if live {
		s.conns[conn] = struct{}{}
	} else {
		delete(s.conns, conn)
	}
}

// ServeConn runs one session on conn and closes it.
func (s *Server) ServeConn(conn net.Conn) {
	defer conn.Close()

	opcode, payload, err := DecodeFrame(conn)
	if err != nil {
		slog.Debug("device handshake read failed", "error", err)
		return
	}
	var hs handshake
	if opcode != OpHandshake || json.Unmarshal(payload, &hs) != nil || hs.V != 1 {
		s.sendEvent(conn, event{Evt: evtError, Data: &eventData{Code: codeBadRequest, Message: "invalid handshake"}})
		return
	}
	if err := s.sendEvent(conn, event{Evt: evtReady}); err != nil {
		return
	}
	slog.Debug("device client connected", "client", hs.Client)

	for {
		opcode, payload, err := DecodeFrame(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				slog.Debug("device read failed", "error", err)
			}
			return
		}
		switch opcode {
		case OpClose:
			return
		case OpFrame:
			if err := s.handle(conn, payload); err != nil {
				slog.Debug("device reply failed", "error", err)
				return
			}
		default:
			s.sendEvent(conn, event{Evt: evtError, Data: &eventData{Code: codeBadRequest, Message: fmt.Sprintf("unexpected opcode %d", opcode)}})
			return
		}
	}
}

// handle answers one request frame.
func (s *Server) handle(conn net.Conn, payload []byte) error {
	var req request
	if err := json.Unmarshal(payload, &req); err != nil || req.Cmd != cmdFileContents {
		return s.sendEvent(conn, event{Evt: evtError, Nonce: req.Nonce, Data: &eventData{Code: codeBadRequest, Message: "unknown command"}})
	}

	data, code, err := s.read(req.Args.Path)
	if err != nil {
		slog.Debug("device request failed", "path", req.Args.Path, "error", err)
		return s.sendEvent(conn, event{Evt: evtError, Nonce: req.Nonce, Data: &eventData{Code: code, Message: fileerr.OSMessage(err)}})
	}
	return WriteFrame(conn, OpData, data)
}

// read returns the file's contents, or the error code describing why not.
func (s *Server) read(path string) ([]byte, string, error) {
	f, err := s.fs.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, codeNotFound, err
		}
		return nil, codeOpen, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxPayloadSize+1))
	if err != nil {
		return nil, codeRead, err
	}
	if len(data) > MaxPayloadSize {
		return nil, codeRead, fmt.Errorf("%w: file exceeds %d bytes", ErrPayloadTooLarge, MaxPayloadSize)
	}
	return data, "", nil
}

func (s *Server) sendEvent(conn net.Conn, ev event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	return WriteFrame(conn, OpFrame, payload)
}
