// Package transport provides the WebSocket upgrade handler and a minimal
// RFC 6455 framing implementation built entirely on the standard library.
package transport

import (
	"bufio"
	"crypto/sha1"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Polqt/crdts/session"
)

// ─────────────────────────────────────────────────────────────
// Minimal WebSocket implementation (RFC 6455, stdlib-only)
// ─────────────────────────────────────────────────────────────

const wsGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

const (
	opContinuation byte = 0x0
	opText         byte = 0x1
	opBinary       byte = 0x2
	opClose        byte = 0x8
	opPing         byte = 0x9
	opPong         byte = 0xA
)

// wsHandshake performs the HTTP→WebSocket upgrade.
// Returns the hijacked net.Conn and its bufio.ReadWriter on success.
func wsHandshake(w http.ResponseWriter, r *http.Request) (net.Conn, *bufio.ReadWriter, error) {
	if !strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return nil, nil, fmt.Errorf("not a websocket upgrade")
	}
	key := r.Header.Get("Sec-Websocket-Key")
	if key == "" {
		return nil, nil, fmt.Errorf("missing Sec-WebSocket-Key")
	}

	// Compute accept key.
	h := sha1.New()
	h.Write([]byte(key + wsGUID))
	accept := base64.StdEncoding.EncodeToString(h.Sum(nil))

	hj, ok := w.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("hijack unsupported")
	}
	conn, rw, err := hj.Hijack()
	if err != nil {
		return nil, nil, err
	}

	// Write upgrade response directly.
	resp := "HTTP/1.1 101 Switching Protocols\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Accept: " + accept + "\r\n\r\n"
	if _, err := rw.WriteString(resp); err != nil {
		conn.Close()
		return nil, nil, err
	}
	if err := rw.Flush(); err != nil {
		conn.Close()
		return nil, nil, err
	}
	return conn, rw, nil
}

// WSConn is a minimal WebSocket connection. Reading reassembles fragmented
// messages and answers control frames transparently; writing always emits a
// single unfragmented, unmasked server frame per RFC 6455 §5.1.
type WSConn struct {
	conn net.Conn
	rw   *bufio.ReadWriter
	mu   sync.Mutex
}

type frameHeader struct {
	fin     bool
	opcode  byte
	masked  bool
	length  uint64
	maskKey [4]byte
}

func (c *WSConn) readFrameHeader() (frameHeader, error) {
	var head [2]byte
	if _, err := io.ReadFull(c.rw.Reader, head[:]); err != nil {
		return frameHeader{}, err
	}
	fh := frameHeader{
		fin:    head[0]&0x80 != 0,
		opcode: head[0] & 0x0F,
		masked: head[1]&0x80 != 0,
	}
	lenBits := head[1] & 0x7F
	switch {
	case lenBits < 126:
		fh.length = uint64(lenBits)
	case lenBits == 126:
		var ext [2]byte
		if _, err := io.ReadFull(c.rw.Reader, ext[:]); err != nil {
			return frameHeader{}, err
		}
		fh.length = uint64(binary.BigEndian.Uint16(ext[:]))
	default:
		var ext [8]byte
		if _, err := io.ReadFull(c.rw.Reader, ext[:]); err != nil {
			return frameHeader{}, err
		}
		fh.length = binary.BigEndian.Uint64(ext[:])
	}
	if fh.masked {
		if _, err := io.ReadFull(c.rw.Reader, fh.maskKey[:]); err != nil {
			return frameHeader{}, err
		}
	}
	return fh, nil
}

func (c *WSConn) readFramePayload(fh frameHeader) ([]byte, error) {
	payload := make([]byte, fh.length)
	if _, err := io.ReadFull(c.rw.Reader, payload); err != nil {
		return nil, err
	}
	if fh.masked {
		for i := range payload {
			payload[i] ^= fh.maskKey[i%4]
		}
	}
	return payload, nil
}

func (c *WSConn) writeFrame(opcode byte, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	head := make([]byte, 0, 10)
	head = append(head, 0x80|opcode) // FIN=1
	n := len(payload)
	switch {
	case n < 126:
		head = append(head, byte(n))
	case n <= 0xFFFF:
		head = append(head, 126)
		head = binary.BigEndian.AppendUint16(head, uint16(n))
	default:
		head = append(head, 127)
		head = binary.BigEndian.AppendUint64(head, uint64(n))
	}
	// Server frames are never masked.
	if _, err := c.rw.Write(head); err != nil {
		return err
	}
	if _, err := c.rw.Write(payload); err != nil {
		return err
	}
	return c.rw.Flush()
}

// ReadMessage reads the next WebSocket data frame's payload, transparently
// answering ping frames with a pong and returning io.EOF on a close frame.
// Fragmented messages (FIN=0 continuations) are reassembled.
func (c *WSConn) ReadMessage() ([]byte, error) {
	var assembled []byte
	for {
		fh, err := c.readFrameHeader()
		if err != nil {
			return nil, err
		}
		payload, err := c.readFramePayload(fh)
		if err != nil {
			return nil, err
		}

		switch fh.opcode {
		case opClose:
			_ = c.writeFrame(opClose, nil)
			return nil, io.EOF
		case opPing:
			if err := c.writeFrame(opPong, payload); err != nil {
				return nil, err
			}
			continue
		case opPong:
			continue
		case opText, opBinary, opContinuation:
			assembled = append(assembled, payload...)
			if fh.fin {
				return assembled, nil
			}
		default:
			return nil, fmt.Errorf("transport: unsupported opcode %#x", fh.opcode)
		}
	}
}

// WriteMessage sends a single unfragmented text frame with the given
// payload.
func (c *WSConn) WriteMessage(payload []byte) error {
	return c.writeFrame(opText, payload)
}

// Close sends a WebSocket close frame and closes the underlying conn.
func (c *WSConn) Close() error {
	_ = c.writeFrame(opClose, nil)
	return c.conn.Close()
}

// RemoteAddr returns the remote address string.
func (c *WSConn) RemoteAddr() string { return c.conn.RemoteAddr().String() }

// ─────────────────────────────────────────────────────────────
// wsSender — adapts WSConn to session.Sender
// ─────────────────────────────────────────────────────────────

type wsSender struct {
	ws *WSConn
}

func (s *wsSender) Send(msg session.Message) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return s.ws.WriteMessage(b)
}

func (s *wsSender) Close() error       { return s.ws.Close() }
func (s *wsSender) RemoteAddr() string { return s.ws.RemoteAddr() }

// ─────────────────────────────────────────────────────────────
// WSHandler
// ─────────────────────────────────────────────────────────────

// WSHandler handles WebSocket upgrade requests and feeds messages to the Hub.
type WSHandler struct {
	hub *session.Hub
}

// NewWSHandler creates a handler backed by the given Hub.
func NewWSHandler(hub *session.Hub) *WSHandler {
	return &WSHandler{hub: hub}
}

// ServeHTTP upgrades the connection and starts the read loop.
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, rw, err := wsHandshake(w, r)
	if err != nil {
		http.Error(w, "WebSocket upgrade failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	ws := &WSConn{conn: conn, rw: rw}
	docID := strings.TrimPrefix(r.URL.Path, "/ws/")
	if docID == "" {
		docID = "default"
	}

	id := fmt.Sprintf("%s-%d", conn.RemoteAddr().String(), time.Now().UnixNano())
	sess := session.NewSession(id, docID, conn.RemoteAddr().String(), &wsSender{ws: ws}, h.hub)
	h.hub.Join(sess)
	defer h.hub.Leave(sess)

	for {
		payload, err := ws.ReadMessage()
		if err != nil {
			if err != io.EOF {
				slog.Warn("ws read error", "session", sess.ID, "err", err)
			}
			return
		}
		var msg session.Message
		if err := json.Unmarshal(payload, &msg); err != nil {
			slog.Warn("bad json", "err", err)
			continue
		}
		msg.DocID = docID
		h.hub.Dispatch(sess, msg)
	}
}
