// Package session manages connected WebSocket clients and message routing
// around a live CRDT document.
package session

import (
	"encoding/json"
	"hash/crc32"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Polqt/crdts/clock"
	"github.com/Polqt/crdts/crdt"
	"github.com/Polqt/crdts/merkle"
	"github.com/Polqt/crdts/update"
	"github.com/Polqt/crdts/wrapper"
)

// ─────────────────────────────────────────────────────────────
// Message types
// ─────────────────────────────────────────────────────────────

const (
	MsgInsert   = "insert"
	MsgDelete   = "delete"
	MsgSnapshot = "snapshot"
	MsgUpdate   = "update"
	MsgError    = "error"
)

// Message is the wire format between a client and the hub. Insert and
// Delete requests are converted into a crdt.RGArray operation as soon as
// they're dispatched, and the resulting StateUpdate — not the raw
// keystroke — is what gets broadcast back out as a MsgUpdate, so every peer
// converges on the exact same CRDT mutation.
type Message struct {
	DocID    string    `json:"doc_id"`
	Type     string    `json:"type"`
	Payload  []byte    `json:"payload,omitempty"`
	SenderID string    `json:"sender_id"`
	Ts       time.Time `json:"ts"`
}

// InsertPayload is what a client sends to request a character append.
type InsertPayload struct {
	Char string `json:"char"`
}

// DeletePayload names the RGArray entry to tombstone by the (ts, writer)
// pair that placed it — the only handle RGArray.Delete accepts.
type DeletePayload struct {
	TS     int `json:"ts"`
	Writer int `json:"writer"`
}

// SnapshotPayload is sent to new joiners so they can render the current
// text without replaying the document's whole update history themselves.
type SnapshotPayload struct {
	Text string `json:"text"`
}

// ─────────────────────────────────────────────────────────────
// Session
// ─────────────────────────────────────────────────────────────

// Sender is implemented by the WebSocket transport layer so Session can push
// messages without depending on the transport package.
type Sender interface {
	Send(msg Message) error
	Close() error
	RemoteAddr() string
}

// Session represents one connected client editing a document.
type Session struct {
	ID     string // unique session id
	DocID  string
	NodeID string // CRDT writer identity, e.g. the client's remote address
	Writer int    // NodeID hashed down to the int RGArray writers are keyed by
	sender Sender
	hub    *Hub
}

// NewSession creates a session with the given transport sender.
func NewSession(id, docID, nodeID string, sender Sender, hub *Hub) *Session {
	return &Session{
		ID:     id,
		DocID:  docID,
		NodeID: nodeID,
		Writer: int(crc32.ChecksumIEEE([]byte(nodeID))),
		sender: sender,
		hub:    hub,
	}
}

// Push sends a message to this client.
func (s *Session) Push(msg Message) error {
	return s.sender.Send(msg)
}

// ─────────────────────────────────────────────────────────────
// Document — per-document CRDT state + sessions
// ─────────────────────────────────────────────────────────────

// Document holds the live CRDT state for one collaborative document: an
// RGArray of characters ordered by (timestamp, writer), and the sessions
// currently editing it.
type Document struct {
	mu       sync.RWMutex
	ID       string
	clock    *clock.ScalarClock
	text     *crdt.RGArray
	sessions map[string]*Session
}

// NewDocument creates a new empty document with its own clock.
func NewDocument(id string) *Document {
	c := clock.NewScalarClock()
	return &Document{
		ID:       id,
		clock:    c,
		text:     crdt.NewRGArray(c),
		sessions: make(map[string]*Session),
	}
}

// Text returns the current document text as a read-only snapshot.
func (d *Document) Text() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var b strings.Builder
	for _, v := range d.text.Read() {
		if sw, ok := v.(wrapper.StrWrapper); ok {
			b.WriteString(sw.Value)
		}
	}
	return b.String()
}

// Insert appends ch as writer, applying it locally, and returns the
// resulting StateUpdate for the caller to broadcast.
func (d *Document) Insert(ch string, writer int) (update.StateUpdate, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.text.Append(wrapper.StrWrapper{Value: ch}, writer)
}

// Delete tombstones the entry written at (ts, writer), if one is still
// present, and returns the resulting StateUpdate.
func (d *Document) Delete(ts, writer int) (update.StateUpdate, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, item := range d.text.ReadFull() {
		if item.TS == ts && item.Writer == writer {
			su, err := d.text.Delete(item)
			return su, true, err
		}
	}
	return update.StateUpdate{}, false, nil
}

// ApplyRemote merges a StateUpdate received from a peer.
func (d *Document) ApplyRemote(su update.StateUpdate) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.text.Update(su)
}

// MerkleHistory returns the Merklized view of the document's update history,
// used by the anti-entropy debug tooling to compare two replicas without
// exchanging their full history up front.
func (d *Document) MerkleHistory() merkle.History {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return merkle.Get(d.text)
}

// Broadcast sends msg to every session except excludeID.
func (d *Document) Broadcast(msg Message, excludeID string) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for id, s := range d.sessions {
		if id == excludeID {
			continue
		}
		if err := s.Push(msg); err != nil {
			slog.Warn("broadcast failed", "session", id, "err", err)
		}
	}
}

// ─────────────────────────────────────────────────────────────
// Hub — registry of all documents and sessions
// ─────────────────────────────────────────────────────────────

// Hub is the central message router for all active documents and sessions.
type Hub struct {
	mu   sync.RWMutex
	docs map[string]*Document
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{docs: make(map[string]*Document)}
}

// Run is a no-op placeholder for background maintenance (e.g. idle-doc
// cleanup). Call as a goroutine: go hub.Run()
func (h *Hub) Run() {}

// MerkleHistory returns the Merklized history of the named document.
func (h *Hub) MerkleHistory(docID string) merkle.History {
	return h.GetOrCreate(docID).MerkleHistory()
}

// GetOrCreate returns the document with the given id, creating it if needed.
func (h *Hub) GetOrCreate(docID string) *Document {
	h.mu.Lock()
	defer h.mu.Unlock()
	if d, ok := h.docs[docID]; ok {
		return d
	}
	d := NewDocument(docID)
	h.docs[docID] = d
	return d
}

// Join registers a session with its document and sends the current snapshot.
func (h *Hub) Join(sess *Session) {
	doc := h.GetOrCreate(sess.DocID)
	doc.mu.Lock()
	doc.sessions[sess.ID] = sess
	doc.mu.Unlock()

	snap, _ := json.Marshal(SnapshotPayload{Text: doc.Text()})
	_ = sess.Push(Message{
		DocID:   sess.DocID,
		Type:    MsgSnapshot,
		Payload: snap,
		Ts:      time.Now(),
	})
}

// Leave removes a session from its document.
func (h *Hub) Leave(sess *Session) {
	doc := h.GetOrCreate(sess.DocID)
	doc.mu.Lock()
	delete(doc.sessions, sess.ID)
	doc.mu.Unlock()

	slog.Info("session left", "session", sess.ID, "doc", sess.DocID)
}

// Dispatch handles an incoming message from a session, turning Insert and
// Delete requests into real RGArray operations and broadcasting the
// resulting StateUpdate (rather than the raw client message) to every other
// session on the document.
func (h *Hub) Dispatch(sess *Session, msg Message) {
	doc := h.GetOrCreate(msg.DocID)

	switch msg.Type {
	case MsgInsert:
		var p InsertPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			slog.Warn("bad insert payload", "err", err)
			return
		}
		su, err := doc.Insert(p.Char, sess.Writer)
		if err != nil {
			slog.Warn("insert failed", "err", err)
			return
		}
		broadcastUpdate(doc, su, sess.ID)

	case MsgDelete:
		var p DeletePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			slog.Warn("bad delete payload", "err", err)
			return
		}
		su, found, err := doc.Delete(p.TS, p.Writer)
		if err != nil {
			slog.Warn("delete failed", "err", err)
			return
		}
		if !found {
			return
		}
		broadcastUpdate(doc, su, sess.ID)

	case MsgUpdate:
		su, err := update.Unpack(msg.Payload, wrapper.DefaultRegistry())
		if err != nil {
			slog.Warn("bad state update payload", "err", err)
			return
		}
		if err := doc.ApplyRemote(su); err != nil {
			slog.Warn("apply remote update failed", "err", err)
			return
		}
		doc.Broadcast(msg, sess.ID)

	default:
		slog.Warn("unknown message type", "type", msg.Type)
	}
}

func broadcastUpdate(doc *Document, su update.StateUpdate, excludeID string) {
	doc.Broadcast(Message{
		DocID:   doc.ID,
		Type:    MsgUpdate,
		Payload: su.Pack(),
		Ts:      time.Now(),
	}, excludeID)
}
