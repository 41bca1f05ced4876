package realtime

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

// Role is the access level of a connected session.
type Role string

const (
	RoleController Role = "controller"
	RoleViewer     Role = "viewer"
)

// ParseRole maps a wire role string to a Role; anything unrecognized is a viewer.
func ParseRole(s string) Role {
	if s == string(RoleController) {
		return RoleController
	}
	return RoleViewer
}

// Event names of the session message vocabulary.
const (
	EventIdentify     = "identify"
	EventCommand      = "command"
	EventHeartbeat    = "heartbeat"
	EventRequestSync  = "request_sync"
	EventCurrentState = "current_state"
	EventClientsCount = "clients_count"
	EventError        = "error"
	EventFileAdded    = "file_added"
	EventFileRemoved  = "file_removed"
	EventShutdown     = "server_shutdown"
)

// Message is the WebSocket message envelope.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewMessage builds an envelope, marshaling payload unless it is already raw JSON.
func NewMessage(event string, payload interface{}) Message {
	var data []byte
	switch v := payload.(type) {
	case nil:
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		data, _ = json.Marshal(payload)
	}
	return Message{Event: event, Data: data}
}

// Counts is the per-role session tally broadcast as clients_count.
type Counts struct {
	Controllers int `json:"controllers"`
	Viewers     int `json:"viewers"`
}

// Outbox is the delivery endpoint for one session. TrySend must not block;
// it reports false when the message was dropped.
type Outbox interface {
	TrySend(Message) bool
	Close()
}

// SessionMeta carries diagnostic connection attributes.
type SessionMeta struct {
	RemoteAddr string
	UserAgent  string
}

// Session is one live connection in the registry.
type Session struct {
	ID          string
	Role        Role
	RemoteAddr  string
	UserAgent   string
	ConnectedAt time.Time
	LastSeen    time.Time

	identified bool // first identify fixes the role for the connection lifetime
	out        Outbox
}

// Hub is the session registry and broadcast fan-out. All mutation runs on the
// serial task loop (Run); registry and fan-out methods must only be called
// from tasks submitted via Do/DoSync, so the session map needs no locking.
type Hub struct {
	sessions map[string]*Session
	tasks    chan func()
	logger   *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		sessions: make(map[string]*Session),
		tasks:    make(chan func(), 256),
		logger:   logger,
	}
}

// Run drains the task loop until ctx is canceled. Exactly one Run goroutine
// may exist per hub.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case fn := <-h.tasks:
			fn()
		case <-ctx.Done():
			return
		}
	}
}

// Do schedules fn onto the serial loop.
func (h *Hub) Do(fn func()) {
	h.tasks <- fn
}

// DoSync schedules fn and waits for it to complete. Used by read-only HTTP
// handlers that need a consistent view.
func (h *Hub) DoSync(fn func()) {
	done := make(chan struct{})
	h.tasks <- func() {
		defer close(done)
		fn()
	}
	<-done
}

// Register adds a session with the viewer role pending identification.
// A prior entry under the same id is closed and replaced.
func (h *Hub) Register(id string, meta SessionMeta, out Outbox) *Session {
	if prev, ok := h.sessions[id]; ok {
		prev.out.Close()
	}
	now := time.Now()
	s := &Session{
		ID:          id,
		Role:        RoleViewer,
		RemoteAddr:  meta.RemoteAddr,
		UserAgent:   meta.UserAgent,
		ConnectedAt: now,
		LastSeen:    now,
		out:         out,
	}
	h.sessions[id] = s
	h.logger.Debug("session registered", zap.String("session_id", id), zap.String("remote_addr", meta.RemoteAddr))
	return s
}

// Identify fixes the session role. Only the first identification takes
// effect; later ones are ignored. Reports whether the role was applied.
func (h *Hub) Identify(id string, role Role) bool {
	s, ok := h.sessions[id]
	if !ok {
		return false
	}
	if s.identified {
		h.logger.Debug("re-identify ignored", zap.String("session_id", id), zap.String("role", string(s.Role)))
		return false
	}
	s.Role = role
	s.identified = true
	h.logger.Info("session identified", zap.String("session_id", id), zap.String("role", string(role)))
	return true
}

// Touch updates the session liveness timestamp.
func (h *Hub) Touch(id string, now time.Time) {
	if s, ok := h.sessions[id]; ok {
		s.LastSeen = now
	}
}

// Remove deletes the session and returns its role.
func (h *Hub) Remove(id string) (Role, bool) {
	s, ok := h.sessions[id]
	if !ok {
		return "", false
	}
	delete(h.sessions, id)
	h.logger.Debug("session removed", zap.String("session_id", id), zap.String("role", string(s.Role)))
	return s.Role, true
}

// RemoveIf deletes the session only while out is still its delivery
// endpoint. A connection that was replaced under the same id therefore
// cannot remove its successor on teardown.
func (h *Hub) RemoveIf(id string, out Outbox) (Role, bool) {
	s, ok := h.sessions[id]
	if !ok || s.out != out {
		return "", false
	}
	return h.Remove(id)
}

// RoleOf returns the session role.
func (h *Hub) RoleOf(id string) (Role, bool) {
	s, ok := h.sessions[id]
	if !ok {
		return "", false
	}
	return s.Role, true
}

// Counts tallies sessions by role.
func (h *Hub) Counts() Counts {
	var c Counts
	for _, s := range h.sessions {
		if s.Role == RoleController {
			c.Controllers++
		} else {
			c.Viewers++
		}
	}
	return c
}

// EvictStale removes and closes every session whose LastSeen is older than
// staleAfter. Controller sessions are exempt unless reapControllers is set.
// Returns the ids of evicted sessions.
func (h *Hub) EvictStale(now time.Time, staleAfter time.Duration, reapControllers bool) []string {
	var evicted []string
	for id, s := range h.sessions {
		if s.Role == RoleController && !reapControllers {
			continue
		}
		if now.Sub(s.LastSeen) <= staleAfter {
			continue
		}
		delete(h.sessions, id)
		s.out.Close()
		evicted = append(evicted, id)
		h.logger.Info("session evicted",
			zap.String("session_id", id),
			zap.String("role", string(s.Role)),
			zap.Time("last_seen", s.LastSeen),
		)
	}
	return evicted
}

// ToAll delivers an event to every session, best-effort.
func (h *Hub) ToAll(event string, payload interface{}) {
	msg := NewMessage(event, payload)
	for id, s := range h.sessions {
		h.deliver(id, s, msg)
	}
}

// ToAllExcept delivers an event to every session but the sender.
func (h *Hub) ToAllExcept(senderID, event string, payload interface{}) {
	msg := NewMessage(event, payload)
	for id, s := range h.sessions {
		if id == senderID {
			continue
		}
		h.deliver(id, s, msg)
	}
}

// ToRole delivers an event to sessions holding the given role only.
func (h *Hub) ToRole(role Role, event string, payload interface{}) {
	msg := NewMessage(event, payload)
	for id, s := range h.sessions {
		if s.Role != role {
			continue
		}
		h.deliver(id, s, msg)
	}
}

// ToSession delivers an event to a single session, if still connected.
func (h *Hub) ToSession(id, event string, payload interface{}) {
	s, ok := h.sessions[id]
	if !ok {
		return
	}
	h.deliver(id, s, NewMessage(event, payload))
}

// BroadcastCounts pushes the current role tally to everyone.
func (h *Hub) BroadcastCounts() {
	h.ToAll(EventClientsCount, h.Counts())
}

func (h *Hub) deliver(id string, s *Session, msg Message) {
	if !s.out.TrySend(msg) {
		// buffer full, the session lags instead of stalling the loop
		h.logger.Debug("message dropped", zap.String("session_id", id), zap.String("event", msg.Event))
	}
}
