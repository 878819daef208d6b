package session

import (
	"sync"

	"github.com/rs/zerolog"
)

// Connection is the narrow surface the engine needs from a live client
// connection; the WebSocket transport implements it. Keeping the
// interface here (rather than importing gorilla/websocket) lets the
// Connection Registry and Broadcaster stay transport-agnostic, matching
// the hub/register/unregister pattern used for gorilla/websocket fan-out
// elsewhere in the retrieval pack.
type Connection interface {
	ID() string
	Role() Role
	UserID() string
	TeamID() string
	SetTeamID(string)
	Send(frame any) error
	Close(code int, reason string) error
}

// ConnectionRegistry tracks every live connection bound to one session
// (§4, Connection Registry). All mutation is protected by a mutex because
// connection goroutines register/unregister outside the actor's own
// single-owner command loop (§5, "outbound fan-out acquires no
// cross-session lock", but within a session reads/writes of the
// membership map itself still need synchronization).
type ConnectionRegistry struct {
	mu    sync.RWMutex
	byID  map[string]Connection
	log   zerolog.Logger
}

// NewConnectionRegistry builds an empty registry for one session.
func NewConnectionRegistry(log zerolog.Logger) *ConnectionRegistry {
	return &ConnectionRegistry{
		byID: make(map[string]Connection),
		log:  log,
	}
}

// Register adds a connection to the registry.
func (r *ConnectionRegistry) Register(c Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[c.ID()] = c
}

// Unregister removes a connection from the registry.
func (r *ConnectionRegistry) Unregister(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, connID)
}

// Get returns a connection by id.
func (r *ConnectionRegistry) Get(connID string) (Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[connID]
	return c, ok
}

// All returns a snapshot slice of every live connection.
func (r *ConnectionRegistry) All() []Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Connection, 0, len(r.byID))
	for _, c := range r.byID {
		out = append(out, c)
	}
	return out
}

// ConnectedStudentIDs returns the distinct student user ids with a live
// student connection, used to detect roster changes on HELLO (§4.6).
func (r *ConnectionRegistry) ConnectedStudentIDs() map[string]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]bool)
	for _, c := range r.byID {
		if c.Role() == RoleStudent {
			out[c.UserID()] = true
		}
	}
	return out
}

// ConnectionsForStudent returns every live connection authenticated as
// the given student id (normally zero or one, but reconnect races can
// briefly leave two).
func (r *ConnectionRegistry) ConnectionsForStudent(studentID string) []Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Connection
	for _, c := range r.byID {
		if c.Role() == RoleStudent && c.UserID() == studentID {
			out = append(out, c)
		}
	}
	return out
}

// Broadcaster fans a single server event out to every live connection in
// a registry, filtering the payload by role before send (§4.7). It also
// supports targeted sends to one connection (welcome, state_snapshot,
// answer_result, error).
type Broadcaster struct {
	registry *ConnectionRegistry
	log      zerolog.Logger
}

// NewBroadcaster builds a Broadcaster over the given registry.
func NewBroadcaster(registry *ConnectionRegistry, log zerolog.Logger) *Broadcaster {
	return &Broadcaster{registry: registry, log: log}
}

// Broadcast sends the same frame to every live connection.
func (b *Broadcaster) Broadcast(frame any) {
	for _, c := range b.registry.All() {
		b.send(c, frame)
	}
}

// BroadcastRoleAware sends teacherFrame to teacher connections and
// studentFrame to student connections, e.g. a QUESTION event whose
// teacher projection carries the correct answer id and whose student
// projection does not.
func (b *Broadcaster) BroadcastRoleAware(teacherFrame, studentFrame any) {
	for _, c := range b.registry.All() {
		if c.Role() == RoleTeacher {
			b.send(c, teacherFrame)
		} else {
			b.send(c, studentFrame)
		}
	}
}

// Send targets a single connection.
func (b *Broadcaster) Send(c Connection, frame any) {
	b.send(c, frame)
}

// SendToStudent targets every live connection for one student id.
func (b *Broadcaster) SendToStudent(studentID string, frame any) {
	for _, c := range b.registry.ConnectionsForStudent(studentID) {
		b.send(c, frame)
	}
}

func (b *Broadcaster) send(c Connection, frame any) {
	if err := c.Send(frame); err != nil {
		b.log.Warn().Err(err).Str("connId", c.ID()).Msg("dropping message to slow or closed connection")
	}
}
