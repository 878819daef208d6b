package router

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/classroomgames/tugquiz/internal/session"
)

// fakeStorage is a minimal session.Storage stand-in sufficient to let an
// actor run JOIN_TEAM / PING traffic through the router without a live
// Postgres.
type fakeStorage struct{}

func (fakeStorage) LoadQuestion(ctx context.Context, questionID string) (*session.Question, error) {
	return nil, errors.New("not used in router tests")
}
func (fakeStorage) LoadRuleset(ctx context.Context, rulesetID string) (*session.Ruleset, error) {
	return nil, errors.New("not used in router tests")
}
func (fakeStorage) LoadRoster(ctx context.Context, sessionID string) (*session.Roster, error) {
	return &session.Roster{}, nil
}
func (fakeStorage) InsertQuestionInstance(ctx context.Context, sessionID string, qi *session.QuestionInstance) error {
	return nil
}
func (fakeStorage) EndQuestionInstance(ctx context.Context, instanceID string, endedAt time.Time) error {
	return nil
}
func (fakeStorage) InsertAttempt(ctx context.Context, sessionID string, a *session.Attempt) error {
	return nil
}
func (fakeStorage) InsertStrengthEvent(ctx context.Context, sessionID string, e *session.StrengthEvent) error {
	return nil
}
func (fakeStorage) UpdateSessionOnEnd(ctx context.Context, sessionID string, finalPosition float64, endedAt time.Time) error {
	return nil
}
func (fakeStorage) UpdateStudentConnection(ctx context.Context, studentID string, status session.StudentStatus, lastSeenAt time.Time) error {
	return nil
}
func (fakeStorage) UpdateStudentTeam(ctx context.Context, studentID string, teamID *string) error {
	return nil
}

type fakeStateStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newFakeStateStore() *fakeStateStore {
	return &fakeStateStore{blobs: make(map[string][]byte)}
}
func (f *fakeStateStore) Get(ctx context.Context, sessionID string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.blobs[sessionID]
	return b, ok, nil
}
func (f *fakeStateStore) Put(ctx context.Context, sessionID string, blob []byte, phase session.Phase) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blobs[sessionID] = blob
	return nil
}

type fakeConn struct {
	mu     sync.Mutex
	id     string
	role   session.Role
	userID string
	teamID string
	sent   []any
}

func (c *fakeConn) ID() string     { return c.id }
func (c *fakeConn) Role() session.Role { return c.role }
func (c *fakeConn) UserID() string { return c.userID }
func (c *fakeConn) TeamID() string { return c.teamID }
func (c *fakeConn) SetTeamID(id string) {
	c.teamID = id
}
func (c *fakeConn) Send(frame any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, frame)
	return nil
}
func (c *fakeConn) Close(code int, reason string) error { return nil }

func (c *fakeConn) lastSent() any {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sent) == 0 {
		return nil
	}
	return c.sent[len(c.sent)-1]
}

func newTestActor(t *testing.T) (*session.Actor, func()) {
	t.Helper()
	teams := []*session.Team{
		{ID: "t-left", Side: session.SideLeft},
		{ID: "t-right", Side: session.SideRight},
	}
	state := session.NewRuntimeState("sess-1", "tenant-1", teams)
	actor := session.NewActor(state, fakeStorage{}, newFakeStateStore(), zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	go actor.Run(ctx)
	return actor, cancel
}

func TestDispatchPing(t *testing.T) {
	actor, cancel := newTestActor(t)
	defer cancel()

	conn := &fakeConn{id: "c1", role: session.RoleStudent, userID: "s-1"}
	if err := Dispatch(actor, conn, []byte(`{"type":"PING"}`)); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	waitForSend(t, conn)
}

func TestDispatchJoinTeamRejectsUnauthorizedRole(t *testing.T) {
	actor, cancel := newTestActor(t)
	defer cancel()

	conn := &fakeConn{id: "c1", role: session.RoleTeacher, userID: "t-1"}
	if err := Dispatch(actor, conn, []byte(`{"type":"JOIN_TEAM","teamId":"t-left"}`)); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	waitForSend(t, conn)
}

func TestDispatchRejectsMissingRequiredField(t *testing.T) {
	actor, cancel := newTestActor(t)
	defer cancel()

	conn := &fakeConn{id: "c1", role: session.RoleStudent, userID: "s-1"}
	if err := Dispatch(actor, conn, []byte(`{"type":"JOIN_TEAM"}`)); err == nil {
		t.Error("a JOIN_TEAM with no teamId should fail validation")
	}
}

func TestDispatchRejectsUnknownType(t *testing.T) {
	actor, cancel := newTestActor(t)
	defer cancel()

	conn := &fakeConn{id: "c1", role: session.RoleStudent, userID: "s-1"}
	if err := Dispatch(actor, conn, []byte(`{"type":"NOT_A_REAL_TYPE"}`)); err == nil {
		t.Error("an unknown message type should fail")
	}
}

func TestDispatchTeacherPauseWithoutPayload(t *testing.T) {
	// decodeSimple is reached via TEACHER_PAUSE; a TEACHER_PAUSE with an
	// empty body is dispatched here as the representative no-payload
	// command, and the actor answers the teacher's connection.
	actor, cancel := newTestActor(t)
	defer cancel()

	conn := &fakeConn{id: "c1", role: session.RoleTeacher, userID: "t-1"}
	if err := Dispatch(actor, conn, []byte(`{"type":"TEACHER_PAUSE"}`)); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	waitForSend(t, conn)
}

// waitForSend polls briefly for the actor goroutine to process the
// enqueued command and call Send on conn, since Dispatch only enqueues.
func waitForSend(t *testing.T, conn *fakeConn) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if conn.lastSent() != nil {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("timed out waiting for the actor to respond")
}
