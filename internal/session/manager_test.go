package session

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestManager(storage *fakeStorage, store *fakeStateStore) *Manager {
	return NewManager(context.Background(), storage, store, time.Minute, zerolog.Nop())
}

func TestManagerSpawnAndGetReturnsSameActor(t *testing.T) {
	storage := newFakeStorage()
	store := newFakeStateStore()
	m := newTestManager(storage, store)

	teams := []*Team{{ID: "t-left", Side: SideLeft}, {ID: "t-right", Side: SideRight}}
	actor := m.Spawn("sess-1", "tenant-1", teams, []string{"q1"})
	defer actor.Stop()

	got, err := m.Get(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != actor {
		t.Error("Get should return the already-resident actor rather than rehydrating")
	}
}

func TestManagerGetUnknownSessionNotFound(t *testing.T) {
	storage := newFakeStorage()
	store := newFakeStateStore()
	m := newTestManager(storage, store)

	if _, err := m.Get(context.Background(), "nope"); err == nil {
		t.Error("Get on a session with no resident actor and no blob should fail")
	}
}

func TestManagerRehydratesFromStateStoreAfterEviction(t *testing.T) {
	storage := newFakeStorage()
	store := newFakeStateStore()
	m := newTestManager(storage, store)

	teams := []*Team{{ID: "t-left", Side: SideLeft}, {ID: "t-right", Side: SideRight}}
	actor := m.Spawn("sess-1", "tenant-1", teams, []string{"q1"})
	if err := actor.CallInit(context.Background(), ""); err != nil {
		t.Fatalf("CallInit: %v", err)
	}

	if _, found, _ := store.Get(context.Background(), "sess-1"); !found {
		t.Fatal("CallInit should have persisted a blob to the state store")
	}

	storage.roster = &Roster{
		Teams:    teams,
		Students: []*Student{{ID: "s-1", TeamID: "t-left", Status: StudentConnected}},
	}

	m.Evict("sess-1")

	rehydrated, err := m.Get(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("Get after eviction: %v", err)
	}
	if rehydrated == actor {
		t.Error("rehydrated actor should be a fresh instance, not the evicted one")
	}
	proj, err := rehydrated.CallGetState(context.Background(), RoleTeacher)
	if err != nil {
		t.Fatalf("CallGetState: %v", err)
	}
	if proj.Phase != PhaseReady {
		t.Errorf("rehydrated phase = %s, want ready", proj.Phase)
	}
	if len(proj.Students) != 1 {
		t.Errorf("rehydrated roster should carry the freshly loaded student, got %d", len(proj.Students))
	}
	rehydrated.Stop()
}

func TestManagerSweepIdleEvictsIdleSessions(t *testing.T) {
	storage := newFakeStorage()
	store := newFakeStateStore()
	m := newTestManager(storage, store)
	m.idleTimeout = time.Millisecond

	teams := []*Team{{ID: "t-left", Side: SideLeft}, {ID: "t-right", Side: SideRight}}
	a1 := m.Spawn("sess-1", "tenant-1", teams, nil)
	defer a1.Stop()

	time.Sleep(5 * time.Millisecond)
	m.SweepIdle()

	if _, err := m.Get(context.Background(), "sess-1"); err == nil {
		t.Error("an idle session with no durable blob should fail to rehydrate after eviction")
	}
}
