package session

import "testing"

func TestBlobRoundTrip(t *testing.T) {
	teams := []*Team{{ID: "t-left", Name: "Red", Side: SideLeft}, {ID: "t-right", Name: "Blue", Side: SideRight}}
	state := NewRuntimeState("sess-1", "tenant-1", teams)
	state.Students["s-1"] = &Student{ID: "s-1", TeamID: "t-left"}
	state.Position = 65
	state.bumpSnapshot()

	blob, err := state.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	decoded, err := UnmarshalBlob(blob)
	if err != nil {
		t.Fatalf("UnmarshalBlob: %v", err)
	}
	if decoded.SessionID != "sess-1" || decoded.Position != 65 {
		t.Errorf("decoded blob = %+v", decoded)
	}

	restored := RestoreFromBlob(decoded, &Roster{Students: []*Student{{ID: "s-1", TeamID: "t-left"}}})
	if restored.Position != 65 {
		t.Errorf("restored.Position = %v, want 65", restored.Position)
	}
	if _, ok := restored.Students["s-1"]; !ok {
		t.Error("restored state should load students from the passed-in roster, not the blob")
	}
	if restored.Answered == nil || len(restored.Answered) != 0 {
		t.Error("restored Answered set should always start empty")
	}
}

func TestSnapshotHidesCorrectAnswerFromStudentsUntilReveal(t *testing.T) {
	teams := []*Team{{ID: "t-left", Side: SideLeft}, {ID: "t-right", Side: SideRight}}
	state := NewRuntimeState("sess-1", "tenant-1", teams)
	state.CurrentQuestion = &QuestionInstance{ID: "qi-1", CorrectAnswerID: "a"}

	teacherView := state.Snapshot(RoleTeacher)
	if teacherView.CurrentQuestion.CorrectAnswerID != "a" {
		t.Error("teacher snapshot should always include the correct answer id")
	}

	studentView := state.Snapshot(RoleStudent)
	if studentView.CurrentQuestion.CorrectAnswerID != "" {
		t.Error("student snapshot should hide the correct answer id before reveal")
	}

	state.Phase = PhaseReveal
	studentView = state.Snapshot(RoleStudent)
	if studentView.CurrentQuestion.CorrectAnswerID != "a" {
		t.Error("student snapshot should reveal the correct answer id once in reveal phase")
	}
}

func TestSnapshotExcludesKickedStudents(t *testing.T) {
	teams := []*Team{{ID: "t-left", Side: SideLeft}, {ID: "t-right", Side: SideRight}}
	state := NewRuntimeState("sess-1", "tenant-1", teams)
	state.Students["s-1"] = &Student{ID: "s-1", Status: StudentConnected}
	state.Students["s-2"] = &Student{ID: "s-2", Status: StudentKicked}

	proj := state.Snapshot(RoleTeacher)
	if len(proj.Students) != 1 || proj.Students[0].ID != "s-1" {
		t.Errorf("expected only the non-kicked student in the projection, got %+v", proj.Students)
	}
}

func TestToWireStateConvertsProjection(t *testing.T) {
	teams := []*Team{{ID: "t-left", Name: "Red", Side: SideLeft, Score: 10}}
	state := NewRuntimeState("sess-1", "tenant-1", teams)
	state.Position = 42
	proj := state.Snapshot(RoleTeacher)

	view := ToWireState(proj)
	if view.SessionID != "sess-1" || view.Position != 42 {
		t.Errorf("ToWireState = %+v", view)
	}
	if len(view.Teams) != 1 || view.Teams[0].Score != 10 {
		t.Errorf("ToWireState teams = %+v", view.Teams)
	}
}
