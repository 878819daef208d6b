package session

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeStorage is a minimal in-memory Storage stand-in for lifecycle tests.
// It records what was written so tests can assert on durability side
// effects without a live Postgres.
type fakeStorage struct {
	questions map[string]*Question
	rulesets  map[string]*Ruleset

	instances      []*QuestionInstance
	endedInstances []string
	attempts       []*Attempt
	events         []*StrengthEvent
	endedSessions  []string
	studentTeams   map[string]*string
	roster         *Roster

	failInsertAttempt bool
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		questions:    make(map[string]*Question),
		rulesets:     make(map[string]*Ruleset),
		studentTeams: make(map[string]*string),
	}
}

func (f *fakeStorage) LoadQuestion(ctx context.Context, questionID string) (*Question, error) {
	q, ok := f.questions[questionID]
	if !ok {
		return nil, errors.New("no such question")
	}
	return q, nil
}

func (f *fakeStorage) LoadRuleset(ctx context.Context, rulesetID string) (*Ruleset, error) {
	rs, ok := f.rulesets[rulesetID]
	if !ok {
		return nil, errors.New("no such ruleset")
	}
	return rs, nil
}

func (f *fakeStorage) LoadRoster(ctx context.Context, sessionID string) (*Roster, error) {
	if f.roster != nil {
		return f.roster, nil
	}
	return &Roster{}, nil
}

func (f *fakeStorage) InsertQuestionInstance(ctx context.Context, sessionID string, qi *QuestionInstance) error {
	f.instances = append(f.instances, qi)
	return nil
}

func (f *fakeStorage) EndQuestionInstance(ctx context.Context, instanceID string, endedAt time.Time) error {
	f.endedInstances = append(f.endedInstances, instanceID)
	return nil
}

func (f *fakeStorage) InsertAttempt(ctx context.Context, sessionID string, a *Attempt) error {
	if f.failInsertAttempt {
		return errors.New("insert attempt failed")
	}
	f.attempts = append(f.attempts, a)
	return nil
}

func (f *fakeStorage) InsertStrengthEvent(ctx context.Context, sessionID string, e *StrengthEvent) error {
	f.events = append(f.events, e)
	return nil
}

func (f *fakeStorage) UpdateSessionOnEnd(ctx context.Context, sessionID string, finalPosition float64, endedAt time.Time) error {
	f.endedSessions = append(f.endedSessions, sessionID)
	return nil
}

func (f *fakeStorage) UpdateStudentConnection(ctx context.Context, studentID string, status StudentStatus, lastSeenAt time.Time) error {
	return nil
}

func (f *fakeStorage) UpdateStudentTeam(ctx context.Context, studentID string, teamID *string) error {
	f.studentTeams[studentID] = teamID
	return nil
}

// newTestFixture builds a two-team session in the lobby phase, plus a
// lifecycle bound to it, a fake storage, and one joined student per team.
func newTestFixture() (*Lifecycle, *fakeStorage, *RuntimeState) {
	teams := []*Team{
		{ID: "t-left", Name: "Red", Side: SideLeft},
		{ID: "t-right", Name: "Blue", Side: SideRight},
	}
	state := NewRuntimeState("sess-1", "tenant-1", teams)
	state.Students["s-left"] = &Student{ID: "s-left", Nickname: "Ann", TeamID: "t-left", Status: StudentConnected}
	state.Students["s-right"] = &Student{ID: "s-right", Nickname: "Bo", TeamID: "t-right", Status: StudentConnected}

	storage := newFakeStorage()
	storage.questions["q1"] = &Question{
		ID:          "q1",
		Text:        "2+2?",
		Answers:     []AnswerOption{{ID: "a", Text: "4"}, {ID: "b", Text: "5"}},
		CorrectID:   "a",
		TimeLimitMs: 10000,
		BasePoints:  10,
	}

	l := NewLifecycle(state, storage)
	return l, storage, state
}

func TestLifecycleInit(t *testing.T) {
	l, _, state := newTestFixture()
	if err := l.Init(context.Background(), ""); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if state.Phase != PhaseReady {
		t.Errorf("phase = %s, want ready", state.Phase)
	}

	if err := l.Init(context.Background(), ""); err == nil {
		t.Error("second Init from ready should fail")
	}
}

func TestLifecycleStartQuestion(t *testing.T) {
	l, storage, state := newTestFixture()
	state.Phase = PhaseReady

	instance, err := l.StartQuestion(context.Background(), CmdTeacherNextQuestion, "q1", 0)
	if err != nil {
		t.Fatalf("StartQuestion: %v", err)
	}
	if state.Phase != PhaseActiveQuestion {
		t.Errorf("phase = %s, want active_question", state.Phase)
	}
	if state.CurrentQuestion != instance {
		t.Error("state.CurrentQuestion was not set to the new instance")
	}
	if len(storage.instances) != 1 {
		t.Fatalf("expected 1 persisted instance, got %d", len(storage.instances))
	}
	if state.StartedAt == nil {
		t.Error("StartedAt should be set on the first question")
	}

	if _, err := l.StartQuestion(context.Background(), CmdTeacherNextQuestion, "q1", 0); err == nil {
		t.Error("starting a question while one is active should fail")
	}
}

func TestLifecycleStartQuestionUnknownQuestion(t *testing.T) {
	l, _, state := newTestFixture()
	state.Phase = PhaseReady

	if _, err := l.StartQuestion(context.Background(), CmdTeacherNextQuestion, "missing", 0); err == nil {
		t.Error("expected an error loading an unknown question")
	}
}

func TestLifecycleStartQuestionUsesRulesetOverrides(t *testing.T) {
	l, _, state := newTestFixture()
	state.Phase = PhaseReady
	state.Rules = Rules{PointsPerCorrect: 25, DefaultTimeLimit: 5000}

	instance, err := l.StartQuestion(context.Background(), CmdTeacherNextQuestion, "q1", 0)
	if err != nil {
		t.Fatalf("StartQuestion: %v", err)
	}
	if instance.BasePoints != 25 {
		t.Errorf("base points = %d, want the ruleset's 25, not the bank question's 10", instance.BasePoints)
	}
	if instance.TimeLimitMs != 5000 {
		t.Errorf("time limit = %d, want the ruleset's 5000, not the bank question's 10000", instance.TimeLimitMs)
	}
}

func TestLifecycleStartQuestionFallsBackToBankQuestion(t *testing.T) {
	l, _, state := newTestFixture()
	state.Phase = PhaseReady
	state.Rules = Rules{}

	instance, err := l.StartQuestion(context.Background(), CmdTeacherNextQuestion, "q1", 0)
	if err != nil {
		t.Fatalf("StartQuestion: %v", err)
	}
	if instance.BasePoints != 10 {
		t.Errorf("base points = %d, want the bank question's 10 when the ruleset has no override", instance.BasePoints)
	}
	if instance.TimeLimitMs != 10000 {
		t.Errorf("time limit = %d, want the bank question's 10000 when the ruleset has no override", instance.TimeLimitMs)
	}
}

func TestLifecycleAdmitAnswerCorrect(t *testing.T) {
	l, storage, state := newTestFixture()
	state.Phase = PhaseReady
	if _, err := l.StartQuestion(context.Background(), CmdTeacherNextQuestion, "q1", 0); err != nil {
		t.Fatalf("StartQuestion: %v", err)
	}
	instanceID := state.CurrentQuestion.ID

	result, err := l.AdmitAnswer(context.Background(), "s-right", instanceID, "a", 0)
	if err != nil {
		t.Fatalf("AdmitAnswer: %v", err)
	}
	if !result.Correct {
		t.Error("answer should be correct")
	}
	if result.PointsAwarded != 15 {
		t.Errorf("points = %d, want 15 (instant answer gets full speed bonus)", result.PointsAwarded)
	}
	if result.Delta <= 0 {
		t.Errorf("right-side correct answer should produce a positive delta, got %v", result.Delta)
	}
	if state.Position <= 50 {
		t.Errorf("position should have moved right of center, got %v", state.Position)
	}
	if len(storage.attempts) != 1 || len(storage.events) != 1 {
		t.Errorf("expected 1 attempt and 1 strength event persisted, got %d attempts, %d events", len(storage.attempts), len(storage.events))
	}
}

func TestLifecycleAdmitAnswerIncorrect(t *testing.T) {
	l, storage, state := newTestFixture()
	state.Phase = PhaseReady
	l.StartQuestion(context.Background(), CmdTeacherNextQuestion, "q1", 0)
	instanceID := state.CurrentQuestion.ID

	result, err := l.AdmitAnswer(context.Background(), "s-left", instanceID, "b", 100)
	if err != nil {
		t.Fatalf("AdmitAnswer: %v", err)
	}
	if result.Correct {
		t.Error("answer should be incorrect")
	}
	if len(storage.events) != 0 {
		t.Errorf("an incorrect answer should not record a strength event, got %d", len(storage.events))
	}
	if state.Position != 50 {
		t.Errorf("position should be unchanged on an incorrect answer, got %v", state.Position)
	}
}

func TestLifecycleAdmitAnswerRejections(t *testing.T) {
	l, _, state := newTestFixture()
	state.Phase = PhaseReady
	l.StartQuestion(context.Background(), CmdTeacherNextQuestion, "q1", 0)
	instanceID := state.CurrentQuestion.ID

	if _, err := l.AdmitAnswer(context.Background(), "s-right", instanceID, "a", 20000); err == nil {
		t.Error("a response time past the deadline should be rejected")
	}
	if _, err := l.AdmitAnswer(context.Background(), "s-right", instanceID, "z", 0); err == nil {
		t.Error("an unknown answer option should be rejected")
	}
	if _, err := l.AdmitAnswer(context.Background(), "ghost", instanceID, "a", 0); err == nil {
		t.Error("an unknown student should be rejected")
	}
	if _, err := l.AdmitAnswer(context.Background(), "s-right", "wrong-instance", "a", 0); err == nil {
		t.Error("a stale instance id should be rejected")
	}

	if _, err := l.AdmitAnswer(context.Background(), "s-right", instanceID, "a", 0); err != nil {
		t.Fatalf("first answer should be admitted: %v", err)
	}
	if _, err := l.AdmitAnswer(context.Background(), "s-right", instanceID, "a", 0); err == nil {
		t.Error("a second answer from the same student should be rejected")
	}
}

func TestLifecycleAdmitAnswerUnjoinedStudent(t *testing.T) {
	l, _, state := newTestFixture()
	state.Students["s-none"] = &Student{ID: "s-none", Status: StudentConnected}
	state.Phase = PhaseReady
	l.StartQuestion(context.Background(), CmdTeacherNextQuestion, "q1", 0)
	instanceID := state.CurrentQuestion.ID

	if _, err := l.AdmitAnswer(context.Background(), "s-none", instanceID, "a", 0); err == nil {
		t.Error("a student with no team should be rejected")
	}
}

func TestLifecycleEndQuestion(t *testing.T) {
	l, storage, state := newTestFixture()
	state.Phase = PhaseReady
	l.StartQuestion(context.Background(), CmdTeacherNextQuestion, "q1", 0)
	instanceID := state.CurrentQuestion.ID
	l.AdmitAnswer(context.Background(), "s-right", instanceID, "a", 0)
	l.AdmitAnswer(context.Background(), "s-left", instanceID, "b", 0)

	stats, err := l.EndQuestion(context.Background(), CmdQuestionTimerExpired)
	if err != nil {
		t.Fatalf("EndQuestion: %v", err)
	}
	if state.Phase != PhaseReveal {
		t.Errorf("phase = %s, want reveal", state.Phase)
	}
	if stats.TeamStats["t-right"].Correct != 1 || stats.TeamStats["t-left"].Correct != 0 {
		t.Errorf("unexpected team stats: %+v", stats.TeamStats)
	}
	if len(storage.endedInstances) != 1 {
		t.Errorf("expected EndQuestionInstance to be called once, got %d", len(storage.endedInstances))
	}
}

func TestLifecycleAdvanceOrEndAdvances(t *testing.T) {
	l, _, state := newTestFixture()
	state.QuestionIDs = []string{"q1", "q1"}
	state.Phase = PhaseReady
	l.StartQuestion(context.Background(), CmdTeacherNextQuestion, "q1", 0)
	l.EndQuestion(context.Background(), CmdQuestionTimerExpired)

	instance, ended, err := l.AdvanceOrEnd(context.Background(), "q1")
	if err != nil {
		t.Fatalf("AdvanceOrEnd: %v", err)
	}
	if ended {
		t.Error("should not have ended: a second question remains")
	}
	if instance == nil || instance.Index != 1 {
		t.Errorf("expected the next instance at index 1, got %+v", instance)
	}
	if state.Phase != PhaseActiveQuestion {
		t.Errorf("phase = %s, want active_question", state.Phase)
	}
}

func TestLifecycleAdvanceOrEndEndsGame(t *testing.T) {
	l, storage, state := newTestFixture()
	state.QuestionIDs = []string{"q1"}
	state.Phase = PhaseReady
	l.StartQuestion(context.Background(), CmdTeacherNextQuestion, "q1", 0)
	l.EndQuestion(context.Background(), CmdQuestionTimerExpired)

	_, ended, err := l.AdvanceOrEnd(context.Background(), "q1")
	if err != nil {
		t.Fatalf("AdvanceOrEnd: %v", err)
	}
	if !ended {
		t.Error("should have ended: no questions remain")
	}
	if state.Phase != PhaseCompleted {
		t.Errorf("phase = %s, want completed", state.Phase)
	}
	if len(storage.endedSessions) != 1 {
		t.Errorf("expected UpdateSessionOnEnd to be called once, got %d", len(storage.endedSessions))
	}
}

func TestLifecyclePauseResume(t *testing.T) {
	l, _, state := newTestFixture()
	state.Phase = PhaseReady
	l.StartQuestion(context.Background(), CmdTeacherNextQuestion, "q1", 0)

	if err := l.Pause(4200); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if state.Phase != PhasePaused {
		t.Errorf("phase = %s, want paused", state.Phase)
	}
	if state.CurrentQuestion.RemainingMsAtPause != 4200 {
		t.Errorf("RemainingMsAtPause = %d, want 4200", state.CurrentQuestion.RemainingMsAtPause)
	}

	remaining, err := l.Resume()
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if remaining != 4200 {
		t.Errorf("Resume remaining = %d, want 4200", remaining)
	}
	if state.Phase != PhaseActiveQuestion {
		t.Errorf("phase = %s, want active_question", state.Phase)
	}

	if _, err := l.Resume(); err == nil {
		t.Error("Resume while already active should fail")
	}
}

func TestLifecycleEnd(t *testing.T) {
	l, storage, state := newTestFixture()
	state.Phase = PhaseReady

	if err := l.End(context.Background()); err != nil {
		t.Fatalf("End: %v", err)
	}
	if state.Phase != PhaseCompleted {
		t.Errorf("phase = %s, want completed", state.Phase)
	}
	if len(storage.endedSessions) != 1 {
		t.Error("expected UpdateSessionOnEnd to be called")
	}
	if err := l.End(context.Background()); err == nil {
		t.Error("ending an already-completed session should fail")
	}
}

func TestLifecycleManualAdjust(t *testing.T) {
	l, storage, state := newTestFixture()

	pos, effective, err := l.ManualAdjust(context.Background(), 10, "teacher override")
	if err != nil {
		t.Fatalf("ManualAdjust: %v", err)
	}
	if pos != 60 {
		t.Errorf("position = %v, want 60", pos)
	}
	if effective != 10 {
		t.Errorf("effective delta = %v, want 10 (unclamped)", effective)
	}
	if len(storage.events) != 1 || storage.events[0].Reason != ReasonManualAdjust {
		t.Errorf("expected one manual_adjust strength event, got %+v", storage.events)
	}
	if storage.events[0].TeamID != "t-right" {
		t.Errorf("positive delta should attribute to the right-side team, got %q", storage.events[0].TeamID)
	}
	if storage.events[0].Delta != 10 {
		t.Errorf("persisted strength event delta = %v, want the effective 10", storage.events[0].Delta)
	}

	pos, effective, err = l.ManualAdjust(context.Background(), -1000, "teacher override")
	if err != nil {
		t.Fatalf("ManualAdjust: %v", err)
	}
	if pos != 0 {
		t.Errorf("position should clamp to 0, got %v", pos)
	}
	if effective != -60 {
		t.Errorf("effective delta = %v, want -60 (clamped from -1000 at position 60)", effective)
	}
	if storage.events[1].Delta != -60 {
		t.Errorf("persisted strength event delta = %v, want the effective -60", storage.events[1].Delta)
	}

	state.Phase = PhaseCompleted
	if _, _, err := l.ManualAdjust(context.Background(), 1, "too late"); err == nil {
		t.Error("ManualAdjust after the session ends should fail")
	}
}

func TestLifecycleManualAdjustClampsNearBoundary(t *testing.T) {
	l, storage, state := newTestFixture()
	state.Position = 95

	pos, effective, err := l.ManualAdjust(context.Background(), 20, "teacher override")
	if err != nil {
		t.Fatalf("ManualAdjust: %v", err)
	}
	if pos != 100 {
		t.Errorf("position = %v, want 100", pos)
	}
	if effective != 5 {
		t.Errorf("effective delta = %v, want 5 (the actual change, not the requested +20)", effective)
	}
	if storage.events[0].Delta != 5 {
		t.Errorf("persisted strength event delta = %v, want 5", storage.events[0].Delta)
	}
}

func TestLifecycleKickPlayer(t *testing.T) {
	l, storage, state := newTestFixture()

	if err := l.KickPlayer(context.Background(), "s-left"); err != nil {
		t.Fatalf("KickPlayer: %v", err)
	}
	if state.Students["s-left"].Status != StudentKicked {
		t.Error("student should be marked kicked")
	}
	if state.Students["s-left"].TeamID != "" {
		t.Error("kicked student should lose their team assignment")
	}
	if got, ok := storage.studentTeams["s-left"]; !ok || got != nil {
		t.Errorf("UpdateStudentTeam should have been called with nil, got %v", got)
	}

	if err := l.KickPlayer(context.Background(), "ghost"); err == nil {
		t.Error("kicking an unknown student should fail")
	}
}

func TestLifecycleJoinTeam(t *testing.T) {
	l, storage, state := newTestFixture()
	state.Students["s-new"] = &Student{ID: "s-new", Status: StudentConnected}

	if err := l.JoinTeam(context.Background(), "s-new", "t-left"); err != nil {
		t.Fatalf("JoinTeam: %v", err)
	}
	if state.Students["s-new"].TeamID != "t-left" {
		t.Error("student should now belong to t-left")
	}
	if got := storage.studentTeams["s-new"]; got == nil || *got != "t-left" {
		t.Errorf("UpdateStudentTeam should have persisted t-left, got %v", got)
	}

	if err := l.JoinTeam(context.Background(), "s-new", "no-such-team"); err == nil {
		t.Error("joining an unknown team should fail")
	}

	state.Phase = PhaseActiveQuestion
	if err := l.JoinTeam(context.Background(), "s-new", "t-right"); err == nil {
		t.Error("teams should be locked once the game has started")
	}
}

func TestLifecycleJoinTeamKickedStudent(t *testing.T) {
	l, _, state := newTestFixture()
	state.Students["s-left"].Status = StudentKicked

	if err := l.JoinTeam(context.Background(), "s-left", "t-right"); err == nil {
		t.Error("a kicked student should not be able to rejoin a team")
	}
}
