package session

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AnswerResult is the outcome of one admitted answer, used by the actor
// to build the wire.AnswerResult event and the teacher-facing tug update
// (§4.4, "Admit answer").
type AnswerResult struct {
	StudentID      string
	TeamID         string
	AnswerID       string
	Correct        bool
	PointsAwarded  int
	Streak         int
	Delta          float64
	NewPosition    float64
	ResponseTimeMs int64
}

// RevealStats summarizes one ended question for QUESTION_REVEAL (§4.4,
// "End question").
type RevealStats struct {
	Instance        *QuestionInstance
	CorrectAnswerID string
	Explanation     string
	TeamStats       map[string]TeamStat
	Position        float64
}

// TeamStat is one team's participation in a just-ended question.
type TeamStat struct {
	Answered        int
	Correct         int
	PointsAwarded   int
}

// Lifecycle drives the Question Lifecycle Controller (§4.4) against one
// RuntimeState. It is only ever invoked from inside the owning actor's
// command loop, so it performs no locking of its own (§5, single-owner
// discipline).
type Lifecycle struct {
	state   *RuntimeState
	storage Storage
	now     func() time.Time
	newID   func() string
}

// NewLifecycle builds a Lifecycle bound to one session's state.
func NewLifecycle(state *RuntimeState, storage Storage) *Lifecycle {
	return &Lifecycle{
		state:   state,
		storage: storage,
		now:     time.Now,
		newID:   func() string { return uuid.NewString() },
	}
}

// Init loads the ruleset (if one is given) and transitions lobby -> ready
// (§4.4, "Initialize session"; §4.3 CmdInit).
func (l *Lifecycle) Init(ctx context.Context, rulesetID string) error {
	if !CanTransition(l.state.Phase, CmdInit) {
		return ErrInvalidState("session is not in lobby")
	}
	if rulesetID != "" {
		rs, err := l.storage.LoadRuleset(ctx, rulesetID)
		if err != nil {
			return ErrStorage(err, true)
		}
		l.state.RulesetID = rs.ID
		l.state.Rules = rs.toRules()
	}
	next, _ := NextPhase(l.state.Phase, CmdInit)
	l.state.Phase = next
	l.state.bumpSnapshot()
	return nil
}

// StartQuestion loads bank question questionID, opens a new instance at
// the given index, and transitions into active_question (§4.4, "Start
// question(index)"). The caller (actor) is responsible for scheduling the
// per-question deadline timer once this returns successfully.
func (l *Lifecycle) StartQuestion(ctx context.Context, cmd Command, questionID string, index int) (*QuestionInstance, error) {
	next, ok := NextPhase(l.state.Phase, cmd)
	if !ok || next != PhaseActiveQuestion {
		return nil, ErrInvalidState("cannot start a question from phase " + string(l.state.Phase))
	}
	q, err := l.storage.LoadQuestion(ctx, questionID)
	if err != nil {
		return nil, ErrStorage(err, true)
	}

	basePoints := q.BasePoints
	if l.state.Rules.PointsPerCorrect > 0 {
		basePoints = l.state.Rules.PointsPerCorrect
	}
	timeLimitMs := q.TimeLimitMs
	if l.state.Rules.DefaultTimeLimit > 0 {
		timeLimitMs = l.state.Rules.DefaultTimeLimit
	}

	instance := &QuestionInstance{
		ID:              l.newID(),
		QuestionID:      q.ID,
		Index:           index,
		Text:            q.Text,
		Type:            q.Type,
		Difficulty:      q.Difficulty,
		Answers:         q.Answers,
		CorrectAnswerID: q.CorrectID,
		TimeLimitMs:     timeLimitMs,
		BasePoints:      basePoints,
		Explanation:     q.Explanation,
		StartedAt:       l.now(),
		TeamAnswered:    make(map[string]int, len(l.state.Teams)),
		TeamCorrect:     make(map[string]int, len(l.state.Teams)),
	}

	if err := l.storage.InsertQuestionInstance(ctx, l.state.SessionID, instance); err != nil {
		return nil, ErrStorage(err, true)
	}

	l.state.Phase = next
	l.state.CurrentQuestion = instance
	l.state.CurrentQuestionIndex = index
	if l.state.StartedAt == nil {
		started := l.now()
		l.state.StartedAt = &started
	}
	delete(l.state.Answered, instance.ID)
	l.state.bumpSnapshot()
	return instance, nil
}

// AdmitAnswer validates and applies one student's submission against the
// current question instance (§4.4, "Admit answer"; §4.5 scoring
// properties). It enforces the at-most-one-attempt invariant in memory;
// the Storage Adapter's unique constraint is the durable backstop for the
// same invariant (§9 design notes).
func (l *Lifecycle) AdmitAnswer(ctx context.Context, studentID, instanceID, answerID string, responseTimeMs int64) (*AnswerResult, error) {
	if l.state.Phase != PhaseActiveQuestion {
		return nil, ErrInvalidState("no question is active")
	}
	cq := l.state.CurrentQuestion
	if cq == nil || cq.ID != instanceID {
		return nil, ErrInvalidAnswer("instance id does not match the active question")
	}
	student, ok := l.state.Students[studentID]
	if !ok || student.Status == StudentKicked {
		return nil, ErrNotAuthorized()
	}
	if student.TeamID == "" {
		return nil, ErrInvalidState("student has not joined a team")
	}
	if responseTimeMs > cq.TimeLimitMs {
		return nil, ErrQuestionExpired()
	}
	if l.state.HasAnswered(instanceID, studentID) {
		return nil, ErrAlreadyAnswered()
	}
	validAnswer := false
	for _, opt := range cq.Answers {
		if opt.ID == answerID {
			validAnswer = true
			break
		}
	}
	if !validAnswer {
		return nil, ErrInvalidAnswer("unknown answer option")
	}

	team := l.state.Team(student.TeamID)
	if team == nil {
		return nil, ErrInvalidState("student's team no longer exists")
	}

	l.state.answeredSet(instanceID)[studentID] = true
	cq.TeamAnswered[team.ID]++

	correct := answerID == cq.CorrectAnswerID
	if correct {
		cq.TeamCorrect[team.ID]++
	}
	result := &AnswerResult{
		StudentID:      studentID,
		TeamID:         team.ID,
		AnswerID:       answerID,
		Correct:        correct,
		ResponseTimeMs: responseTimeMs,
		NewPosition:    l.state.Position,
	}

	attempt := &Attempt{
		QuestionInstanceID: instanceID,
		StudentID:          studentID,
		AnswerID:           answerID,
		Correct:            correct,
		ResponseTimeMs:     responseTimeMs,
		Timestamp:          l.now(),
	}

	if correct {
		points := ComputePoints(cq.BasePoints, responseTimeMs, cq.TimeLimitMs, l.state.Rules)
		ApplyCorrectStreak(l.state.Streaks, team.ID)
		streak := l.state.Streaks[team.ID].Current
		delta := ComputeDelta(team.Side, points, streak, l.state.Rules)

		team.Score += points
		l.state.Position = Clamp(l.state.Position + delta)

		attempt.PointsAwarded = points
		result.PointsAwarded = points
		result.Streak = streak
		result.Delta = delta
		result.NewPosition = l.state.Position

		event := &StrengthEvent{
			ID:        l.state.nextEventID(),
			TeamID:    team.ID,
			Delta:     delta,
			Reason:    ReasonCorrectAnswer,
			Position:  l.state.Position,
			Trigger:   instanceID,
			Timestamp: l.now(),
		}
		if err := l.storage.InsertStrengthEvent(ctx, l.state.SessionID, event); err != nil {
			return nil, ErrStorage(err, true)
		}
	} else {
		ApplyIncorrectStreak(l.state.Streaks, team.ID)
	}

	if err := l.storage.InsertAttempt(ctx, l.state.SessionID, attempt); err != nil {
		return nil, ErrStorage(err, true)
	}

	l.state.bumpSnapshot()
	return result, nil
}

// EndQuestion closes out the current instance and transitions into
// reveal, returning the per-team participation stats for QUESTION_REVEAL
// (§4.4, "End question"). cmd is either CmdQuestionTimerExpired or
// CmdTeacherNextQuestion (manual early reveal).
func (l *Lifecycle) EndQuestion(ctx context.Context, cmd Command) (*RevealStats, error) {
	if !CanTransition(l.state.Phase, cmd) {
		return nil, ErrInvalidState("no active question to end")
	}
	cq := l.state.CurrentQuestion
	if cq == nil {
		return nil, ErrInvalidState("no active question to end")
	}

	ended := l.now()
	cq.EndedAt = &ended
	if err := l.storage.EndQuestionInstance(ctx, cq.ID, ended); err != nil {
		return nil, ErrStorage(err, true)
	}

	stats := make(map[string]TeamStat, len(l.state.Teams))
	for _, t := range l.state.Teams {
		stats[t.ID] = TeamStat{
			Answered: cq.TeamAnswered[t.ID],
			Correct:  cq.TeamCorrect[t.ID],
		}
	}

	next, _ := NextPhase(l.state.Phase, cmd)
	l.state.Phase = next
	l.state.bumpSnapshot()

	return &RevealStats{
		Instance:        cq,
		CorrectAnswerID: cq.CorrectAnswerID,
		Explanation:     cq.Explanation,
		TeamStats:       stats,
		Position:        l.state.Position,
	}, nil
}

// AdvanceOrEnd implements the reveal-phase fork the generic phase table
// cannot express on its own: teacher_next_question from reveal starts the
// next bank question if one remains, or ends the game (§4.3 table note;
// §4.4 "Advance or end game").
func (l *Lifecycle) AdvanceOrEnd(ctx context.Context, questionID string) (*QuestionInstance, bool, error) {
	if l.state.Phase != PhaseReveal {
		return nil, false, ErrInvalidState("can only advance from reveal")
	}
	nextIndex := l.state.CurrentQuestionIndex + 1
	if nextIndex >= len(l.state.QuestionIDs) {
		if err := l.End(ctx); err != nil {
			return nil, false, err
		}
		return nil, true, nil
	}
	instance, err := l.StartQuestion(ctx, CmdTeacherNextQuestion, questionID, nextIndex)
	if err != nil {
		return nil, false, err
	}
	return instance, false, nil
}

// Pause suspends the active question's timer, recording the remaining
// budget so Resume can reschedule it exactly (§4.4, §5 timer semantics).
func (l *Lifecycle) Pause(remainingMs int64) error {
	if !CanTransition(l.state.Phase, CmdTeacherPause) {
		return ErrInvalidState("no active question to pause")
	}
	if l.state.CurrentQuestion != nil {
		l.state.CurrentQuestion.RemainingMsAtPause = remainingMs
	}
	next, _ := NextPhase(l.state.Phase, CmdTeacherPause)
	l.state.Phase = next
	l.state.bumpSnapshot()
	return nil
}

// Resume returns the question to active_question and reports the
// remaining time budget the actor must reschedule its deadline timer
// with.
func (l *Lifecycle) Resume() (int64, error) {
	if !CanTransition(l.state.Phase, CmdTeacherResume) {
		return 0, ErrInvalidState("session is not paused")
	}
	next, _ := NextPhase(l.state.Phase, CmdTeacherResume)
	l.state.Phase = next
	l.state.bumpSnapshot()
	if l.state.CurrentQuestion == nil {
		return 0, nil
	}
	return l.state.CurrentQuestion.RemainingMsAtPause, nil
}

// End transitions the session into completed and persists the final
// rope position (§4.4, "End session").
func (l *Lifecycle) End(ctx context.Context) error {
	if !CanTransition(l.state.Phase, CmdTeacherEndGame) {
		return ErrInvalidState("session has already ended")
	}
	ended := l.now()
	if err := l.storage.UpdateSessionOnEnd(ctx, l.state.SessionID, l.state.Position, ended); err != nil {
		return ErrStorage(err, true)
	}
	next, _ := NextPhase(l.state.Phase, CmdTeacherEndGame)
	l.state.Phase = next
	l.state.bumpSnapshot()
	return nil
}

// ManualAdjust applies a teacher-issued direct rope delta outside the
// normal scoring path (§4.4, "Manual adjust"). It still records a
// StrengthEvent so the rope history stays complete. The returned delta is
// the effective, post-clamp change in position, not the requested delta:
// a request that would push the rope past 0 or 100 only moves it to the
// boundary (§8 scenario 6, position=95 + delta=+20 -> effective +5).
func (l *Lifecycle) ManualAdjust(ctx context.Context, delta float64, trigger string) (float64, float64, error) {
	if l.state.Phase == PhaseCompleted {
		return 0, 0, ErrSessionEnded()
	}
	oldPosition := l.state.Position
	l.state.Position = Clamp(l.state.Position + delta)
	effective := l.state.Position - oldPosition
	side := ManualAdjustTeam(delta)
	team := l.state.TeamBySide(side)
	teamID := ""
	if team != nil {
		teamID = team.ID
	}
	event := &StrengthEvent{
		ID:        l.state.nextEventID(),
		TeamID:    teamID,
		Delta:     effective,
		Reason:    ReasonManualAdjust,
		Position:  l.state.Position,
		Trigger:   trigger,
		Timestamp: l.now(),
	}
	if err := l.storage.InsertStrengthEvent(ctx, l.state.SessionID, event); err != nil {
		return 0, 0, ErrStorage(err, true)
	}
	l.state.bumpSnapshot()
	return l.state.Position, effective, nil
}

// KickPlayer marks a student kicked and clears their team assignment so
// later rosters and snapshots exclude them (§4.6).
func (l *Lifecycle) KickPlayer(ctx context.Context, studentID string) error {
	student, ok := l.state.Students[studentID]
	if !ok {
		return ErrInvalidAnswer("unknown student")
	}
	student.Status = StudentKicked
	student.TeamID = ""
	if err := l.storage.UpdateStudentTeam(ctx, studentID, nil); err != nil {
		return ErrStorage(err, true)
	}
	l.state.bumpSnapshot()
	return nil
}

// JoinTeam assigns a connected student to a team while the session is
// still in the lobby or ready phase (§4.6).
func (l *Lifecycle) JoinTeam(ctx context.Context, studentID, teamID string) error {
	if l.state.Phase != PhaseLobby && l.state.Phase != PhaseReady {
		return ErrInvalidState("teams are locked once the game has started")
	}
	student, ok := l.state.Students[studentID]
	if !ok || student.Status == StudentKicked {
		return ErrNotAuthorized()
	}
	if l.state.Team(teamID) == nil {
		return ErrInvalidAnswer("unknown team")
	}
	student.TeamID = teamID
	if err := l.storage.UpdateStudentTeam(ctx, studentID, &teamID); err != nil {
		return ErrStorage(err, true)
	}
	l.state.bumpSnapshot()
	return nil
}
