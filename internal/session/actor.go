package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/classroomgames/tugquiz/internal/wire"
)

// Actor is the single goroutine that owns one session's RuntimeState.
// Every mutation flows through its inbox so the state is never touched
// from two goroutines at once (§5, single-owner actor model). Connection
// goroutines and the per-session deadline timer never call into the
// state directly; they enqueue a closure and the actor loop runs it.
type Actor struct {
	ID string

	state       *RuntimeState
	lifecycle   *Lifecycle
	registry    *ConnectionRegistry
	broadcaster *Broadcaster
	storage     Storage
	stateStore  StateStore
	log         zerolog.Logger

	inbox chan func(context.Context)

	deadlineMu    sync.Mutex
	deadlineTimer *time.Timer
	deadlineSeq   uint64

	// lastActivityNano and completed are read by the Session Manager's
	// idle sweep from outside the actor goroutine (§4.9), so they are
	// plain atomics rather than fields mutated under the single-owner
	// discipline that governs state.
	lastActivityNano atomic.Int64
	completed        atomic.Bool

	stopOnce sync.Once
	stopped  chan struct{}
}

// NewActor builds an Actor around an already-loaded RuntimeState.
func NewActor(state *RuntimeState, storage Storage, stateStore StateStore, log zerolog.Logger) *Actor {
	registry := NewConnectionRegistry(log)
	a := &Actor{
		ID:          state.SessionID,
		state:       state,
		lifecycle:   NewLifecycle(state, storage),
		registry:    registry,
		broadcaster: NewBroadcaster(registry, log),
		storage:     storage,
		stateStore:  stateStore,
		log:         log.With().Str("sessionId", state.SessionID).Logger(),
		inbox:       make(chan func(context.Context), 256),
		stopped:     make(chan struct{}),
	}
	a.lastActivityNano.Store(time.Now().UnixNano())
	a.completed.Store(state.Phase == PhaseCompleted)
	return a
}

// Run drains the inbox until ctx is cancelled or Stop is called. It is
// meant to be launched as `go actor.Run(ctx)` once per session by the
// Session Manager.
func (a *Actor) Run(ctx context.Context) {
	defer close(a.stopped)
	for {
		select {
		case fn, ok := <-a.inbox:
			if !ok {
				a.cancelDeadline()
				return
			}
			fn(ctx)
		case <-ctx.Done():
			a.cancelDeadline()
			return
		}
	}
}

// Stop accepts no further work, lets Run finish what is already queued,
// and waits for Run to return.
func (a *Actor) Stop() {
	a.stopOnce.Do(func() {
		close(a.inbox)
	})
	<-a.stopped
}

// Enqueue submits a closure to run serialized on the actor's own
// goroutine. Safe to call from any goroutine.
func (a *Actor) Enqueue(fn func(context.Context)) {
	defer func() { recover() }() // inbox may be closed during shutdown; drop silently
	a.inbox <- fn
}

// LastActivity reports the last time a command was processed, used by
// the Session Manager's idle-hibernation sweep (§4.9). Safe to call from
// outside the actor goroutine.
func (a *Actor) LastActivity() time.Time {
	return time.Unix(0, a.lastActivityNano.Load())
}

// IsCompleted reports whether the session has reached the completed
// phase. Safe to call from outside the actor goroutine; kept in sync
// with state.Phase by the handlers that drive the game-end transition.
func (a *Actor) IsCompleted() bool {
	return a.completed.Load()
}

func (a *Actor) touch() {
	a.lastActivityNano.Store(time.Now().UnixNano())
}

// persist serializes the current RuntimeState and writes it to the State
// Store. A failure here is classified fatal (ErrStateStore) and logged;
// the in-memory mutation that already happened is not rolled back, since
// the broadcast reflecting it may already be in flight, and the actor
// keeps accepting later commands.
func (a *Actor) persist(ctx context.Context) {
	blob, err := a.state.Marshal()
	if err != nil {
		a.log.Error().Err(err).Msg("failed to marshal session state")
		return
	}
	if err := a.stateStore.Put(ctx, a.state.SessionID, blob, a.state.Phase); err != nil {
		a.log.Error().Err(ErrStateStore(err)).Msg("state store write failed")
	}
}

func (a *Actor) sendError(conn Connection, clientMsgID string, err *Error) {
	a.log.Debug().Str("connId", conn.ID()).Err(err).Msg("rejecting client command")
	a.broadcaster.Send(conn, wire.Error{
		Type:        wire.TypeError,
		Code:        err.Code,
		Message:     err.Msg,
		ClientMsgID: clientMsgID,
	})
}

func (a *Actor) broadcastPhaseChange(previous Phase) {
	a.broadcaster.Broadcast(wire.PhaseChange{
		Type:          wire.TypePhaseChange,
		Phase:         string(a.state.Phase),
		PreviousPhase: string(previous),
		Timestamp:     timeNow(),
	})
}

// sendStateSnapshot sends a role-filtered STATE_SNAPSHOT to a single
// connection (§4.6: every HELLO gets its own welcome plus state_snapshot,
// not just a broadcast to the room).
func (a *Actor) sendStateSnapshot(conn Connection) {
	view := toWireState(a.state.Snapshot(conn.Role()))
	a.broadcaster.Send(conn, wire.StateSnapshot{Type: wire.TypeStateSnapshot, State: view, SnapshotVersion: a.state.SnapshotVersion})
}

// sendCurrentQuestion resends the active QUESTION to a single connection,
// role-filtered the same way broadcastQuestion filters it for the room.
// Used on reconnect so a client that missed the original broadcast still
// gets the question in flight (§8 scenario 7).
func (a *Actor) sendCurrentQuestion(conn Connection) {
	cq := a.state.CurrentQuestion
	if cq == nil || (a.state.Phase != PhaseActiveQuestion && a.state.Phase != PhasePaused) {
		return
	}
	proj := a.state.Snapshot(conn.Role()).CurrentQuestion
	if proj == nil {
		return
	}
	view := toWireQuestion(proj)
	a.broadcaster.Send(conn, wire.Question{
		Type:           wire.TypeQuestion,
		Question:       *view,
		QuestionIndex:  cq.Index,
		TotalQuestions: len(a.state.QuestionIDs),
		StartsAt:       cq.StartedAt,
		TimeLimitMs:    cq.TimeLimitMs,
		Timestamp:      timeNow(),
	})
}

// --- connection lifecycle -------------------------------------------------

// HandleConnect registers a newly authenticated connection and sends it
// a WELCOME with the full role-filtered state (§4.6, §6).
func (a *Actor) HandleConnect(ctx context.Context, conn Connection, hello *wire.Hello) {
	a.touch()
	rosterChanged := false
	if conn.Role() == RoleStudent {
		student, ok := a.state.Students[conn.UserID()]
		if !ok || student.Status == StudentKicked {
			a.sendError(conn, hello.ClientMsgID, ErrNotAuthorized())
			_ = conn.Close(wire.ClosePolicyViolation, "not a roster member")
			return
		}
		_, alreadyConnected := a.registry.ConnectedStudentIDs()[conn.UserID()]
		rosterChanged = !alreadyConnected
		conn.SetTeamID(student.TeamID)
		student.Status = StudentConnected
		if err := a.storage.UpdateStudentConnection(ctx, student.ID, StudentConnected, timeNow()); err != nil {
			a.log.Warn().Err(err).Msg("failed to persist student connection status")
		}
	}
	a.registry.Register(conn)

	proj := a.state.Snapshot(conn.Role())
	a.broadcaster.Send(conn, wire.Welcome{
		Type:       wire.TypeWelcome,
		SessionID:  a.state.SessionID,
		Phase:      string(a.state.Phase),
		Position:   a.state.Position,
		Teams:      toWireTeams(proj.Teams),
		Students:   toWireStudents(proj.Students),
		Role:       string(conn.Role()),
		UserID:     conn.UserID(),
		TeamID:     conn.TeamID(),
		ServerTime: timeNow(),
	})
	a.sendStateSnapshot(conn)
	a.sendCurrentQuestion(conn)

	if rosterChanged {
		a.broadcaster.Broadcast(wire.RosterUpdate{
			Type:      wire.TypeRosterUpdate,
			Teams:     toWireTeams(teamViews(a.state.Teams)),
			Students:  toWireStudents(studentViews(a.state.Students)),
			Timestamp: timeNow(),
		})
	}
	a.persist(ctx)
}

// HandleDisconnect marks a student disconnected (teachers have no
// connection-state side effects) and removes the connection from the
// registry (§4.6).
func (a *Actor) HandleDisconnect(ctx context.Context, conn Connection) {
	a.touch()
	a.registry.Unregister(conn.ID())
	if conn.Role() != RoleStudent {
		return
	}
	student, ok := a.state.Students[conn.UserID()]
	if !ok || student.Status == StudentKicked {
		return
	}
	student.Status = StudentDisconnected
	if err := a.storage.UpdateStudentConnection(ctx, student.ID, StudentDisconnected, timeNow()); err != nil {
		a.log.Warn().Err(err).Msg("failed to persist student disconnection")
	}
	a.state.bumpSnapshot()
	a.persist(ctx)
}

// --- student commands ------------------------------------------------------

// HandleJoinTeam processes a JOIN_TEAM message.
func (a *Actor) HandleJoinTeam(ctx context.Context, conn Connection, msg *wire.JoinTeam) {
	a.touch()
	if conn.Role() != RoleStudent {
		a.sendError(conn, msg.ClientMsgID, ErrNotAuthorized())
		return
	}
	if err := a.lifecycle.JoinTeam(ctx, conn.UserID(), msg.TeamID); err != nil {
		a.sendError(conn, msg.ClientMsgID, AsEngineError(err))
		return
	}
	conn.SetTeamID(msg.TeamID)
	a.broadcaster.Send(conn, wire.Ack{Type: wire.TypeAck, ClientMsgID: msg.ClientMsgID})
	a.broadcaster.Broadcast(wire.RosterUpdate{
		Type:      wire.TypeRosterUpdate,
		Teams:     toWireTeams(teamViews(a.state.Teams)),
		Students:  toWireStudents(studentViews(a.state.Students)),
		Timestamp: timeNow(),
	})
	a.persist(ctx)
}

// HandleSubmitAnswer processes a SUBMIT_ANSWER message, computing
// response time against the question's StartedAt timestamp (§4.4,
// §4.5 property 5).
func (a *Actor) HandleSubmitAnswer(ctx context.Context, conn Connection, msg *wire.SubmitAnswer) {
	a.touch()
	if conn.Role() != RoleStudent {
		a.sendError(conn, msg.ClientMsgID, ErrNotAuthorized())
		return
	}
	var responseTimeMs int64
	if a.state.CurrentQuestion != nil {
		responseTimeMs = timeNow().Sub(a.state.CurrentQuestion.StartedAt).Milliseconds()
	}
	result, err := a.lifecycle.AdmitAnswer(ctx, conn.UserID(), msg.InstanceID, msg.ChoiceID, responseTimeMs)
	if err != nil {
		a.sendError(conn, msg.ClientMsgID, AsEngineError(err))
		return
	}

	correctID := ""
	if result.Correct {
		correctID = result.AnswerID
	}
	a.broadcaster.Send(conn, wire.AnswerResult{
		Type:            wire.TypeAnswerResult,
		Correct:         result.Correct,
		CorrectAnswerID: correctID,
		Delta:           result.Delta,
		NewPosition:     result.NewPosition,
		PointsAwarded:   result.PointsAwarded,
		ResponseTimeMs:  result.ResponseTimeMs,
		Timestamp:       timeNow(),
	})
	if result.Correct {
		a.broadcaster.Broadcast(wire.TugUpdate{
			Type:        wire.TypeTugUpdate,
			Position:    result.NewPosition,
			Delta:       result.Delta,
			Reason:      string(ReasonCorrectAnswer),
			TeamID:      result.TeamID,
			LastEventID: a.state.LastEventID,
			Timestamp:   timeNow(),
		})
	}
	a.persist(ctx)
}

// HandlePing answers a liveness check without touching state.
func (a *Actor) HandlePing(ctx context.Context, conn Connection, msg *wire.Ping) {
	a.touch()
	a.broadcaster.Send(conn, wire.Pong{Type: wire.TypePong})
}

// --- teacher commands --------------------------------------------------

// HandleNextQuestion processes TEACHER_NEXT_QUESTION from any of ready,
// active_question (early reveal), or reveal (advance/end) (§4.3, §4.4).
func (a *Actor) HandleNextQuestion(ctx context.Context, conn Connection, msg *wire.TeacherNextQuestion) {
	a.touch()
	if conn.Role() != RoleTeacher {
		a.sendError(conn, msg.ClientMsgID, ErrNotAuthorized())
		return
	}
	previous := a.state.Phase

	switch a.state.Phase {
	case PhaseReady:
		a.startQuestionAndBroadcast(ctx, conn, msg, CmdTeacherNextQuestion, 0)
	case PhaseActiveQuestion:
		a.endQuestionAndBroadcast(ctx, conn, msg, CmdTeacherNextQuestion, previous)
	case PhaseReveal:
		questionID := ""
		nextIndex := a.state.CurrentQuestionIndex + 1
		if nextIndex < len(a.state.QuestionIDs) {
			questionID = a.state.QuestionIDs[nextIndex]
		}
		instance, ended, err := a.lifecycle.AdvanceOrEnd(ctx, questionID)
		if err != nil {
			a.sendError(conn, msg.ClientMsgID, AsEngineError(err))
			return
		}
		a.broadcastPhaseChange(previous)
		if ended {
			a.completed.Store(true)
			a.cancelDeadline()
			a.broadcastGameEnd()
		} else {
			a.scheduleDeadline(instance.TimeLimitMs, instance.ID)
			a.broadcastQuestion(instance)
		}
	default:
		a.sendError(conn, msg.ClientMsgID, ErrInvalidState("cannot advance from phase "+string(a.state.Phase)))
		return
	}
	a.persist(ctx)
}

func (a *Actor) startQuestionAndBroadcast(ctx context.Context, conn Connection, msg *wire.TeacherNextQuestion, cmd Command, index int) {
	questionID := msg.QuestionID
	if questionID == "" && index < len(a.state.QuestionIDs) {
		questionID = a.state.QuestionIDs[index]
	}
	if questionID == "" {
		a.sendError(conn, msg.ClientMsgID, ErrInvalidAnswer("no question available at this index"))
		return
	}
	previous := a.state.Phase
	instance, err := a.lifecycle.StartQuestion(ctx, cmd, questionID, index)
	if err != nil {
		a.sendError(conn, msg.ClientMsgID, AsEngineError(err))
		return
	}
	a.broadcastPhaseChange(previous)
	a.scheduleDeadline(instance.TimeLimitMs, instance.ID)
	a.broadcastQuestion(instance)
}

func (a *Actor) endQuestionAndBroadcast(ctx context.Context, conn Connection, msg *wire.TeacherNextQuestion, cmd Command, previous Phase) {
	a.cancelDeadline()
	stats, err := a.lifecycle.EndQuestion(ctx, cmd)
	if err != nil {
		a.sendError(conn, msg.ClientMsgID, AsEngineError(err))
		return
	}
	a.broadcastPhaseChange(previous)
	a.broadcaster.Broadcast(wire.QuestionReveal{
		Type:               wire.TypeQuestionReveal,
		QuestionInstanceID: stats.Instance.ID,
		CorrectAnswerID:    stats.CorrectAnswerID,
		Explanation:        stats.Explanation,
		Stats:              toWireRevealStats(stats),
		Timestamp:          timeNow(),
	})
}

func (a *Actor) broadcastQuestion(instance *QuestionInstance) {
	teacherView := toWireQuestion(&QuestionProjection{
		ID: instance.ID, Text: instance.Text, Type: instance.Type, Difficulty: instance.Difficulty,
		Answers: instance.Answers, TimeLimitMs: instance.TimeLimitMs, Points: instance.BasePoints,
		CorrectAnswerID: instance.CorrectAnswerID,
	})
	studentView := toWireQuestion(&QuestionProjection{
		ID: instance.ID, Text: instance.Text, Type: instance.Type, Difficulty: instance.Difficulty,
		Answers: instance.Answers, TimeLimitMs: instance.TimeLimitMs, Points: instance.BasePoints,
	})
	a.broadcaster.BroadcastRoleAware(
		wire.Question{Type: wire.TypeQuestion, Question: *teacherView, QuestionIndex: instance.Index, TotalQuestions: len(a.state.QuestionIDs), StartsAt: instance.StartedAt, TimeLimitMs: instance.TimeLimitMs, Timestamp: timeNow()},
		wire.Question{Type: wire.TypeQuestion, Question: *studentView, QuestionIndex: instance.Index, TotalQuestions: len(a.state.QuestionIDs), StartsAt: instance.StartedAt, TimeLimitMs: instance.TimeLimitMs, Timestamp: timeNow()},
	)
}

func (a *Actor) broadcastGameEnd() {
	var winner *wire.TeamView
	if left, right := a.state.TeamBySide(SideLeft), a.state.TeamBySide(SideRight); left != nil && right != nil {
		switch {
		case a.state.Position < 50:
			w := toWireTeams(teamViews([]*Team{left}))[0]
			winner = &w
		case a.state.Position > 50:
			w := toWireTeams(teamViews([]*Team{right}))[0]
			winner = &w
		}
	}
	var duration time.Duration
	if a.state.StartedAt != nil {
		duration = timeNow().Sub(*a.state.StartedAt)
	}
	a.broadcaster.Broadcast(wire.GameEnd{
		Type:          wire.TypeGameEnd,
		Winner:        winner,
		FinalPosition: a.state.Position,
		Summary:       wire.GameSummary{Duration: duration, TotalQuestions: len(a.state.QuestionIDs)},
		Timestamp:     timeNow(),
	})
}

// HandlePause processes TEACHER_PAUSE.
func (a *Actor) HandlePause(ctx context.Context, conn Connection, msg *wire.TeacherSimple) {
	a.touch()
	if conn.Role() != RoleTeacher {
		a.sendError(conn, msg.ClientMsgID, ErrNotAuthorized())
		return
	}
	var remaining int64
	if a.state.CurrentQuestion != nil {
		elapsed := timeNow().Sub(a.state.CurrentQuestion.StartedAt).Milliseconds()
		remaining = a.state.CurrentQuestion.TimeLimitMs - elapsed
		if remaining < 0 {
			remaining = 0
		}
	}
	previous := a.state.Phase
	if err := a.lifecycle.Pause(remaining); err != nil {
		a.sendError(conn, msg.ClientMsgID, AsEngineError(err))
		return
	}
	a.cancelDeadline()
	a.broadcastPhaseChange(previous)
	a.persist(ctx)
}

// HandleResume processes TEACHER_RESUME, rescheduling the deadline timer
// with the exact remaining budget recorded at pause time (§5).
func (a *Actor) HandleResume(ctx context.Context, conn Connection, msg *wire.TeacherSimple) {
	a.touch()
	if conn.Role() != RoleTeacher {
		a.sendError(conn, msg.ClientMsgID, ErrNotAuthorized())
		return
	}
	previous := a.state.Phase
	remaining, err := a.lifecycle.Resume()
	if err != nil {
		a.sendError(conn, msg.ClientMsgID, AsEngineError(err))
		return
	}
	a.broadcastPhaseChange(previous)
	if a.state.CurrentQuestion != nil {
		a.state.CurrentQuestion.StartedAt = timeNow().Add(-time.Duration(a.state.CurrentQuestion.TimeLimitMs-remaining) * time.Millisecond)
		a.scheduleDeadline(remaining, a.state.CurrentQuestion.ID)
	}
	a.persist(ctx)
}

// HandleEndGame processes TEACHER_END_GAME.
func (a *Actor) HandleEndGame(ctx context.Context, conn Connection, msg *wire.TeacherSimple) {
	a.touch()
	if conn.Role() != RoleTeacher {
		a.sendError(conn, msg.ClientMsgID, ErrNotAuthorized())
		return
	}
	a.cancelDeadline()
	previous := a.state.Phase
	if err := a.lifecycle.End(ctx); err != nil {
		a.sendError(conn, msg.ClientMsgID, AsEngineError(err))
		return
	}
	a.completed.Store(true)
	a.broadcastPhaseChange(previous)
	a.broadcastGameEnd()
	a.persist(ctx)
}

// HandleManualAdjust processes TEACHER_MANUAL_ADJUST.
func (a *Actor) HandleManualAdjust(ctx context.Context, conn Connection, msg *wire.TeacherManualAdjust) {
	a.touch()
	if conn.Role() != RoleTeacher {
		a.sendError(conn, msg.ClientMsgID, ErrNotAuthorized())
		return
	}
	newPos, effective, err := a.lifecycle.ManualAdjust(ctx, msg.Delta, msg.Reason)
	if err != nil {
		a.sendError(conn, msg.ClientMsgID, AsEngineError(err))
		return
	}
	side := ManualAdjustTeam(msg.Delta)
	teamID := ""
	if t := a.state.TeamBySide(side); t != nil {
		teamID = t.ID
	}
	a.broadcaster.Broadcast(wire.TugUpdate{
		Type:        wire.TypeTugUpdate,
		Position:    newPos,
		Delta:       effective,
		Reason:      string(ReasonManualAdjust),
		TeamID:      teamID,
		LastEventID: a.state.LastEventID,
		Timestamp:   timeNow(),
	})
	a.persist(ctx)
}

// HandleKickPlayer processes TEACHER_KICK_PLAYER.
func (a *Actor) HandleKickPlayer(ctx context.Context, conn Connection, msg *wire.TeacherKickPlayer) {
	a.touch()
	if conn.Role() != RoleTeacher {
		a.sendError(conn, msg.ClientMsgID, ErrNotAuthorized())
		return
	}
	if err := a.lifecycle.KickPlayer(ctx, msg.PlayerID); err != nil {
		a.sendError(conn, msg.ClientMsgID, AsEngineError(err))
		return
	}
	for _, kicked := range a.registry.ConnectionsForStudent(msg.PlayerID) {
		a.broadcaster.Send(kicked, wire.PlayerKicked{Type: wire.TypePlayerKicked, StudentID: msg.PlayerID, Timestamp: timeNow()})
		_ = kicked.Close(wire.ClosePolicyViolation, "removed by teacher")
		a.registry.Unregister(kicked.ID())
	}
	a.broadcaster.Broadcast(wire.RosterUpdate{
		Type:      wire.TypeRosterUpdate,
		Teams:     toWireTeams(teamViews(a.state.Teams)),
		Students:  toWireStudents(studentViews(a.state.Students)),
		Timestamp: timeNow(),
	})
	a.persist(ctx)
}

// RecoverDeadline re-arms the question timer after a fresh rehydrate, using
// the persisted question instance's StartedAt and TimeLimitMs rather than a
// fresh full-length window, so a hibernated session doesn't silently grant
// students extra time (§9 design notes, "deadline recovery from persisted
// started_at is mandatory"). A no-op unless the restored phase is
// active_question.
func (a *Actor) RecoverDeadline() {
	if a.state.Phase != PhaseActiveQuestion || a.state.CurrentQuestion == nil {
		return
	}
	cq := a.state.CurrentQuestion
	elapsed := time.Since(cq.StartedAt).Milliseconds()
	remaining := cq.TimeLimitMs - elapsed
	// scheduleDeadline clamps remaining <= 0 up to 1ms, so an already-expired
	// question still fires (and ends) almost immediately rather than hanging.
	a.scheduleDeadline(remaining, cq.ID)
}

// --- question deadline timer ---------------------------------------------

// scheduleDeadline arms a one-shot timer that, on fire, enqueues the
// expiry handling back onto this actor's own mailbox rather than mutating
// state from the timer's goroutine (§5, timer-to-actor pattern).
func (a *Actor) scheduleDeadline(ms int64, instanceID string) {
	a.deadlineMu.Lock()
	defer a.deadlineMu.Unlock()
	if a.deadlineTimer != nil {
		a.deadlineTimer.Stop()
	}
	a.deadlineSeq++
	seq := a.deadlineSeq
	if ms <= 0 {
		ms = 1
	}
	a.deadlineTimer = time.AfterFunc(time.Duration(ms)*time.Millisecond, func() {
		a.Enqueue(func(ctx context.Context) {
			a.onDeadlineFired(ctx, seq, instanceID)
		})
	})
}

func (a *Actor) cancelDeadline() {
	a.deadlineMu.Lock()
	defer a.deadlineMu.Unlock()
	if a.deadlineTimer != nil {
		a.deadlineTimer.Stop()
	}
	a.deadlineSeq++
}

// onDeadlineFired runs on the actor goroutine. It discards stale fires
// left over from a pause/resume/manual-advance race by comparing seq and
// the still-active instance id.
func (a *Actor) onDeadlineFired(ctx context.Context, seq uint64, instanceID string) {
	a.deadlineMu.Lock()
	stale := seq != a.deadlineSeq
	a.deadlineMu.Unlock()
	if stale {
		return
	}
	if a.state.Phase != PhaseActiveQuestion || a.state.CurrentQuestion == nil || a.state.CurrentQuestion.ID != instanceID {
		return
	}
	previous := a.state.Phase
	stats, err := a.lifecycle.EndQuestion(ctx, CmdQuestionTimerExpired)
	if err != nil {
		a.log.Error().Err(err).Msg("failed to end question on timer expiry")
		return
	}
	a.broadcastPhaseChange(previous)
	a.broadcaster.Broadcast(wire.QuestionReveal{
		Type:               wire.TypeQuestionReveal,
		QuestionInstanceID: stats.Instance.ID,
		CorrectAnswerID:    stats.CorrectAnswerID,
		Explanation:        stats.Explanation,
		Stats:              toWireRevealStats(stats),
		Timestamp:          timeNow(),
	})
	a.persist(ctx)
}

// --- Control API call wrappers -------------------------------------------
//
// These run the same serialized-on-the-actor pattern as the WebSocket
// handlers above but carry a typed return value back to an HTTP handler
// via a one-shot channel, instead of writing a wire event to a
// Connection. They are the only way the Control API touches a session's
// RuntimeState (§4.9, Control API).

type callResult[T any] struct {
	val T
	err error
}

func callActor[T any](ctx context.Context, a *Actor, fn func(context.Context) (T, error)) (T, error) {
	done := make(chan callResult[T], 1)
	a.Enqueue(func(ctx context.Context) {
		val, err := fn(ctx)
		done <- callResult[T]{val: val, err: err}
	})
	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// CallInit runs Lifecycle.Init on the actor goroutine.
func (a *Actor) CallInit(ctx context.Context, rulesetID string) error {
	_, err := callActor(ctx, a, func(ctx context.Context) (struct{}, error) {
		err := a.lifecycle.Init(ctx, rulesetID)
		if err == nil {
			a.persist(ctx)
		}
		return struct{}{}, err
	})
	return err
}

// CallGetState returns a role-filtered snapshot for a polling Control API
// client (§4.9, get_state).
func (a *Actor) CallGetState(ctx context.Context, role Role) (Projection, error) {
	return callActor(ctx, a, func(ctx context.Context) (Projection, error) {
		a.touch()
		return a.state.Snapshot(role), nil
	})
}

// CallSubmitAnswer admits an answer submitted over the Control API
// (out-of-band clients without a live WebSocket) and broadcasts the same
// events a WS submission would (§4.9, submit_answer_http).
func (a *Actor) CallSubmitAnswer(ctx context.Context, studentID, instanceID, answerID string, responseTimeMs int64) (*AnswerResult, error) {
	return callActor(ctx, a, func(ctx context.Context) (*AnswerResult, error) {
		a.touch()
		result, err := a.lifecycle.AdmitAnswer(ctx, studentID, instanceID, answerID, responseTimeMs)
		if err != nil {
			return nil, err
		}
		if result.Correct {
			a.broadcaster.Broadcast(wire.TugUpdate{
				Type:        wire.TypeTugUpdate,
				Position:    result.NewPosition,
				Delta:       result.Delta,
				Reason:      string(ReasonCorrectAnswer),
				TeamID:      result.TeamID,
				LastEventID: a.state.LastEventID,
				Timestamp:   timeNow(),
			})
		}
		a.persist(ctx)
		return result, nil
	})
}

// CallKick runs KickPlayer and disconnects any live connection for the
// student, mirroring HandleKickPlayer's side effects (§4.9, kick).
func (a *Actor) CallKick(ctx context.Context, studentID string) error {
	_, err := callActor(ctx, a, func(ctx context.Context) (struct{}, error) {
		a.touch()
		if err := a.lifecycle.KickPlayer(ctx, studentID); err != nil {
			return struct{}{}, err
		}
		for _, kicked := range a.registry.ConnectionsForStudent(studentID) {
			a.broadcaster.Send(kicked, wire.PlayerKicked{Type: wire.TypePlayerKicked, StudentID: studentID, Timestamp: timeNow()})
			_ = kicked.Close(wire.ClosePolicyViolation, "removed by teacher")
			a.registry.Unregister(kicked.ID())
		}
		a.broadcaster.Broadcast(wire.RosterUpdate{
			Type:      wire.TypeRosterUpdate,
			Teams:     toWireTeams(teamViews(a.state.Teams)),
			Students:  toWireStudents(studentViews(a.state.Students)),
			Timestamp: timeNow(),
		})
		a.persist(ctx)
		return struct{}{}, nil
	})
	return err
}

// CallEnd runs Lifecycle.End and broadcasts GAME_END, mirroring
// HandleEndGame (§4.9, end).
func (a *Actor) CallEnd(ctx context.Context) error {
	_, err := callActor(ctx, a, func(ctx context.Context) (struct{}, error) {
		a.touch()
		a.cancelDeadline()
		previous := a.state.Phase
		if err := a.lifecycle.End(ctx); err != nil {
			return struct{}{}, err
		}
		a.completed.Store(true)
		a.broadcastPhaseChange(previous)
		a.broadcastGameEnd()
		a.persist(ctx)
		return struct{}{}, nil
	})
	return err
}
