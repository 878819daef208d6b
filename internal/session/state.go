package session

import "time"

// StudentStatus is a student's connection status within a session (§3).
type StudentStatus string

const (
	StudentConnected    StudentStatus = "connected"
	StudentDisconnected StudentStatus = "disconnected"
	StudentKicked       StudentStatus = "kicked"
)

// Team is a session's tug-of-war participant (§3).
type Team struct {
	ID    string
	Name  string
	Color string
	Side  Side
	Score int
}

// Student is a session participant (§3).
type Student struct {
	ID       string
	Nickname string
	TeamID   string // empty when unassigned
	Status   StudentStatus
}

// AnswerOption is one selectable option on a question instance.
type AnswerOption struct {
	ID   string
	Text string
}

// QuestionInstance is an immutable-once-written snapshot of a bank
// question at ask time (§3).
type QuestionInstance struct {
	ID              string
	QuestionID      string
	Index           int
	Text            string
	Type            string
	Difficulty      string
	Answers         []AnswerOption
	CorrectAnswerID string
	TimeLimitMs     int64
	BasePoints      int
	Explanation     string
	StartedAt       time.Time
	EndedAt         *time.Time

	// RemainingMsAtPause holds the time left on the deadline when the
	// question was paused; zero when not paused. It lets teacher_resume
	// reschedule the deadline with the exact remaining budget (§5, timer
	// semantics).
	RemainingMsAtPause int64

	// TeamAnswered and TeamCorrect tally per-team participation as
	// answers are admitted, so End question can report stats without
	// re-reading attempts back out of storage.
	TeamAnswered map[string]int
	TeamCorrect  map[string]int
}

// Attempt is an immutable-once-written per-student answer event (§3).
type Attempt struct {
	QuestionInstanceID string
	StudentID          string
	AnswerID           string
	Correct            bool
	ResponseTimeMs     int64
	PointsAwarded      int
	Timestamp          time.Time
}

// StrengthEvent is an immutable-once-written rope mutation record (§3).
type StrengthEvent struct {
	ID        int64
	TeamID    string
	Delta     float64
	Reason    StrengthReason
	Position  float64
	Trigger   string
	Timestamp time.Time
}

// RuntimeState is the full in-memory authoritative state of one game
// (§3, "Session Runtime State"). It is the single piece of mutable data
// the actor owns; every exported mutation goes through the functions in
// lifecycle.go, scoring.go, and phase.go so invariants hold by
// construction.
type RuntimeState struct {
	SessionID string
	TenantID  string
	Phase     Phase

	Position float64

	QuestionIDs          []string
	CurrentQuestionIndex int // -1 before the first question
	CurrentQuestion      *QuestionInstance

	Teams    []*Team
	Students map[string]*Student

	// Streaks is keyed by team id; both teams are always present once a
	// session has a roster, so resets can run in one pass (§9 design notes).
	Streaks map[string]*StreakState

	// Answered tracks which students have answered each question
	// instance, keyed by (instanceID -> studentID -> true). StartQuestion
	// clears the entry for the new instance id; entries for earlier
	// instances are kept. It is the in-memory admission set used to
	// enforce idempotency; per-team stats are tallied on the
	// QuestionInstance itself (§4.4).
	Answered map[string]map[string]bool

	RulesetID string
	Rules     Rules

	StartedAt *time.Time

	// LastEventID is the sequence number of the most recent strength
	// event or, absent one, the session's own monotone event counter.
	LastEventID int64

	// SnapshotVersion is the happens-before stamp for state snapshots
	// (§3 invariant 2). It increases on every externally observable
	// mutation.
	SnapshotVersion int64
}

// NewRuntimeState builds the initial lobby-phase state for a freshly
// created session, mirroring the dependency-injected construction style
// of the teacher's session state constructor.
func NewRuntimeState(sessionID, tenantID string, teams []*Team) *RuntimeState {
	streaks := make(map[string]*StreakState, len(teams))
	for _, t := range teams {
		streaks[t.ID] = &StreakState{}
	}
	return &RuntimeState{
		SessionID:            sessionID,
		TenantID:             tenantID,
		Phase:                PhaseLobby,
		Position:             50,
		CurrentQuestionIndex: -1,
		Teams:                teams,
		Students:             make(map[string]*Student),
		Streaks:              streaks,
		Answered:             make(map[string]map[string]bool),
		Rules:                DefaultRules,
	}
}

// TeamBySide returns the team occupying the given side, or nil.
func (s *RuntimeState) TeamBySide(side Side) *Team {
	for _, t := range s.Teams {
		if t.Side == side {
			return t
		}
	}
	return nil
}

// Team looks up a team by id.
func (s *RuntimeState) Team(id string) *Team {
	for _, t := range s.Teams {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// bumpSnapshot advances the monotone snapshot version (§3 invariant 2).
func (s *RuntimeState) bumpSnapshot() {
	s.SnapshotVersion++
}

// nextEventID advances and returns the session's monotone event counter.
func (s *RuntimeState) nextEventID() int64 {
	s.LastEventID++
	return s.LastEventID
}

// answeredSet returns (creating if absent) the admission set for an
// instance id.
func (s *RuntimeState) answeredSet(instanceID string) map[string]bool {
	set, ok := s.Answered[instanceID]
	if !ok {
		set = make(map[string]bool)
		s.Answered[instanceID] = set
	}
	return set
}

// HasAnswered reports whether studentID already answered instanceID.
func (s *RuntimeState) HasAnswered(instanceID, studentID string) bool {
	return s.Answered[instanceID][studentID]
}
