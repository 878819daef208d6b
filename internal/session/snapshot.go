package session

import (
	"encoding/json"
	"fmt"
	"time"
)

// Blob is the durable, opaque shape the State Store persists and
// restores (§6, "Persisted state layout"). Field names match the wire
// contract exactly so operators inspecting Redis can read it directly.
type Blob struct {
	SessionID            string                  `json:"sessionId"`
	TenantID             string                  `json:"tenantId"`
	Phase                Phase                   `json:"phase"`
	Position             float64                 `json:"position"`
	QuestionIDs          []string                `json:"questionIds"`
	CurrentQuestionIndex int                     `json:"currentQuestionIndex"`
	CurrentQuestion      *QuestionInstance       `json:"currentQuestion,omitempty"`
	Teams                []*Team                 `json:"teams"`
	Streaks              map[string]*StreakState `json:"streaks"`
	RulesetID            string                  `json:"rulesetId,omitempty"`
	Rules                Rules                   `json:"rules"`
	StartedAt            *time.Time              `json:"startedAt,omitempty"`
	LastEventID          int64                   `json:"lastEventId"`
	SnapshotVersion      int64                   `json:"snapshotVersion"`
}

// ToBlob captures the full runtime state into its durable form. Students
// are intentionally excluded: the relational roster is the source of
// truth for membership and is reloaded via Storage.LoadRoster on
// rehydrate (§6).
func (s *RuntimeState) ToBlob() *Blob {
	return &Blob{
		SessionID:            s.SessionID,
		TenantID:             s.TenantID,
		Phase:                s.Phase,
		Position:             s.Position,
		QuestionIDs:          s.QuestionIDs,
		CurrentQuestionIndex: s.CurrentQuestionIndex,
		CurrentQuestion:      s.CurrentQuestion,
		Teams:                s.Teams,
		Streaks:              s.Streaks,
		RulesetID:            s.RulesetID,
		Rules:                s.Rules,
		StartedAt:            s.StartedAt,
		LastEventID:          s.LastEventID,
		SnapshotVersion:      s.SnapshotVersion,
	}
}

// Marshal serializes the blob for the State Store.
func (s *RuntimeState) Marshal() ([]byte, error) {
	return json.Marshal(s.ToBlob())
}

// RestoreFromBlob rebuilds a RuntimeState from a persisted Blob plus a
// freshly loaded roster, rebuilding the in-memory structures that are not
// themselves durable: the Students map from the roster, and an empty
// Answered set.
func RestoreFromBlob(b *Blob, roster *Roster) *RuntimeState {
	students := make(map[string]*Student, len(roster.Students))
	for _, st := range roster.Students {
		students[st.ID] = st
	}
	return &RuntimeState{
		SessionID:            b.SessionID,
		TenantID:             b.TenantID,
		Phase:                b.Phase,
		Position:             b.Position,
		QuestionIDs:          b.QuestionIDs,
		CurrentQuestionIndex: b.CurrentQuestionIndex,
		CurrentQuestion:      b.CurrentQuestion,
		Teams:                b.Teams,
		Students:             students,
		Streaks:              b.Streaks,
		Answered:             make(map[string]map[string]bool),
		RulesetID:            b.RulesetID,
		Rules:                b.Rules,
		StartedAt:            b.StartedAt,
		LastEventID:          b.LastEventID,
		SnapshotVersion:      b.SnapshotVersion,
	}
}

// UnmarshalBlob decodes a State Store byte blob.
func UnmarshalBlob(data []byte) (*Blob, error) {
	var b Blob
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("unmarshal session blob: %w", err)
	}
	return &b, nil
}

// teamViews projects teams for wire responses.
func teamViews(teams []*Team) []teamView {
	out := make([]teamView, 0, len(teams))
	for _, t := range teams {
		out = append(out, teamView{
			ID: t.ID, Name: t.Name, Color: t.Color, Side: string(t.Side), Score: t.Score,
		})
	}
	return out
}

// teamView and studentView mirror wire.TeamView/wire.StudentView but stay
// local to avoid the session package depending on the wire package for
// internal projection plumbing; the transport layer converts these 1:1.
type teamView struct {
	ID, Name, Color, Side string
	Score                 int
}

type studentView struct {
	ID, Nickname, TeamID, Status string
}

func studentViews(students map[string]*Student) []studentView {
	out := make([]studentView, 0, len(students))
	for _, st := range students {
		if st.Status == StudentKicked {
			continue
		}
		out = append(out, studentView{ID: st.ID, Nickname: st.Nickname, TeamID: st.TeamID, Status: string(st.Status)})
	}
	return out
}

// QuestionProjection is the role-sensitive view of the current question.
// TeacherView sets CorrectAnswerID; StudentView never does until reveal.
type QuestionProjection struct {
	ID              string
	Text            string
	Type            string
	Difficulty      string
	Answers         []AnswerOption
	TimeLimitMs     int64
	Points          int
	CorrectAnswerID string // only populated for teacher role, or any role once phase is reveal
}

// Projection is the full, role-filtered snapshot handed to a connection
// on WELCOME/STATE_SNAPSHOT and reconnection replay (§4.7, Design Notes
// §9 "state snapshot discriminated by role").
type Projection struct {
	SessionID            string
	Phase                Phase
	Position             float64
	Teams                []teamView
	Students             []studentView
	CurrentQuestionIndex int
	TotalQuestions       int
	CurrentQuestion      *QuestionProjection
	Streaks              map[string]StreakState
	StartedAt            *time.Time
	LastEventID          int64
	SnapshotVersion      int64
}

// Snapshot builds the state projection for the given role. Teachers
// always see the correct answer id of an in-flight question; students
// only see it once the phase has reached reveal (§4.7, never leak
// correctAnswerId through the student projection outside reveal).
func (s *RuntimeState) Snapshot(role Role) Projection {
	streaks := make(map[string]StreakState, len(s.Streaks))
	for id, st := range s.Streaks {
		streaks[id] = *st
	}

	var q *QuestionProjection
	if s.CurrentQuestion != nil {
		q = &QuestionProjection{
			ID:          s.CurrentQuestion.ID,
			Text:        s.CurrentQuestion.Text,
			Type:        s.CurrentQuestion.Type,
			Difficulty:  s.CurrentQuestion.Difficulty,
			Answers:     s.CurrentQuestion.Answers,
			TimeLimitMs: s.CurrentQuestion.TimeLimitMs,
			Points:      s.CurrentQuestion.BasePoints,
		}
		if role == RoleTeacher || s.Phase == PhaseReveal {
			q.CorrectAnswerID = s.CurrentQuestion.CorrectAnswerID
		}
	}

	return Projection{
		SessionID:            s.SessionID,
		Phase:                s.Phase,
		Position:             s.Position,
		Teams:                teamViews(s.Teams),
		Students:             studentViews(s.Students),
		CurrentQuestionIndex: s.CurrentQuestionIndex,
		TotalQuestions:       len(s.QuestionIDs),
		CurrentQuestion:      q,
		Streaks:              streaks,
		StartedAt:            s.StartedAt,
		LastEventID:          s.LastEventID,
		SnapshotVersion:      s.SnapshotVersion,
	}
}
