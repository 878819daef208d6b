package session

import (
	"time"

	"github.com/classroomgames/tugquiz/internal/wire"
)

// toWireTeams converts internal team views to their wire projection.
func toWireTeams(teams []teamView) []wire.TeamView {
	out := make([]wire.TeamView, 0, len(teams))
	for _, t := range teams {
		out = append(out, wire.TeamView{ID: t.ID, Name: t.Name, Color: t.Color, Side: t.Side, Score: t.Score})
	}
	return out
}

// toWireStudents converts internal student views to their wire projection.
func toWireStudents(students []studentView) []wire.StudentView {
	out := make([]wire.StudentView, 0, len(students))
	for _, st := range students {
		sv := wire.StudentView{ID: st.ID, Nickname: st.Nickname, Status: st.Status}
		if st.TeamID != "" {
			teamID := st.TeamID
			sv.TeamID = &teamID
		}
		out = append(out, sv)
	}
	return out
}

// toWireQuestion converts the role-filtered question projection.
func toWireQuestion(q *QuestionProjection) *wire.QuestionView {
	if q == nil {
		return nil
	}
	answers := make([]wire.AnswerOption, 0, len(q.Answers))
	for _, a := range q.Answers {
		answers = append(answers, wire.AnswerOption{ID: a.ID, Text: a.Text})
	}
	return &wire.QuestionView{
		ID:              q.ID,
		Text:            q.Text,
		Answers:         answers,
		Type:            q.Type,
		Difficulty:      q.Difficulty,
		TimeLimitMs:     q.TimeLimitMs,
		Points:          q.Points,
		CorrectAnswerID: q.CorrectAnswerID,
	}
}

// toWireStreaks converts the streak map to its wire projection.
func toWireStreaks(streaks map[string]StreakState) map[string]wire.Streak {
	out := make(map[string]wire.Streak, len(streaks))
	for id, s := range streaks {
		out[id] = wire.Streak{Current: s.Current, Max: s.Max}
	}
	return out
}

// ToWireState converts a role-filtered Projection into its wire form for
// the Control API's HTTP state endpoint; it is the exported form of
// toWireState.
func ToWireState(p Projection) wire.GameStateView {
	return toWireState(p)
}

// toWireState converts a role-filtered Projection into the wire payload
// sent on WELCOME and STATE_SNAPSHOT (§4.7, §6).
func toWireState(p Projection) wire.GameStateView {
	return wire.GameStateView{
		SessionID:            p.SessionID,
		Phase:                string(p.Phase),
		Position:             p.Position,
		Teams:                toWireTeams(p.Teams),
		Students:             toWireStudents(p.Students),
		CurrentQuestionIndex: p.CurrentQuestionIndex,
		TotalQuestions:       p.TotalQuestions,
		CurrentQuestion:      toWireQuestion(p.CurrentQuestion),
		Streaks:              toWireStreaks(p.Streaks),
		StartedAt:            p.StartedAt,
		LastEventID:          p.LastEventID,
		SnapshotVersion:      p.SnapshotVersion,
	}
}

// toWireRevealStats converts a Lifecycle RevealStats into the wire
// QUESTION_REVEAL aggregate block.
func toWireRevealStats(rs *RevealStats) wire.RevealStats {
	teamStats := make(map[string]wire.TeamStats, len(rs.TeamStats))
	total, correct := 0, 0
	for id, ts := range rs.TeamStats {
		avg := 0.0
		teamStats[id] = wire.TeamStats{Attempts: ts.Answered, Correct: ts.Correct, AverageResponseMs: avg}
		total += ts.Answered
		correct += ts.Correct
	}
	return wire.RevealStats{TotalAttempts: total, CorrectAttempts: correct, TeamStats: teamStats}
}

func timeNow() time.Time { return time.Now() }
