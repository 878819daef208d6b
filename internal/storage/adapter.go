// Package storage implements session.Storage against PostgreSQL via pgx,
// the relational system of record for rosters, question banks, rulesets,
// and the append-only attempt/strength-event log (§4.1).
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/classroomgames/tugquiz/internal/session"
)

// Adapter implements session.Storage against a pgx connection pool.
type Adapter struct {
	pool *pgxpool.Pool
}

// New builds an Adapter over an already-established pool.
func New(pool *pgxpool.Pool) *Adapter {
	return &Adapter{pool: pool}
}

// Connect opens a pgx pool against dsn. Callers are responsible for
// closing the returned pool via pool.Close.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	cfg.MaxConnLifetime = time.Hour
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

func (a *Adapter) LoadQuestion(ctx context.Context, questionID string) (*session.Question, error) {
	row := a.pool.QueryRow(ctx, `
		SELECT id, tenant_id, text, type, difficulty, answers, correct_id,
		       time_limit_ms, base_points, explanation
		FROM questions WHERE id = $1`, questionID)

	var q session.Question
	var answers []answerRow
	if err := row.Scan(&q.ID, &q.TenantID, &q.Text, &q.Type, &q.Difficulty, &answers,
		&q.CorrectID, &q.TimeLimitMs, &q.BasePoints, &q.Explanation); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("question %s not found: %w", questionID, err)
		}
		return nil, fmt.Errorf("load question %s: %w", questionID, err)
	}
	q.Answers = toAnswerOptions(answers)
	return &q, nil
}

func (a *Adapter) LoadRuleset(ctx context.Context, rulesetID string) (*session.Ruleset, error) {
	row := a.pool.QueryRow(ctx, `
		SELECT id, tenant_id, points_per_correct, points_for_speed, streak_bonus,
		       streak_threshold, streak_multiplier, default_time_limit_ms
		FROM rulesets WHERE id = $1`, rulesetID)

	var r session.Ruleset
	if err := row.Scan(&r.ID, &r.TenantID, &r.PointsPerCorrect, &r.PointsForSpeed, &r.StreakBonus,
		&r.StreakThreshold, &r.StreakMultiplier, &r.DefaultTimeLimit); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("ruleset %s not found: %w", rulesetID, err)
		}
		return nil, fmt.Errorf("load ruleset %s: %w", rulesetID, err)
	}
	return &r, nil
}

func (a *Adapter) LoadRoster(ctx context.Context, sessionID string) (*session.Roster, error) {
	teamRows, err := a.pool.Query(ctx, `
		SELECT id, name, color, side, score FROM teams WHERE session_id = $1 ORDER BY side`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load teams for session %s: %w", sessionID, err)
	}
	defer teamRows.Close()

	var teams []*session.Team
	for teamRows.Next() {
		var t session.Team
		var side string
		if err := teamRows.Scan(&t.ID, &t.Name, &t.Color, &side, &t.Score); err != nil {
			return nil, fmt.Errorf("scan team row: %w", err)
		}
		t.Side = session.Side(side)
		teams = append(teams, &t)
	}
	if err := teamRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate team rows: %w", err)
	}

	studentRows, err := a.pool.Query(ctx, `
		SELECT id, nickname, COALESCE(team_id, ''), status FROM students WHERE session_id = $1`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load students for session %s: %w", sessionID, err)
	}
	defer studentRows.Close()

	var students []*session.Student
	for studentRows.Next() {
		var s session.Student
		var status string
		if err := studentRows.Scan(&s.ID, &s.Nickname, &s.TeamID, &status); err != nil {
			return nil, fmt.Errorf("scan student row: %w", err)
		}
		s.Status = session.StudentStatus(status)
		students = append(students, &s)
	}
	if err := studentRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate student rows: %w", err)
	}

	return &session.Roster{Teams: teams, Students: students}, nil
}

func (a *Adapter) InsertQuestionInstance(ctx context.Context, sessionID string, qi *session.QuestionInstance) error {
	_, err := a.pool.Exec(ctx, `
		INSERT INTO question_instances
			(id, session_id, question_id, index, text, answers, correct_answer_id, time_limit_ms, base_points, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		qi.ID, sessionID, qi.QuestionID, qi.Index, qi.Text, toAnswerRows(qi.Answers), qi.CorrectAnswerID,
		qi.TimeLimitMs, qi.BasePoints, qi.StartedAt)
	if err != nil {
		return fmt.Errorf("insert question instance %s: %w", qi.ID, err)
	}
	return nil
}

func (a *Adapter) EndQuestionInstance(ctx context.Context, instanceID string, endedAt time.Time) error {
	_, err := a.pool.Exec(ctx, `UPDATE question_instances SET ended_at = $2 WHERE id = $1`, instanceID, endedAt)
	if err != nil {
		return fmt.Errorf("end question instance %s: %w", instanceID, err)
	}
	return nil
}

// InsertAttempt writes an attempt row. A unique constraint on
// (question_instance_id, student_id) is the durable backstop for the
// at-most-one-attempt invariant the in-memory admission map already
// enforces (§9 design notes). A constraint violation is returned as a
// plain wrapped error like any other failure; the adapter does not mark
// it non-retryable, and the Lifecycle reports it as a retryable storage
// error.
func (a *Adapter) InsertAttempt(ctx context.Context, sessionID string, at *session.Attempt) error {
	_, err := a.pool.Exec(ctx, `
		INSERT INTO attempts
			(session_id, question_instance_id, student_id, answer_id, correct, response_time_ms, points_awarded, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		sessionID, at.QuestionInstanceID, at.StudentID, at.AnswerID, at.Correct, at.ResponseTimeMs, at.PointsAwarded, at.Timestamp)
	if err != nil {
		return fmt.Errorf("insert attempt for student %s: %w", at.StudentID, err)
	}
	return nil
}

func (a *Adapter) InsertStrengthEvent(ctx context.Context, sessionID string, e *session.StrengthEvent) error {
	_, err := a.pool.Exec(ctx, `
		INSERT INTO strength_events
			(id, session_id, team_id, delta, reason, position, trigger, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, sessionID, e.TeamID, e.Delta, e.Reason, e.Position, e.Trigger, e.Timestamp)
	if err != nil {
		return fmt.Errorf("insert strength event %d: %w", e.ID, err)
	}
	return nil
}

func (a *Adapter) UpdateSessionOnEnd(ctx context.Context, sessionID string, finalPosition float64, endedAt time.Time) error {
	_, err := a.pool.Exec(ctx, `
		UPDATE sessions SET status = 'completed', final_position = $2, ended_at = $3 WHERE id = $1`,
		sessionID, finalPosition, endedAt)
	if err != nil {
		return fmt.Errorf("update session %s on end: %w", sessionID, err)
	}
	return nil
}

func (a *Adapter) UpdateStudentConnection(ctx context.Context, studentID string, status session.StudentStatus, lastSeenAt time.Time) error {
	_, err := a.pool.Exec(ctx, `
		UPDATE students SET status = $2, last_seen_at = $3 WHERE id = $1`, studentID, string(status), lastSeenAt)
	if err != nil {
		return fmt.Errorf("update student %s connection status: %w", studentID, err)
	}
	return nil
}

func (a *Adapter) UpdateStudentTeam(ctx context.Context, studentID string, teamID *string) error {
	_, err := a.pool.Exec(ctx, `UPDATE students SET team_id = $2 WHERE id = $1`, studentID, teamID)
	if err != nil {
		return fmt.Errorf("update student %s team: %w", studentID, err)
	}
	return nil
}

// answerRow mirrors the JSONB shape of a question's answers column.
type answerRow struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

func toAnswerOptions(rows []answerRow) []session.AnswerOption {
	out := make([]session.AnswerOption, 0, len(rows))
	for _, r := range rows {
		out = append(out, session.AnswerOption{ID: r.ID, Text: r.Text})
	}
	return out
}

func toAnswerRows(opts []session.AnswerOption) []answerRow {
	out := make([]answerRow, 0, len(opts))
	for _, o := range opts {
		out = append(out, answerRow{ID: o.ID, Text: o.Text})
	}
	return out
}

var _ session.Storage = (*Adapter)(nil)
