package session

import (
	"context"
	"time"
)

// Question is the read-only bank content the Storage Adapter loads for
// the engine; it is owned by the external question-bank service (§3).
type Question struct {
	ID          string
	TenantID    string
	Text        string
	Type        string
	Difficulty  string
	Answers     []AnswerOption
	CorrectID   string
	TimeLimitMs int64
	BasePoints  int
	Explanation string
}

// Ruleset is the read-only scoring configuration the Storage Adapter
// loads for the engine (§3, SPEC_FULL §3).
type Ruleset struct {
	ID               string
	TenantID         string
	PointsPerCorrect int
	PointsForSpeed   bool
	StreakBonus      bool
	StreakThreshold  int
	StreakMultiplier float64
	DefaultTimeLimit int64
}

func (r Ruleset) toRules() Rules {
	return Rules{
		PointsPerCorrect: r.PointsPerCorrect,
		PointsForSpeed:   r.PointsForSpeed,
		StreakBonus:      r.StreakBonus,
		StreakThreshold:  r.StreakThreshold,
		StreakMultiplier: r.StreakMultiplier,
		DefaultTimeLimit: r.DefaultTimeLimit,
	}
}

// Roster is the team/student rows the Storage Adapter loads on init and
// on rehydrate (§4.1, load_roster).
type Roster struct {
	Teams    []*Team
	Students []*Student
}

// Storage is the single choke-point for relational I/O the Question
// Lifecycle Controller and Control API drive through (§4.1). Every
// method is a single statement or batch. Implementations return plain
// errors; the Lifecycle wraps every failure with ErrStorage as
// retryable, and no failure is classified fatal.
type Storage interface {
	LoadQuestion(ctx context.Context, questionID string) (*Question, error)
	LoadRuleset(ctx context.Context, rulesetID string) (*Ruleset, error)
	LoadRoster(ctx context.Context, sessionID string) (*Roster, error)

	InsertQuestionInstance(ctx context.Context, sessionID string, qi *QuestionInstance) error
	EndQuestionInstance(ctx context.Context, instanceID string, endedAt time.Time) error

	InsertAttempt(ctx context.Context, sessionID string, a *Attempt) error
	InsertStrengthEvent(ctx context.Context, sessionID string, e *StrengthEvent) error

	UpdateSessionOnEnd(ctx context.Context, sessionID string, finalPosition float64, endedAt time.Time) error
	UpdateStudentConnection(ctx context.Context, studentID string, status StudentStatus, lastSeenAt time.Time) error
	UpdateStudentTeam(ctx context.Context, studentID string, teamID *string) error
}

// StateStore durably persists a single opaque Session Runtime State blob
// per session, colocated with the actor (§4.2). The engine serializes
// exactly one snapshot after every state-mutating command completes and
// before acknowledging the command's externally observable effect.
type StateStore interface {
	Get(ctx context.Context, sessionID string) ([]byte, bool, error)
	// Put writes the session's blob. phase governs the TTL: only a
	// completed session gets a bounded expiry (§4.2) — every other
	// phase is written with no TTL, since the actor is the sole writer
	// and will keep refreshing the blob for as long as the session runs.
	Put(ctx context.Context, sessionID string, blob []byte, phase Phase) error
}
