package wire

import "time"

// ServerMessageType discriminates outbound server-to-client frames.
type ServerMessageType string

const (
	TypeWelcome        ServerMessageType = "WELCOME"
	TypeStateSnapshot  ServerMessageType = "STATE_SNAPSHOT"
	TypeRosterUpdate   ServerMessageType = "ROSTER_UPDATE"
	TypePlayerJoined   ServerMessageType = "PLAYER_JOINED"
	TypePlayerKicked   ServerMessageType = "PLAYER_KICKED"
	TypeQuestion       ServerMessageType = "QUESTION"
	TypePhaseChange    ServerMessageType = "PHASE_CHANGE"
	TypeTugUpdate      ServerMessageType = "TUG_UPDATE"
	TypeAnswerResult   ServerMessageType = "ANSWER_RESULT"
	TypeQuestionReveal ServerMessageType = "QUESTION_REVEAL"
	TypeGameEnd        ServerMessageType = "GAME_END"
	TypeError          ServerMessageType = "ERROR"
	TypeAck            ServerMessageType = "ACK"
	TypePong           ServerMessageType = "PONG"
)

// ErrorCode enumerates the stable error codes carried on ERROR frames.
type ErrorCode string

const (
	ErrInvalidToken    ErrorCode = "INVALID_TOKEN"
	ErrSessionNotFound ErrorCode = "SESSION_NOT_FOUND"
	ErrSessionEnded    ErrorCode = "SESSION_ENDED"
	ErrNotAuthorized   ErrorCode = "NOT_AUTHORIZED"
	ErrAlreadyAnswered ErrorCode = "ALREADY_ANSWERED"
	ErrQuestionExpired ErrorCode = "QUESTION_EXPIRED"
	ErrInvalidAnswer   ErrorCode = "INVALID_ANSWER"
	ErrRateLimited     ErrorCode = "RATE_LIMITED"
	ErrInvalidMessage  ErrorCode = "INVALID_MESSAGE"
	ErrKicked          ErrorCode = "KICKED"
	ErrInvalidState    ErrorCode = "INVALID_STATE"
	ErrInternal        ErrorCode = "INTERNAL_ERROR"
)

// Close codes used when terminating a client connection.
const (
	CloseNormal          = 1000
	ClosePolicyViolation = 1008
	CloseInternalError   = 1011
)

// AnswerOption is the student-safe projection of a question's option.
type AnswerOption struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// TeamView projects a team for wire responses.
type TeamView struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
	Side  string `json:"side"`
	Score int    `json:"score"`
}

// StudentView projects a student for wire responses.
type StudentView struct {
	ID       string  `json:"id"`
	Nickname string  `json:"nickname"`
	TeamID   *string `json:"teamId,omitempty"`
	Status   string  `json:"status"`
}

// Welcome is sent immediately after a successful HELLO.
type Welcome struct {
	Type       ServerMessageType `json:"type"`
	SessionID  string            `json:"sessionId"`
	Phase      string            `json:"phase"`
	Position   float64           `json:"position,omitempty"`
	Teams      []TeamView        `json:"teams,omitempty"`
	Students   []StudentView     `json:"students,omitempty"`
	Role       string            `json:"role"`
	UserID     string            `json:"userId"`
	TeamID     string            `json:"teamId,omitempty"`
	ServerTime time.Time         `json:"serverTime"`
}

// GameStateView is the payload of STATE_SNAPSHOT; its shape varies by
// requesting role (teacher view includes the correct answer, student
// view includes it only once the phase is reveal).
type GameStateView struct {
	SessionID           string           `json:"sessionId"`
	Phase               string           `json:"phase"`
	Position            float64          `json:"position"`
	Teams               []TeamView       `json:"teams"`
	Students            []StudentView    `json:"students"`
	CurrentQuestionIndex int             `json:"currentQuestionIndex"`
	TotalQuestions       int             `json:"totalQuestions"`
	CurrentQuestion      *QuestionView   `json:"currentQuestion,omitempty"`
	Streaks              map[string]Streak `json:"streaks"`
	StartedAt            *time.Time      `json:"startedAt,omitempty"`
	LastEventID          int64           `json:"lastEventId"`
	SnapshotVersion      int64           `json:"snapshotVersion"`
}

// Streak is the wire projection of a team's streak counters.
type Streak struct {
	Current int `json:"current"`
	Max     int `json:"max"`
}

// QuestionView is the student-safe projection of a question instance;
// teacher views additionally set CorrectAnswerID.
type QuestionView struct {
	ID              string         `json:"id"`
	Text            string         `json:"text"`
	Answers         []AnswerOption `json:"answers"`
	Type            string         `json:"type,omitempty"`
	Difficulty      string         `json:"difficulty,omitempty"`
	TimeLimitMs     int64          `json:"timeLimitMs"`
	Points          int            `json:"points"`
	CorrectAnswerID string         `json:"correctAnswerId,omitempty"`
}

// StateSnapshot carries a full, versioned state projection.
type StateSnapshot struct {
	Type            ServerMessageType `json:"type"`
	State           GameStateView     `json:"state"`
	SnapshotVersion int64             `json:"snapshotVersion"`
}

// RosterUpdate announces team/roster membership changes.
type RosterUpdate struct {
	Type         ServerMessageType `json:"type"`
	Teams        []TeamView        `json:"teams"`
	Students     []StudentView     `json:"students,omitempty"`
	TotalPlayers int               `json:"totalPlayers,omitempty"`
	Timestamp    time.Time         `json:"timestamp"`
}

// PlayerJoined announces a single new student.
type PlayerJoined struct {
	Type      ServerMessageType `json:"type"`
	ID        string            `json:"id"`
	Nickname  string            `json:"nickname"`
	TeamID    string            `json:"teamId,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// PlayerKicked is sent to the kicked student immediately before close.
type PlayerKicked struct {
	Type      ServerMessageType `json:"type"`
	StudentID string            `json:"studentId"`
	Reason    string            `json:"reason,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Question announces a newly started question; the copy sent to students
// strips the correct answer id (student-safe projection, §4.7), while
// teacher connections receive it.
type Question struct {
	Type           ServerMessageType `json:"type"`
	Question       QuestionView      `json:"question"`
	QuestionIndex  int               `json:"questionIndex"`
	TotalQuestions int               `json:"totalQuestions"`
	StartsAt       time.Time         `json:"startsAt"`
	TimeLimitMs    int64             `json:"timeLimitMs"`
	Timestamp      time.Time         `json:"timestamp"`
}

// PhaseChange announces a phase machine transition.
type PhaseChange struct {
	Type         ServerMessageType `json:"type"`
	Phase        string            `json:"phase"`
	PreviousPhase string           `json:"previousPhase"`
	Timestamp    time.Time         `json:"timestamp"`
}

// TugUpdate announces a rope position change.
type TugUpdate struct {
	Type        ServerMessageType `json:"type"`
	Position    float64           `json:"position"`
	Delta       float64           `json:"delta"`
	Reason      string            `json:"reason"`
	TeamID      string            `json:"teamId"`
	LastEventID int64             `json:"lastEventId"`
	Timestamp   time.Time         `json:"timestamp"`
}

// AnswerResult is targeted to the submitting student only.
type AnswerResult struct {
	Type            ServerMessageType `json:"type"`
	Correct         bool              `json:"correct"`
	CorrectAnswerID string            `json:"correctAnswerId"`
	Delta           float64           `json:"delta"`
	NewPosition     float64           `json:"newPosition"`
	PointsAwarded   int               `json:"pointsAwarded"`
	ResponseTimeMs  int64             `json:"responseTimeMs"`
	Timestamp       time.Time         `json:"timestamp"`
}

// TeamStats is the per-team aggregate reported in a QUESTION_REVEAL.
type TeamStats struct {
	Attempts           int     `json:"attempts"`
	Correct            int     `json:"correct"`
	AverageResponseMs  float64 `json:"averageResponseMs"`
}

// RevealStats is the aggregate block of a QUESTION_REVEAL.
type RevealStats struct {
	TotalAttempts   int                  `json:"totalAttempts"`
	CorrectAttempts int                  `json:"correctAttempts"`
	TeamStats       map[string]TeamStats `json:"teamStats"`
}

// QuestionReveal announces the end of a question with its answer key and stats.
type QuestionReveal struct {
	Type              ServerMessageType `json:"type"`
	QuestionInstanceID string           `json:"questionInstanceId"`
	CorrectAnswerID   string            `json:"correctAnswerId"`
	Explanation       string            `json:"explanation,omitempty"`
	Stats             RevealStats       `json:"stats"`
	Timestamp         time.Time         `json:"timestamp"`
}

// GameSummary captures closing metadata for GAME_END.
type GameSummary struct {
	Duration       time.Duration `json:"duration"`
	TotalQuestions int           `json:"totalQuestions"`
}

// GameEnd announces the end of the game and its winner, if any.
type GameEnd struct {
	Type          ServerMessageType `json:"type"`
	Winner        *TeamView         `json:"winner"`
	FinalPosition float64           `json:"finalPosition"`
	Summary       GameSummary       `json:"summary"`
	Timestamp     time.Time         `json:"timestamp"`
}

// Error is a terminal or advisory error frame.
type Error struct {
	Type        ServerMessageType `json:"type"`
	Code        ErrorCode         `json:"code"`
	Message     string            `json:"message"`
	ClientMsgID string            `json:"clientMsgId,omitempty"`
}

// Ack acknowledges a mutating client message that produces no other reply.
type Ack struct {
	Type        ServerMessageType `json:"type"`
	ClientMsgID string            `json:"clientMsgId,omitempty"`
}

// Pong answers a PING.
type Pong struct {
	Type ServerMessageType `json:"type"`
}
