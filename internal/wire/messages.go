// Package wire defines the JSON message shapes exchanged between the
// Session Engine and its clients over the WebSocket and Control API
// surfaces (§6 of the session engine contract).
package wire

// ClientMessageType discriminates inbound client-to-server frames.
type ClientMessageType string

const (
	TypeHello                 ClientMessageType = "HELLO"
	TypeJoinTeam              ClientMessageType = "JOIN_TEAM"
	TypeSubmitAnswer          ClientMessageType = "SUBMIT_ANSWER"
	TypeTeacherNextQuestion   ClientMessageType = "TEACHER_NEXT_QUESTION"
	TypeTeacherPause          ClientMessageType = "TEACHER_PAUSE"
	TypeTeacherResume         ClientMessageType = "TEACHER_RESUME"
	TypeTeacherEndGame        ClientMessageType = "TEACHER_END_GAME"
	TypeTeacherManualAdjust   ClientMessageType = "TEACHER_MANUAL_ADJUST"
	TypeTeacherKickPlayer     ClientMessageType = "TEACHER_KICK_PLAYER"
	TypePing                  ClientMessageType = "PING"
)

// Envelope is the minimal shape every inbound frame must satisfy; the
// Message Router decodes this first to learn how to decode the rest.
type Envelope struct {
	Type ClientMessageType `json:"type" validate:"required"`
}

// Hello authenticates the connection and optionally requests replay.
type Hello struct {
	Type         ClientMessageType `json:"type" validate:"required,eq=HELLO"`
	Token        string            `json:"token" validate:"required"`
	ClientMsgID  string            `json:"clientMsgId,omitempty"`
	Reconnect    bool              `json:"reconnect,omitempty"`
	LastEventID  int64             `json:"lastEventId,omitempty"`
}

// JoinTeam requests team membership for the sending student.
type JoinTeam struct {
	Type        ClientMessageType `json:"type" validate:"required,eq=JOIN_TEAM"`
	TeamID      string            `json:"teamId" validate:"required"`
	ClientMsgID string            `json:"clientMsgId,omitempty"`
}

// SubmitAnswer is a student's response to the currently active question.
type SubmitAnswer struct {
	Type        ClientMessageType `json:"type" validate:"required,eq=SUBMIT_ANSWER"`
	InstanceID  string            `json:"instanceId" validate:"required"`
	ChoiceID    string            `json:"choiceId" validate:"required"`
	ClientMsgID string            `json:"clientMsgId,omitempty"`
}

// TeacherNextQuestion advances the session. QuestionID, when set, picks the
// bank question for the first question started from ready; later questions
// follow the question id sequence the session was created with.
type TeacherNextQuestion struct {
	Type        ClientMessageType `json:"type" validate:"required,eq=TEACHER_NEXT_QUESTION"`
	QuestionID  string            `json:"questionId,omitempty"`
	ClientMsgID string            `json:"clientMsgId,omitempty"`
}

// TeacherSimple covers PAUSE / RESUME / END_GAME, which carry no payload
// beyond the discriminator and an optional client message id.
type TeacherSimple struct {
	Type        ClientMessageType `json:"type" validate:"required"`
	ClientMsgID string            `json:"clientMsgId,omitempty"`
}

// TeacherManualAdjust nudges the rope directly, bypassing scoring.
type TeacherManualAdjust struct {
	Type        ClientMessageType `json:"type" validate:"required,eq=TEACHER_MANUAL_ADJUST"`
	Delta       float64           `json:"delta" validate:"min=-100,max=100"`
	Reason      string            `json:"reason,omitempty"`
	ClientMsgID string            `json:"clientMsgId,omitempty"`
}

// TeacherKickPlayer removes a student from the game.
type TeacherKickPlayer struct {
	Type        ClientMessageType `json:"type" validate:"required,eq=TEACHER_KICK_PLAYER"`
	PlayerID    string            `json:"playerId" validate:"required"`
	ClientMsgID string            `json:"clientMsgId,omitempty"`
}

// Ping is a liveness check answered with Pong without touching state.
type Ping struct {
	Type        ClientMessageType `json:"type" validate:"required,eq=PING"`
	ClientMsgID string            `json:"clientMsgId,omitempty"`
}
