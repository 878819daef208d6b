package session

import "context"

// ControlAPI is the thin synchronous facade the HTTP transport calls
// through; every method except CreateSession (which only spawns) resolves
// a resident or hibernated actor via the Manager and then runs exactly one
// serialized call against it (§4.9,
// Control API: init, end, get_state, submit_answer_http, kick).
type ControlAPI struct {
	manager *Manager
}

// NewControlAPI builds a ControlAPI over manager.
func NewControlAPI(manager *Manager) *ControlAPI {
	return &ControlAPI{manager: manager}
}

// CreateSession spawns a brand-new session actor in the lobby phase.
// The relational session row itself is expected to already exist;
// CreateSession only establishes the in-memory runtime counterpart.
func (c *ControlAPI) CreateSession(sessionID, tenantID string, teams []*Team, questionIDs []string) {
	c.manager.Spawn(sessionID, tenantID, teams, questionIDs)
}

// Init loads the ruleset (if any) and transitions lobby -> ready.
func (c *ControlAPI) Init(ctx context.Context, sessionID, rulesetID string) error {
	actor, err := c.manager.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	return actor.CallInit(ctx, rulesetID)
}

// GetState returns a role-filtered state projection, rehydrating the
// session if it is currently hibernated.
func (c *ControlAPI) GetState(ctx context.Context, sessionID string, role Role) (Projection, error) {
	actor, err := c.manager.Get(ctx, sessionID)
	if err != nil {
		return Projection{}, err
	}
	return actor.CallGetState(ctx, role)
}

// SubmitAnswer admits an answer through a path that never touches the
// WebSocket transport, e.g. a fallback HTTP endpoint for degraded clients.
func (c *ControlAPI) SubmitAnswer(ctx context.Context, sessionID, studentID, instanceID, answerID string, responseTimeMs int64) (*AnswerResult, error) {
	actor, err := c.manager.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return actor.CallSubmitAnswer(ctx, studentID, instanceID, answerID, responseTimeMs)
}

// Kick removes a student from the session via the Control API (e.g. an
// admin moderation tool distinct from the teacher's own WebSocket).
func (c *ControlAPI) Kick(ctx context.Context, sessionID, studentID string) error {
	actor, err := c.manager.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	return actor.CallKick(ctx, studentID)
}

// End force-ends a session from the Control API, independent of any
// connected teacher.
func (c *ControlAPI) End(ctx context.Context, sessionID string) error {
	actor, err := c.manager.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	return actor.CallEnd(ctx)
}
