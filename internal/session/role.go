package session

// Role identifies the authenticated kind of a connection or Control API
// caller (§4.10 auth, §6 wire contract).
type Role string

const (
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)
