package conversation

import "time"

// Role selects the instruction template injected into every prompt for a
// session. The three roles differ only in that template.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleDirector Role = "director"
	RoleDocente  Role = "docente"
)

// ParseRole validates a role string coming from the HTTP boundary.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleAdmin, RoleDirector, RoleDocente:
		return Role(s), true
	}
	return "", false
}

// Session captures one ongoing analysis conversation scoped to a graph.
// History always begins with a single system opening turn; subsequent
// turns alternate user/assistant.
type Session struct {
	ID             string    `json:"id"`
	GraphID        string    `json:"graphId"`
	Role           Role      `json:"role"`
	History        []Turn    `json:"history"`
	CreatedAt      time.Time `json:"createdAt"`
	LastActivityAt time.Time `json:"lastActivityAt"`
}

// Opened reports whether the opening analysis turn has been produced.
// A session whose opening generation failed has an empty history until a
// later call regenerates it.
func (s *Session) Opened() bool {
	return len(s.History) > 0
}

// AwaitingAssistant reports whether the last turn is an unanswered user
// turn, i.e. a gateway call is due for this session.
func (s *Session) AwaitingAssistant() bool {
	return len(s.History) > 0 && s.History[len(s.History)-1].Speaker == SpeakerUser
}

// LastTurn returns the most recent turn, if any.
func (s *Session) LastTurn() (Turn, bool) {
	if len(s.History) == 0 {
		return Turn{}, false
	}
	return s.History[len(s.History)-1], true
}
