package session

import "time"

// Status tracks the lifecycle of an encounter.
type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

// Role identifies one of the two parties in an encounter.
type Role string

const (
	RoleProvider Role = "provider"
	RolePatient  Role = "patient"
)

// Valid reports whether r is one of the two known roles.
func (r Role) Valid() bool {
	return r == RoleProvider || r == RolePatient
}

// Peer returns the opposite role.
func (r Role) Peer() Role {
	if r == RoleProvider {
		return RolePatient
	}
	return RoleProvider
}

// Session captures one provider-patient translation encounter.
type Session struct {
	ID             string    `json:"id"`
	MedicalContext string    `json:"medicalContext"`
	Status         Status    `json:"status"`
	SessionCode    string    `json:"sessionCode,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	EndedAt        time.Time `json:"endedAt,omitempty"`

	Provider Participant `json:"provider"`
	Patient  Participant `json:"patient"`
}

// Participant is one bindable role slot inside a session. The connection
// handle lives in the relay, not here; Bound mirrors whether a live handle
// currently exists for the role.
type Participant struct {
	Role     Role   `json:"role"`
	Language string `json:"language,omitempty"`
	Issued   bool   `json:"issued"`
	Bound    bool   `json:"bound"`

	// Credential is the stored bearer token for the patient slot so the
	// session code can resolve to it. Never returned by lifecycle endpoints.
	Credential string `json:"credential,omitempty"`
}

// ParticipantFor returns a pointer to the slot for the given role.
func (s *Session) ParticipantFor(role Role) *Participant {
	if role == RolePatient {
		return &s.Patient
	}
	return &s.Provider
}
