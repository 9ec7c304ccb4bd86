package core

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Role is the tagged variant over signed-in identities.
type Role int

const (
	RoleEmployee Role = iota + 1
	RoleAdmin
)

func (r Role) String() string {
	switch r {
	case RoleEmployee:
		return "Employee"
	case RoleAdmin:
		return "Admin"
	default:
		return "unknown"
	}
}

// ParseRole is case-insensitive: "employee", "Employee" and "EMPLOYEE" are the same role.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "employee":
		return RoleEmployee, nil
	case "admin":
		return RoleAdmin, nil
	default:
		return 0, fmt.Errorf("unknown role %q", s)
	}
}

func (r Role) MarshalJSON() ([]byte, error) {
	switch r {
	case RoleEmployee, RoleAdmin:
		return json.Marshal(r.String())
	default:
		return nil, fmt.Errorf("marshal role %d: invalid", int(r))
	}
}

func (r *Role) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseRole(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Session is the signed-in identity, persisted as {"type": ..., "email": ...}.
type Session struct {
	Role  Role   `json:"type"`
	Email string `json:"email"`
}

func (s Session) Validate() error {
	switch s.Role {
	case RoleEmployee, RoleAdmin:
	default:
		return NewValidationError("type", "rôle invalide")
	}
	email := strings.TrimSpace(s.Email)
	if email == "" || !strings.Contains(email, "@") {
		return NewValidationError("email", "email invalide")
	}
	return nil
}
