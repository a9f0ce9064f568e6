package user

import "strings"

// User is the authenticated account behind a request.
// Identity is issued by the external auth provider; only the JWT claims are known here.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

func (u User) IsAuthenticated() bool {
	return strings.TrimSpace(u.ID) != ""
}

// DisplayName falls back to the email's local part when no name is set.
func (u User) DisplayName() string {
	if name := strings.TrimSpace(u.Name); name != "" {
		return name
	}
	if i := strings.Index(u.Email, "@"); i > 0 {
		return u.Email[:i]
	}
	return u.Email
}
