package access

// UserProfile is the cached, read-only copy of the API's user record.
type UserProfile struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	FullName  string    `json:"full_name"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	IsActive  bool      `json:"is_active"`
	CreatedAt Timestamp `json:"created_at"`
}

// DisplayName prefers the username, then the email.
func (u UserProfile) DisplayName() string {
	if u.Username != "" {
		return u.Username
	}
	if u.Email != "" {
		return u.Email
	}
	return "User"
}

// Identity pairs a credential token with the profile it belongs to.
type Identity struct {
	Token string
	User  UserProfile
}
