package models

// User is a fleet admin account. The service reads identities and replaces
// passwords; accounts are created and removed by the portal itself.
type User struct {
	ID       int64  `json:"id" db:"id"`
	Username string `json:"username" db:"username"`
	Email    string `json:"email" db:"email"`
	Phone    string `json:"phone" db:"phone"`
	Password string `json:"-" db:"password"`
}

// TableName returns the database table name for the User model.
func (u *User) TableName() string {
	return "users"
}

// Sanitize removes the stored credential before the user leaves the service.
func (u *User) Sanitize() *User {
	sanitized := *u
	sanitized.Password = ""
	return &sanitized
}

// Identity is what a requester must know to ask for a reset link. All three
// fields must match one account.
type Identity struct {
	Username string
	Email    string
	Phone    string
}

// Complete reports whether every field is set.
func (i Identity) Complete() bool {
	return i.Username != "" && i.Email != "" && i.Phone != ""
}
