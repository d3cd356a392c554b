package user

import "errors"

var (
	ErrNotFound           = errors.New("credentials not found")
	ErrAlreadyExists      = errors.New("username already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidInput       = errors.New("invalid username or password")
)

// Credentials are kept apart from the chat users table: a chat User is still
// created lazily on first LOGIN, which is what provisions its rooms.
type Credentials struct {
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
}

// bcrypt ignores everything past 72 bytes of password.
type RegisterRequest struct {
	Username string `json:"username"           validate:"required,max=100"`
	Password string `json:"password,omitempty" validate:"required,max=72"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Username    string `json:"username"`
}
