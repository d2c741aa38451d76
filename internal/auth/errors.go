package auth

import "errors"

var (
	ErrInvalidToken       = errors.New("auth: invalid token")
	ErrWrongTokenType     = errors.New("auth: wrong token type")
	ErrMissingSecret      = errors.New("auth: secret is not configured")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
)
