package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrCodeExists          = errors.New("code already exists")
	ErrCodeInvalid         = errors.New("invalid or expired code")
	ErrCodeAlreadyRedeemed = errors.New("code already redeemed by this user")
	ErrCodeExhausted       = errors.New("code exhausted")
)
