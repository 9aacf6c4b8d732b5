package domain

import "errors"

var (
	ErrInvalidData   = errors.New("invalid post data")
	ErrAlreadyExists = errors.New("post already exists")
	ErrNotFound      = errors.New("post not found")
)
