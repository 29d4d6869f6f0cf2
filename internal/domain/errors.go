package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidOrder  = errors.New("invalid order parameters")
	ErrQueueClosed   = errors.New("queue closed")
	ErrQueueFull     = errors.New("queue full")
	ErrBusClosed     = errors.New("bus closed")
	ErrTerminalState = errors.New("order already in terminal state")
)
