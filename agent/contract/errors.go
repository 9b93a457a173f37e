package contract

import "errors"

var (
	ErrDuplicateAction = errors.New("action already registered")
	ErrActionNotFound  = errors.New("action not found")
	ErrResolver        = errors.New("intent resolution failed")
	ErrInvalidConfig   = errors.New("invalid configuration")
)
