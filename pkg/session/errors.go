package session

import "errors"

var (
	ErrNoTree          = errors.New("no tree to access local memory")
	ErrTypeMismatch    = errors.New("stored value has a different type")
	ErrNilValue        = errors.New("nil value")
	ErrUnknownRole     = errors.New("unknown role")
	ErrForeignMemory   = errors.New("memory implementation cannot be loaded")
	ErrSessionExists   = errors.New("session already exists")
	ErrSessionNotFound = errors.New("session not found")
	ErrNoPersister     = errors.New("no persister configured")
)
