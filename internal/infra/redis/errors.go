package redis

import "errors"

// Package errors.
var (
	ErrKeyNotFound     = errors.New("key not found")
	ErrSessionNotFound = errors.New("debug session not found")
)
