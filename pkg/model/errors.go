package model

import "github.com/m-mizutani/goerr/v2"

var (
	ErrInvalidFeedSort   = goerr.New("invalid feed sort")
	ErrInvalidActionKind = goerr.New("invalid action kind")
	ErrStateCorrupted    = goerr.New("state file is corrupted")
)
