package remote

import "errors"

var (
	ErrNotFound     = errors.New("remote: object not found")
	ErrVerification = errors.New("remote: post-condition verification failed")
	ErrTimeout      = errors.New("remote: polling bound exceeded")
	ErrScheduling   = errors.New("remote: scheduling failed")
	ErrNameRequired = errors.New("remote: name required")
)
