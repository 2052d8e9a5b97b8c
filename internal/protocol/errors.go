package protocol

import "errors"

var (
	ErrEmptyReply       = errors.New("protocol: empty reply sentence")
	ErrUnknownReplyTag  = errors.New("protocol: unknown reply tag")
	ErrInvalidCommand   = errors.New("protocol: invalid command word")
	ErrInvalidAttribute = errors.New("protocol: invalid attribute word")
)
