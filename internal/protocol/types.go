package protocol

import "strings"

const (
	TagDone  = "!done"
	TagRow   = "!re"
	TagTrap  = "!trap"
	TagFatal = "!fatal"
)

// ReplyType is the closed set of reply sentence kinds.
type ReplyType int

const (
	ReplyDone ReplyType = iota + 1
	ReplyRow
	ReplyTrap
	ReplyFatal
)

func (t ReplyType) String() string {
	switch t {
	case ReplyDone:
		return TagDone
	case ReplyRow:
		return TagRow
	case ReplyTrap:
		return TagTrap
	case ReplyFatal:
		return TagFatal
	default:
		return "unknown"
	}
}

// Attrs holds the =key=value words of one reply sentence.
type Attrs map[string]string

func (a Attrs) Get(key string) (string, bool) {
	v, ok := a[key]
	return v, ok
}

// Reply is one classified reply sentence.
type Reply struct {
	Type  ReplyType
	Attrs Attrs
	// Words keeps the raw sentence, tag included.
	Words []string
}

// Terminal reports whether the reply ends a logical command response.
func (r Reply) Terminal() bool {
	return r.Type == ReplyDone || r.Type == ReplyTrap || r.Type == ReplyFatal
}

// Message returns the trap message or the fatal reason.
func (r Reply) Message() string {
	if msg, ok := r.Attrs["message"]; ok {
		return msg
	}
	if r.Type == ReplyFatal && len(r.Words) > 1 {
		return strings.Join(r.Words[1:], " ")
	}
	return ""
}
