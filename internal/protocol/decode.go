package protocol

import (
	"fmt"
	"io"

	"github.com/danmuck/rosctl/internal/protocol/word"
)

// ReadSentence reads words until the empty terminator word. The returned
// slice may be empty.
func ReadSentence(r io.Reader) ([]string, error) {
	words := make([]string, 0, 4)
	for {
		w, err := word.ReadString(r)
		if err != nil {
			return nil, err
		}
		if w == "" {
			return words, nil
		}
		words = append(words, w)
	}
}

// ParseReply classifies a reply sentence by its first word.
func ParseReply(words []string) (Reply, error) {
	if len(words) == 0 {
		return Reply{}, ErrEmptyReply
	}
	var t ReplyType
	switch words[0] {
	case TagDone:
		t = ReplyDone
	case TagRow:
		t = ReplyRow
	case TagTrap:
		t = ReplyTrap
	case TagFatal:
		t = ReplyFatal
	default:
		return Reply{}, fmt.Errorf("%w: %q", ErrUnknownReplyTag, words[0])
	}
	return Reply{
		Type:  t,
		Attrs: ParseAttrs(words[1:]),
		Words: words,
	}, nil
}

// ReadReply reads and classifies one reply sentence. Empty sentences are
// skipped.
func ReadReply(r io.Reader) (Reply, error) {
	for {
		words, err := ReadSentence(r)
		if err != nil {
			return Reply{}, err
		}
		if len(words) == 0 {
			continue
		}
		return ParseReply(words)
	}
}
