package protocol

import (
	"bytes"
	"io"

	"github.com/danmuck/rosctl/internal/protocol/word"
)

// EncodeSentence frames every word followed by the empty terminator word.
// All words are framed before anything is returned so an oversized word
// never leaves a half-written sentence on the stream.
func EncodeSentence(words []string) ([]byte, error) {
	var buf bytes.Buffer
	for _, w := range words {
		if err := word.WriteString(&buf, w); err != nil {
			return nil, err
		}
	}
	if err := word.Write(&buf, nil); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteSentence writes words as one sentence to w.
func WriteSentence(w io.Writer, words []string) error {
	payload, err := EncodeSentence(words)
	if err != nil {
		return err
	}
	_, err = w.Write(payload)
	return err
}
