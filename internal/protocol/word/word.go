package word

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"

	xunicode "golang.org/x/text/encoding/unicode"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

const (
	// MaxLen is the largest payload a two-byte length prefix can carry.
	MaxLen = 0x3FFF

	oneByteLimit = 0x80
	twoByteLimit = 0x4000
	twoByteFlag  = 0x8000
)

var (
	ErrTooLong   = errors.New("word: length exceeds two-byte prefix")
	ErrTruncated = errors.New("word: truncated payload")
	ErrBadPrefix = errors.New("word: reserved length prefix")
)

var asciiOnly = runes.Remove(runes.Predicate(func(r rune) bool {
	return r > unicode.MaxASCII
}))

// FilterASCII drops every code point outside 7-bit ASCII, keeping order.
// Invalid UTF-8 bytes are dropped as well.
func FilterASCII(s string) string {
	if isASCII(s) {
		return s
	}
	out, _, err := transform.String(asciiOnly, s)
	if err != nil {
		return ""
	}
	return out
}

// EncodeLength returns the length prefix for a payload of n bytes.
func EncodeLength(n int) ([]byte, error) {
	switch {
	case n < 0:
		return nil, ErrTooLong
	case n < oneByteLimit:
		return []byte{byte(n)}, nil
	case n < twoByteLimit:
		v := uint16(n) | twoByteFlag
		return []byte{byte(v >> 8), byte(v)}, nil
	default:
		return nil, ErrTooLong
	}
}

// Encode returns prefix+payload for raw bytes.
func Encode(data []byte) ([]byte, error) {
	prefix, err := EncodeLength(len(data))
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, len(prefix)+len(data))
	buf = append(buf, prefix...)
	buf = append(buf, data...)
	return buf, nil
}

// EncodeString ASCII-filters s and frames the result.
func EncodeString(s string) ([]byte, error) {
	return Encode([]byte(FilterASCII(s)))
}

// Write frames data onto w. Nothing is written when the payload is too long.
func Write(w io.Writer, data []byte) error {
	buf, err := Encode(data)
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

func WriteString(w io.Writer, s string) error {
	return Write(w, []byte(FilterASCII(s)))
}

// ReadLength reads a length prefix of one to five bytes. Devices use the wide
// forms for long replies even though this client never writes them. A clean
// EOF before the first byte is returned as io.EOF.
func ReadLength(r io.Reader) (int, error) {
	var first [1]byte
	if _, err := io.ReadFull(r, first[:]); err != nil {
		return 0, err
	}
	b := first[0]
	var extra int
	var n int
	switch {
	case b&0x80 == 0:
		return int(b), nil
	case b&0xC0 == 0x80:
		extra, n = 1, int(b&0x3F)
	case b&0xE0 == 0xC0:
		extra, n = 2, int(b&0x1F)
	case b&0xF0 == 0xE0:
		extra, n = 3, int(b&0x0F)
	case b&0xF8 == 0xF0:
		extra, n = 4, 0
	default:
		return 0, fmt.Errorf("%w: 0x%02X", ErrBadPrefix, b)
	}
	rest := make([]byte, extra)
	if _, err := io.ReadFull(r, rest); err != nil {
		return 0, ErrTruncated
	}
	for _, c := range rest {
		n = n<<8 | int(c)
	}
	return n, nil
}

// Read reads one framed word and returns its raw payload.
func Read(r io.Reader) ([]byte, error) {
	n, err := ReadLength(r)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return []byte{}, nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, ErrTruncated
	}
	return buf, nil
}

// ReadString reads one word and decodes it as text.
func ReadString(r io.Reader) (string, error) {
	b, err := Read(r)
	if err != nil {
		return "", err
	}
	return DecodeText(b), nil
}

// DecodeText decodes ASCII payloads directly and falls back to UTF-8 with
// U+FFFD substituted for undecodable bytes.
func DecodeText(b []byte) string {
	if isASCII(string(b)) {
		return string(b)
	}
	if utf8.Valid(b) {
		return string(b)
	}
	out, err := xunicode.UTF8.NewDecoder().Bytes(b)
	if err != nil {
		return strings.ToValidUTF8(string(b), "\uFFFD")
	}
	return string(out)
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > unicode.MaxASCII {
			return false
		}
	}
	return true
}
