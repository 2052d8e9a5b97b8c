package protocol

import (
	"fmt"
	"strings"
)

// ValidateCommand checks that words form a well-shaped command sentence:
// a path-like command word followed by attribute (=), query (?) or api
// (.tag=) words.
func ValidateCommand(words []string) error {
	if len(words) == 0 {
		return fmt.Errorf("%w: empty sentence", ErrInvalidCommand)
	}
	cmd := words[0]
	if !strings.HasPrefix(cmd, "/") || strings.ContainsAny(cmd, " \t\n") {
		return fmt.Errorf("%w: %q", ErrInvalidCommand, cmd)
	}
	for i, w := range words[1:] {
		switch {
		case strings.HasPrefix(w, "="):
			if _, _, ok := ParseAttr(w); !ok {
				return fmt.Errorf("%w: word[%d]=%q", ErrInvalidAttribute, i+1, w)
			}
		case strings.HasPrefix(w, "?"), strings.HasPrefix(w, ".tag="):
		default:
			return fmt.Errorf("%w: word[%d]=%q", ErrInvalidAttribute, i+1, w)
		}
	}
	return nil
}
