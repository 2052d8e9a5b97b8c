package protocol

import "strings"

// Attr builds an =key=value attribute word.
func Attr(key, value string) string {
	return "=" + key + "=" + value
}

// Query builds a ?key=value filter word.
func Query(key, value string) string {
	return "?" + key + "=" + value
}

// Proplist restricts the attributes returned by a print command.
func Proplist(keys ...string) string {
	return Attr(".proplist", strings.Join(keys, ","))
}

// ID addresses an existing object by its device-assigned identifier.
func ID(id string) string {
	return Attr(".id", id)
}

// ParseAttr splits an =key=value word. The value may itself contain '='.
func ParseAttr(w string) (string, string, bool) {
	if len(w) < 2 || w[0] != '=' {
		return "", "", false
	}
	idx := strings.IndexByte(w[1:], '=')
	if idx <= 0 {
		return "", "", false
	}
	return w[1 : idx+1], w[idx+2:], true
}

// ParseAttrs collects every attribute word; later duplicates win.
func ParseAttrs(words []string) Attrs {
	attrs := make(Attrs, len(words))
	for _, w := range words {
		if k, v, ok := ParseAttr(w); ok {
			attrs[k] = v
		}
	}
	return attrs
}
