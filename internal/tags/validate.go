package tags

import (
	"errors"
	"strconv"
	"strings"
)

// ErrInvalidTagName is returned for names that do not follow Logix symbol
// syntax.
var ErrInvalidTagName = errors.New("invalid tag name")

const (
	maxIdentLength = 40
	maxBitIndex    = 31
	programPrefix  = "Program:"
)

// IsValidTagName reports whether name is a well formed tag address:
//
//	[Program:<prog>.]<tag>[<i>[,<j>[,<k>]]]{.<member>[<i>]}[.<bit>]
//
// Module addresses such as Local:1:I.Data or Rack:O.Data[1].5 are accepted
// as the base tag.
func IsValidTagName(name string) bool {
	if name == "" {
		return false
	}
	parts := strings.Split(name, ".")
	base, members := parts[0], parts[1:]

	switch {
	case strings.HasPrefix(base, programPrefix):
		if !isIdent(base[len(programPrefix):]) || len(members) == 0 {
			return false
		}
		base, members = members[0], members[1:]
		if !isIndexed(base, 3) {
			return false
		}
	case strings.Contains(base, ":"):
		if !isModuleAddress(base) {
			return false
		}
	default:
		if !isIndexed(base, 3) {
			return false
		}
	}

	for i, m := range members {
		if isDigits(m) {
			if i != len(members)-1 {
				return false
			}
			bit, err := strconv.Atoi(m)
			return err == nil && bit <= maxBitIndex
		}
		if !isIndexed(m, 1) {
			return false
		}
	}
	return true
}

// isModuleAddress matches <name>:[<slot>:]<I|O|C>.
func isModuleAddress(s string) bool {
	fields := strings.Split(s, ":")
	if len(fields) < 2 || len(fields) > 3 || !isIdent(fields[0]) {
		return false
	}
	if len(fields) == 3 && !isDigits(fields[1]) {
		return false
	}
	switch fields[len(fields)-1] {
	case "I", "O", "C":
		return true
	}
	return false
}

// isIndexed matches an identifier with an optional bracketed list of at most
// maxDims non-negative indices.
func isIndexed(s string, maxDims int) bool {
	open := strings.IndexByte(s, '[')
	if open < 0 {
		return isIdent(s)
	}
	if !isIdent(s[:open]) || !strings.HasSuffix(s, "]") {
		return false
	}
	dims := strings.Split(s[open+1:len(s)-1], ",")
	if len(dims) > maxDims {
		return false
	}
	for _, d := range dims {
		if !isDigits(d) {
			return false
		}
	}
	return true
}

func isIdent(s string) bool {
	if s == "" || len(s) > maxIdentLength {
		return false
	}
	if strings.Contains(s, "__") || strings.HasSuffix(s, "_") {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
