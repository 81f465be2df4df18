package infer

import (
	"os"
	"os/user"
	"strings"
)

// placeholderUser and placeholderHome are the stable substitutions applied
// before any prompt leaves the local machine.
const (
	placeholderUser = "[USER]"
	placeholderHome = "[HOME]"
)

// Anonymizer strips user-identifying strings from a prompt before it is
// handed to the remote leg. It is a pure string-replace pass: no LLM call,
// no I/O beyond the one-time OS lookups at construction.
type Anonymizer struct {
	username         string
	homeDir          string
	sensitivePatterns []string
}

// NewAnonymizer resolves the current OS username and home directory once
// and combines them with any additionally configured sensitive path
// patterns (e.g. a project path the user marked as private).
func NewAnonymizer(sensitivePatterns []string) *Anonymizer {
	a := &Anonymizer{sensitivePatterns: sensitivePatterns}

	if u, err := user.Current(); err == nil && u.Username != "" {
		a.username = u.Username
	}
	if home, err := os.UserHomeDir(); err == nil {
		a.homeDir = home
	}

	return a
}

// Anonymize replaces the current user's name, home directory, and any
// configured sensitive patterns with stable placeholders. Longer strings
// are replaced first so a sensitive pattern that contains the home
// directory as a substring doesn't get partially masked.
func (a *Anonymizer) Anonymize(prompt string) string {
	replacements := make([]string, 0, 2+len(a.sensitivePatterns))
	if a.homeDir != "" {
		replacements = append(replacements, a.homeDir)
	}
	for _, p := range a.sensitivePatterns {
		if p != "" {
			replacements = append(replacements, p)
		}
	}

	// Home dir and sensitive patterns first (they're usually paths and may
	// be longer/more specific than the bare username).
	out := prompt
	for _, r := range replacements {
		out = strings.ReplaceAll(out, r, placeholderHome)
	}
	if a.username != "" {
		out = replaceWord(out, a.username, placeholderUser)
	}
	return out
}

// replaceWord replaces whole-word occurrences of old with new, avoiding
// mangling a username that happens to be a substring of an unrelated word.
func replaceWord(s, old, new string) string {
	if old == "" {
		return s
	}
	var b strings.Builder
	for {
		idx := strings.Index(s, old)
		if idx == -1 {
			b.WriteString(s)
			break
		}
		before := idx == 0 || !isWordByte(s[idx-1])
		afterIdx := idx + len(old)
		after := afterIdx >= len(s) || !isWordByte(s[afterIdx])
		b.WriteString(s[:idx])
		if before && after {
			b.WriteString(new)
		} else {
			b.WriteString(old)
		}
		s = s[afterIdx:]
	}
	return b.String()
}

func isWordByte(c byte) bool {
	return c == '_' ||
		(c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9')
}
