package domain

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MatchMode selects how full region names are located inside free text.
type MatchMode string

const (
	// MatchSubstring accepts the region name anywhere in the text, ignoring case.
	MatchSubstring MatchMode = "substring"
	// MatchWord additionally requires the name to sit on word boundaries, so
	// "Kansas" no longer matches inside "Arkansas".
	MatchWord MatchMode = "word"
)

// ParseMatchMode validates a configured match mode.
func ParseMatchMode(s string) (MatchMode, error) {
	switch MatchMode(s) {
	case MatchSubstring, MatchWord:
		return MatchMode(s), nil
	default:
		return "", fmt.Errorf("invalid scope match mode %q", s)
	}
}

// Matcher decides whether a record falls inside a Scope. Each feed encodes
// location differently, so each has its own strategy.
type Matcher struct {
	Regions map[string]string
	Mode    MatchMode
}

// DefaultMatcher uses the built-in region table with substring matching.
func DefaultMatcher() Matcher {
	return Matcher{Regions: Regions, Mode: MatchSubstring}
}

// Declaration matches on exact equality of the postal code.
func (m Matcher) Declaration(d Declaration, s Scope) bool {
	if s.Empty() {
		return true
	}
	if d.State == "" {
		return false
	}
	for _, code := range s.codes {
		if d.State == code {
			return true
		}
	}
	return false
}

// Weather matches a region's full name inside the semicolon-delimited area description.
func (m Matcher) Weather(a WeatherAlert, s Scope) bool {
	if s.Empty() {
		return true
	}
	return m.nameIn(a.AreaDesc, s)
}

// Wildfire matches a region's full name inside the point-of-origin state field.
func (m Matcher) Wildfire(f Wildfire, s Scope) bool {
	if s.Empty() {
		return true
	}
	return m.nameIn(f.State, s)
}

// Quake matches a trailing ", <code>" in the place string, or a region's full
// name anywhere in it ("Off the coast of Oregon").
func (m Matcher) Quake(q Quake, s Scope) bool {
	if s.Empty() {
		return true
	}
	if q.Place == "" {
		return false
	}
	for _, code := range s.codes {
		if strings.HasSuffix(q.Place, ", "+code) {
			return true
		}
	}
	return m.nameIn(q.Place, s)
}

func (m Matcher) nameIn(text string, s Scope) bool {
	if text == "" {
		return false
	}
	upper := strings.ToUpper(text)
	for _, code := range s.codes {
		name, ok := m.Regions[code]
		if !ok || name == "" {
			continue
		}
		if m.contains(upper, strings.ToUpper(name)) {
			return true
		}
	}
	return false
}

func (m Matcher) contains(text, name string) bool {
	if m.Mode != MatchWord {
		return strings.Contains(text, name)
	}
	for start := 0; start <= len(text)-len(name); {
		i := strings.Index(text[start:], name)
		if i < 0 {
			return false
		}
		i += start
		end := i + len(name)
		if boundaryBefore(text, i) && boundaryAfter(text, end) {
			return true
		}
		start = i + 1
	}
	return false
}

// boundaryBefore reports whether the rune ending at byte offset i is absent
// or not a letter.
func boundaryBefore(text string, i int) bool {
	if i <= 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(text[:i])
	return !unicode.IsLetter(r)
}

// boundaryAfter reports whether the rune starting at byte offset i is absent
// or not a letter.
func boundaryAfter(text string, i int) bool {
	if i >= len(text) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[i:])
	return !unicode.IsLetter(r)
}
