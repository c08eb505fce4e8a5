package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrUnknownRegion is returned when a scope names a code missing from the region table.
var ErrUnknownRegion = errors.New("unknown region code")

// Regions maps postal codes to the full names used in free-text feed locations.
var Regions = map[string]string{
	"AL": "Alabama", "AK": "Alaska", "AZ": "Arizona", "AR": "Arkansas", "CA": "California",
	"CO": "Colorado", "CT": "Connecticut", "DE": "Delaware", "FL": "Florida", "GA": "Georgia",
	"HI": "Hawaii", "ID": "Idaho", "IL": "Illinois", "IN": "Indiana", "IA": "Iowa",
	"KS": "Kansas", "KY": "Kentucky", "LA": "Louisiana", "ME": "Maine", "MD": "Maryland",
	"MA": "Massachusetts", "MI": "Michigan", "MN": "Minnesota", "MS": "Mississippi", "MO": "Missouri",
	"MT": "Montana", "NE": "Nebraska", "NV": "Nevada", "NH": "New Hampshire", "NJ": "New Jersey",
	"NM": "New Mexico", "NY": "New York", "NC": "North Carolina", "ND": "North Dakota", "OH": "Ohio",
	"OK": "Oklahoma", "OR": "Oregon", "PA": "Pennsylvania", "RI": "Rhode Island", "SC": "South Carolina",
	"SD": "South Dakota", "TN": "Tennessee", "TX": "Texas", "UT": "Utah", "VT": "Vermont",
	"VA": "Virginia", "WA": "Washington", "WV": "West Virginia", "WI": "Wisconsin", "WY": "Wyoming",
	"DC": "District of Columbia", "PR": "Puerto Rico", "VI": "US Virgin Islands",
	"GU": "Guam", "AS": "American Samoa", "MP": "Northern Mariana Islands",
}

// Scope is the set of region codes selected by the consumer. The zero value
// is the nationwide scope and matches every record.
type Scope struct {
	codes []string
}

// NewScope normalizes codes to a sorted, de-duplicated, upper-case set.
// Blank entries are dropped. Codes are not checked against Regions.
func NewScope(codes ...string) Scope {
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c == "" {
			continue
		}
		out = append(out, c)
	}
	slices.Sort(out)
	return Scope{codes: slices.Compact(out)}
}

// ParseScope builds a Scope and rejects codes missing from the region table.
func ParseScope(codes []string) (Scope, error) {
	s := NewScope(codes...)
	for _, c := range s.codes {
		if _, ok := Regions[c]; !ok {
			return Scope{}, fmt.Errorf("%w: %q", ErrUnknownRegion, c)
		}
	}
	return s, nil
}

// Codes returns a copy of the selected codes.
func (s Scope) Codes() []string {
	return slices.Clone(s.codes)
}

// Empty reports whether the scope is nationwide.
func (s Scope) Empty() bool {
	return len(s.codes) == 0
}

// Equal reports whether both scopes select the same codes.
func (s Scope) Equal(o Scope) bool {
	return slices.Equal(s.codes, o.codes)
}

// String renders the scope for display, "National" when empty.
func (s Scope) String() string {
	if s.Empty() {
		return "National"
	}
	return strings.Join(s.codes, ", ")
}

// MarshalJSON encodes the scope as an array of codes, never null.
func (s Scope) MarshalJSON() ([]byte, error) {
	if s.codes == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.codes)
}

// UnmarshalJSON decodes an array of codes and normalizes it.
func (s *Scope) UnmarshalJSON(data []byte) error {
	var codes []string
	if err := json.Unmarshal(data, &codes); err != nil {
		return fmt.Errorf("decode scope: %w", err)
	}
	*s = NewScope(codes...)
	return nil
}
