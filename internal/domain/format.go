package domain

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"
)

// StaleAfter is how long a feed may go without a successful fetch before it is flagged stale.
const StaleAfter = 10 * time.Minute

// FormatAcres renders acreage as "12.3K acres" at or above a thousand, whole acres otherwise.
func FormatAcres(acres float64) string {
	if acres >= 1000 {
		return fmt.Sprintf("%.1fK acres", acres/1000)
	}
	return fmt.Sprintf("%d acres", int64(math.Round(acres)))
}

// TimeAgo renders the coarse age of t relative to the domain clock.
// The zero time renders as an empty string.
func TimeAgo(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	mins := int(Now().Sub(t) / time.Minute)
	switch {
	case mins < 1:
		return "just now"
	case mins < 60:
		return strconv.Itoa(mins) + "m ago"
	case mins < 60*24:
		return strconv.Itoa(mins/60) + "h ago"
	default:
		return strconv.Itoa(mins/(60*24)) + "d ago"
	}
}

// TimeUntil renders the time remaining until t, or "expired" once it has passed.
func TimeUntil(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	d := t.Sub(Now())
	switch {
	case d < 0:
		return "expired"
	case d < time.Hour:
		return strconv.Itoa(int(d/time.Minute)) + "m"
	case d < 24*time.Hour:
		return strconv.Itoa(int(d/time.Hour)) + "h"
	default:
		return strconv.Itoa(int(d/(24*time.Hour))) + "d"
	}
}

// FeedAge renders how long ago a feed was last fetched.
func FeedAge(fetchedAt time.Time) string {
	if fetchedAt.IsZero() {
		return "never"
	}
	secs := int(Now().Sub(fetchedAt) / time.Second)
	if secs < 60 {
		return strconv.Itoa(secs) + "s ago"
	}
	return strconv.Itoa(secs/60) + "m ago"
}

// IsFeedStale reports whether a feed has never been fetched or was fetched
// more than StaleAfter ago.
func IsFeedStale(fetchedAt time.Time) bool {
	if fetchedAt.IsZero() {
		return true
	}
	return Now().Sub(fetchedAt) > StaleAfter
}

// ContainmentKind grades a containment percentage for display.
func ContainmentKind(pct *float64) string {
	switch {
	case pct == nil || *pct < 25:
		return "danger"
	case *pct < 75:
		return "warning"
	default:
		return "success"
	}
}

var incidentIcons = map[string]string{
	"Fire":             "fire",
	"Hurricane":        "hurricane",
	"Tornado":          "tornado",
	"Flood":            "effects-rain",
	"Severe Storm":     "lightning-bolt",
	"Severe Storm(s)":  "lightning-bolt",
	"Earthquake":       "pin-tear",
	"Snowstorm":        "snowflake",
	"Snow":             "snowflake",
	"Severe Ice Storm": "snowflake",
	"Typhoon":          "hurricane",
	"Coastal Storm":    "wave",
	"Mud/Landslide":    "mountain",
	"Drought":          "brightness",
	"Biological":       "biohazard",
}

// IncidentIcon maps a declaration incident type to a display icon name.
func IncidentIcon(incidentType string) string {
	if icon, ok := incidentIcons[incidentType]; ok {
		return icon
	}
	return "exclamation-mark-circle"
}

// SeverityKind maps a weather severity to a display kind.
func SeverityKind(s Severity) string {
	switch s {
	case SeverityExtreme:
		return "danger"
	case SeveritySevere:
		return "warning"
	case SeverityModerate:
		return "brand"
	default:
		return "neutral"
	}
}

// Counts are the filtered record counts shown under the status banner.
type Counts struct {
	Declarations int `json:"declarations"`
	Weather      int `json:"weather"`
	Wildfires    int `json:"wildfires"`
	Quakes       int `json:"quakes"`
}

// BannerText is the human-readable status summary.
type BannerText struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

// Banner renders the status title for a level and scope, and the monitoring
// line for the filtered counts. needsAction is the number of surfaced items.
func Banner(level StatusLevel, scope Scope, needsAction int, c Counts) BannerText {
	where := "nationally"
	if !scope.Empty() {
		where = "in " + scope.String()
	}

	var title string
	switch level {
	case LevelSuccess:
		title = "All clear: no critical events " + where
	case LevelWarning:
		count := "active"
		if needsAction > 0 {
			count = strconv.Itoa(needsAction)
		}
		title = fmt.Sprintf("Active watches: %s advisory items %s", count, where)
	default:
		title = "Action needed: critical events require attention"
		if !scope.Empty() {
			title += " " + where
		}
	}

	return BannerText{
		Title: title,
		Message: fmt.Sprintf("Monitoring %d operations · %d weather alerts · %d active fires · %d significant quakes",
			c.Declarations, c.Weather, c.Wildfires, c.Quakes),
	}
}

// ErrInvalidTheme is returned for a theme other than light or dark.
var ErrInvalidTheme = errors.New("invalid theme")

// Theme is the consumer's display preference.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// ParseTheme validates a theme name.
func ParseTheme(s string) (Theme, error) {
	switch Theme(s) {
	case ThemeLight, ThemeDark:
		return Theme(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidTheme, s)
	}
}
