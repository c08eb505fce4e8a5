package domain

import (
	"slices"
	"time"
)

// AlertGroup is one event type among the Extreme and Severe weather alerts.
type AlertGroup struct {
	Event         string
	Severity      Severity
	Kind          string
	Count         int
	SoonestExpiry *time.Time
}

// GroupSevereAlerts groups Extreme and Severe alerts by event, most frequent
// first. Ties keep first-appearance order. A group's severity is that of its
// first alert; SoonestExpiry is nil when no alert in the group has an expiry.
func GroupSevereAlerts(alerts []WeatherAlert) []AlertGroup {
	var groups []AlertGroup
	index := map[string]int{}
	for _, a := range alerts {
		if a.Severity != SeverityExtreme && a.Severity != SeveritySevere {
			continue
		}
		event := a.Event
		if event == "" {
			event = "Unknown"
		}
		i, ok := index[event]
		if !ok {
			i = len(groups)
			index[event] = i
			groups = append(groups, AlertGroup{Event: event, Severity: a.Severity, Kind: SeverityKind(a.Severity)})
		}
		g := &groups[i]
		g.Count++
		if a.Expires != nil && (g.SoonestExpiry == nil || a.Expires.Before(*g.SoonestExpiry)) {
			exp := *a.Expires
			g.SoonestExpiry = &exp
		}
	}
	slices.SortStableFunc(groups, func(a, b AlertGroup) int {
		return b.Count - a.Count
	})
	return groups
}

// LargestWildfires returns up to n fires ordered by acreage, largest first.
func LargestWildfires(fires []Wildfire, n int) []Wildfire {
	out := slices.Clone(fires)
	slices.SortStableFunc(out, func(a, b Wildfire) int {
		return cmpDesc(a.Acres(), b.Acres())
	})
	return out[:min(n, len(out))]
}

// StrongestQuakes returns up to n quakes ordered by magnitude, strongest first.
func StrongestQuakes(quakes []Quake, n int) []Quake {
	out := slices.Clone(quakes)
	slices.SortStableFunc(out, func(a, b Quake) int {
		return cmpDesc(a.Magnitude, b.Magnitude)
	})
	return out[:min(n, len(out))]
}

func cmpDesc(a, b float64) int {
	switch {
	case a > b:
		return -1
	case a < b:
		return 1
	default:
		return 0
	}
}
