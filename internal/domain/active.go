package domain

import "time"

// Policy holds the thresholds used by activity predicates and status synthesis.
type Policy struct {
	QuakeMinMagnitude        float64
	QuakeActionMagnitude     float64
	FireAcresThreshold       float64
	FireContainmentThreshold float64
	NeedsActionLookback      time.Duration
}

// DefaultPolicy returns the operational defaults.
func DefaultPolicy() Policy {
	return Policy{
		QuakeMinMagnitude:        4.0,
		QuakeActionMagnitude:     5.0,
		FireAcresThreshold:       10000,
		FireContainmentThreshold: 50,
		NeedsActionLookback:      48 * time.Hour,
	}
}

// WeatherActive is always true; the upstream endpoint only returns active alerts.
func WeatherActive(WeatherAlert) bool {
	return true
}

// DeclarationActive reports whether the incident has no end date or ends after now.
func DeclarationActive(d Declaration, now time.Time) bool {
	if d.IncidentEnd == nil {
		return true
	}
	return d.IncidentEnd.After(now)
}

// WildfireActive reports whether a fire is uncontained and still being worked:
// containment unknown or below 100, and positive daily acreage or assigned personnel.
func WildfireActive(f Wildfire) bool {
	if f.PercentContained != nil && *f.PercentContained >= 100 {
		return false
	}
	daily := f.DailyAcres != nil && *f.DailyAcres > 0
	staffed := f.Personnel != nil && *f.Personnel > 0
	return daily || staffed
}

// QuakeSignificant reports whether a quake meets the minimum magnitude or
// carries a yellow, orange or red PAGER alert.
func QuakeSignificant(q Quake, minMagnitude float64) bool {
	if q.Magnitude >= minMagnitude {
		return true
	}
	switch q.Alert {
	case PagerYellow, PagerOrange, PagerRed:
		return true
	}
	return false
}
