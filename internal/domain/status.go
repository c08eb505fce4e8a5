package domain

import (
	"fmt"
	"strings"
	"time"
)

// StatusLevel is the single aggregate signal derived from all feeds.
type StatusLevel string

const (
	LevelSuccess StatusLevel = "success"
	LevelWarning StatusLevel = "warning"
	LevelDanger  StatusLevel = "danger"
)

// Tier is the severity of one needs-action item.
type Tier string

const (
	TierDanger  Tier = "danger"
	TierWarning Tier = "warning"
)

// MaxNeedsAction caps the needs-action list.
const MaxNeedsAction = 3

// NeedsActionItem is a ranked highlight produced by one synthesis rule.
type NeedsActionItem struct {
	Source    FeedKind   `json:"source"`
	Icon      string     `json:"icon"`
	Headline  string     `json:"headline"`
	Detail    string     `json:"detail"`
	Severity  Tier       `json:"severity"`
	Time      *time.Time `json:"time,omitempty"`
	ChipLabel string     `json:"chip_label"`
	ChipKind  string     `json:"chip_kind"`
}

// SynthesisInput is the filtered view of every feed at one instant.
type SynthesisInput struct {
	Weather      []WeatherAlert
	Declarations []Declaration
	Wildfires    []Wildfire
	Quakes       []Quake
	Now          time.Time
}

// Assessment is the output of one synthesis run.
type Assessment struct {
	Level       StatusLevel       `json:"status_level"`
	NeedsAction []NeedsActionItem `json:"needs_action"`
}

// Synthesize applies the ordered needs-action rules and derives the status
// level. It is a pure function of its inputs.
func Synthesize(in SynthesisInput, p Policy) Assessment {
	var items []NeedsActionItem

	if item, ok := extremeWeatherItem(in.Weather); ok {
		items = append(items, item)
	}
	if item, ok := newDeclarationItem(in.Declarations, in.Now.Add(-p.NeedsActionLookback)); ok {
		items = append(items, item)
	}
	if item, ok := bigQuakeItem(in.Quakes, p.QuakeActionMagnitude); ok {
		items = append(items, item)
	}
	if item, ok := bigFireItem(in.Wildfires, p); ok {
		items = append(items, item)
	}

	level := LevelSuccess
	switch {
	case hasDanger(items):
		level = LevelDanger
	case len(items) > 0:
		level = LevelWarning
	case hasSevereWeather(in.Weather) || hasBigFire(in.Wildfires, p.FireAcresThreshold):
		level = LevelWarning
	}

	if len(items) > MaxNeedsAction {
		items = items[:MaxNeedsAction]
	}
	if items == nil {
		items = []NeedsActionItem{}
	}
	return Assessment{Level: level, NeedsAction: items}
}

func extremeWeatherItem(alerts []WeatherAlert) (NeedsActionItem, bool) {
	var first *WeatherAlert
	var areas []string
	seen := map[string]struct{}{}
	for i := range alerts {
		if alerts[i].Severity != SeverityExtreme {
			continue
		}
		if first == nil {
			first = &alerts[i]
		}
		area := strings.TrimSpace(strings.SplitN(alerts[i].AreaDesc, ";", 2)[0])
		if area == "" {
			continue
		}
		if _, dup := seen[area]; dup {
			continue
		}
		seen[area] = struct{}{}
		areas = append(areas, area)
	}
	if first == nil {
		return NeedsActionItem{}, false
	}
	if len(areas) > 3 {
		areas = areas[:3]
	}
	return NeedsActionItem{
		Source:    FeedWeather,
		Icon:      "exclamation-mark-triangle",
		Headline:  "Extreme weather: " + first.Event,
		Detail:    strings.Join(areas, ", "),
		Severity:  TierDanger,
		Time:      first.Effective,
		ChipLabel: "Extreme",
		ChipKind:  SeverityKind(SeverityExtreme),
	}, true
}

func newDeclarationItem(decls []Declaration, cutoff time.Time) (NeedsActionItem, bool) {
	for _, d := range decls {
		if !d.DeclarationDate.After(cutoff) {
			continue
		}
		declared := d.DeclarationDate
		return NeedsActionItem{
			Source:    FeedDeclarations,
			Icon:      IncidentIcon(d.IncidentType),
			Headline:  "New FEMA declaration: " + d.Title,
			Detail:    d.State + " - " + d.IncidentType,
			Severity:  TierDanger,
			Time:      &declared,
			ChipLabel: d.IncidentType,
			ChipKind:  "brand",
		}, true
	}
	return NeedsActionItem{}, false
}

func bigQuakeItem(quakes []Quake, actionMagnitude float64) (NeedsActionItem, bool) {
	for _, q := range quakes {
		if q.Magnitude < actionMagnitude && q.Alert != PagerRed && q.Alert != PagerOrange {
			continue
		}
		item := NeedsActionItem{
			Source:    FeedSeismic,
			Icon:      "pin-tear",
			Headline:  fmt.Sprintf("M%.1f earthquake - %s", q.Magnitude, q.Place),
			Severity:  TierWarning,
			ChipLabel: fmt.Sprintf("M%.1f", q.Magnitude),
			ChipKind:  "warning",
		}
		if !q.Time.IsZero() {
			at := q.Time
			item.Time = &at
		}
		if q.Alert != PagerNone {
			item.Detail = "PAGER: " + string(q.Alert)
		}
		if q.Alert == PagerRed {
			item.Severity = TierDanger
		}
		if q.Magnitude >= 6 {
			item.ChipKind = "danger"
		}
		return item, true
	}
	return NeedsActionItem{}, false
}

func bigFireItem(fires []Wildfire, p Policy) (NeedsActionItem, bool) {
	for _, f := range fires {
		if f.Acres() < p.FireAcresThreshold {
			continue
		}
		if f.PercentContained != nil && *f.PercentContained >= p.FireContainmentThreshold {
			continue
		}
		var pct float64
		if f.PercentContained != nil {
			pct = *f.PercentContained
		}
		state := f.State
		if state == "" {
			state = "Unknown"
		}
		return NeedsActionItem{
			Source:    FeedWildfire,
			Icon:      "fire",
			Headline:  f.Name + " - " + FormatAcres(f.Acres()),
			Detail:    fmt.Sprintf("%s - %g%% contained", state, pct),
			Severity:  TierWarning,
			Time:      f.DiscoveredAt,
			ChipLabel: fmt.Sprintf("%g%%", pct),
			ChipKind:  ContainmentKind(f.PercentContained),
		}, true
	}
	return NeedsActionItem{}, false
}

func hasDanger(items []NeedsActionItem) bool {
	for _, it := range items {
		if it.Severity == TierDanger {
			return true
		}
	}
	return false
}

func hasSevereWeather(alerts []WeatherAlert) bool {
	for _, a := range alerts {
		if a.Severity == SeveritySevere {
			return true
		}
	}
	return false
}

func hasBigFire(fires []Wildfire, threshold float64) bool {
	for _, f := range fires {
		if f.Acres() >= threshold {
			return true
		}
	}
	return false
}
