package domain

import (
	"encoding/json"
	"time"
)

// FeedKind identifies one upstream data source.
type FeedKind string

const (
	FeedWeather      FeedKind = "weather"
	FeedDeclarations FeedKind = "declarations"
	FeedWildfire     FeedKind = "wildfire"
	FeedSeismic      FeedKind = "seismic"
)

// FeedKinds lists every feed in display order.
var FeedKinds = []FeedKind{FeedWeather, FeedDeclarations, FeedWildfire, FeedSeismic}

// ParseFeedKind returns the FeedKind named by s.
func ParseFeedKind(s string) (FeedKind, bool) {
	for _, k := range FeedKinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

// FeedStatus reflects the outcome of the most recent fetch attempt.
type FeedStatus string

const (
	StatusIdle    FeedStatus = "idle"
	StatusLoading FeedStatus = "loading"
	StatusOK      FeedStatus = "ok"
	StatusError   FeedStatus = "error"
)

// Severity is the NWS CAP severity of a weather alert.
type Severity string

const (
	SeverityExtreme  Severity = "Extreme"
	SeveritySevere   Severity = "Severe"
	SeverityModerate Severity = "Moderate"
	SeverityMinor    Severity = "Minor"
	SeverityUnknown  Severity = "Unknown"
)

// ParseSeverity maps the upstream value to a Severity, defaulting to Unknown.
func ParseSeverity(s string) Severity {
	switch Severity(s) {
	case SeverityExtreme, SeveritySevere, SeverityModerate, SeverityMinor:
		return Severity(s)
	default:
		return SeverityUnknown
	}
}

// PagerAlert is the USGS PAGER impact alert level. Empty means no alert.
type PagerAlert string

const (
	PagerNone   PagerAlert = ""
	PagerGreen  PagerAlert = "green"
	PagerYellow PagerAlert = "yellow"
	PagerOrange PagerAlert = "orange"
	PagerRed    PagerAlert = "red"
)

// Coordinates is a WGS-84 longitude/latitude pair.
type Coordinates struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// WeatherAlert is an NWS alert with its properties promoted to the top level.
type WeatherAlert struct {
	ID          string          `json:"id"`
	Event       string          `json:"event"`
	Severity    Severity        `json:"severity"`
	Urgency     string          `json:"urgency,omitempty"`
	Certainty   string          `json:"certainty,omitempty"`
	Headline    string          `json:"headline,omitempty"`
	AreaDesc    string          `json:"area_desc,omitempty"`
	SenderName  string          `json:"sender_name,omitempty"`
	Effective   *time.Time      `json:"effective,omitempty"`
	Expires     *time.Time      `json:"expires,omitempty"`
	Geometry    json.RawMessage `json:"geometry,omitempty"`
	Description string          `json:"description,omitempty"`
}

// Declaration is a FEMA disaster declaration summary, one per disaster number.
type Declaration struct {
	DisasterNumber  int        `json:"disaster_number"`
	State           string     `json:"state"`
	DeclarationType string     `json:"declaration_type,omitempty"`
	IncidentType    string     `json:"incident_type"`
	Title           string     `json:"title"`
	DesignatedArea  string     `json:"designated_area,omitempty"`
	DeclarationDate time.Time  `json:"declaration_date"`
	IncidentBegin   *time.Time `json:"incident_begin,omitempty"`
	IncidentEnd     *time.Time `json:"incident_end,omitempty"`
}

// Wildfire is a NIFC incident projected to the attributes the engine uses.
// Nil numeric fields were null upstream.
type Wildfire struct {
	Name                string       `json:"name"`
	DailyAcres          *float64     `json:"daily_acres,omitempty"`
	CalculatedAcres     *float64     `json:"calculated_acres,omitempty"`
	PercentContained    *float64     `json:"percent_contained,omitempty"`
	DiscoveredAt        *time.Time   `json:"discovered_at,omitempty"`
	Cause               string       `json:"cause,omitempty"`
	State               string       `json:"state,omitempty"`
	County              string       `json:"county,omitempty"`
	GACC                string       `json:"gacc,omitempty"`
	Personnel           *int         `json:"personnel,omitempty"`
	Complexity          string       `json:"complexity,omitempty"`
	ResidencesDestroyed *int         `json:"residences_destroyed,omitempty"`
	Injuries            *int         `json:"injuries,omitempty"`
	Fatalities          *int         `json:"fatalities,omitempty"`
	ModifiedAt          *time.Time   `json:"modified_at,omitempty"`
	Coordinates         *Coordinates `json:"coordinates,omitempty"`
}

// Acres returns daily acres when reported and positive, else calculated
// acres, else zero.
func (f Wildfire) Acres() float64 {
	if f.DailyAcres != nil && *f.DailyAcres > 0 {
		return *f.DailyAcres
	}
	if f.CalculatedAcres != nil && *f.CalculatedAcres > 0 {
		return *f.CalculatedAcres
	}
	return 0
}

// Quake is a USGS seismic event.
type Quake struct {
	ID          string       `json:"id"`
	Magnitude   float64      `json:"magnitude"`
	Place       string       `json:"place"`
	Time        time.Time    `json:"time"`
	Updated     *time.Time   `json:"updated,omitempty"`
	Depth       *float64     `json:"depth,omitempty"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
	Alert       PagerAlert   `json:"alert,omitempty"`
	Tsunami     bool         `json:"tsunami,omitempty"`
	Title       string       `json:"title,omitempty"`
	URL         string       `json:"url,omitempty"`
}
