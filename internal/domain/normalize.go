package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Upstream response shapes. Only the fields the engine uses are declared.

type nwsResponse struct {
	Features []nwsFeature `json:"features"`
}

type nwsFeature struct {
	ID         string          `json:"id"`
	Geometry   json.RawMessage `json:"geometry"`
	Properties nwsProperties   `json:"properties"`
}

type nwsProperties struct {
	ID          string     `json:"id"`
	Event       string     `json:"event"`
	Severity    string     `json:"severity"`
	Urgency     string     `json:"urgency"`
	Certainty   string     `json:"certainty"`
	Headline    string     `json:"headline"`
	AreaDesc    string     `json:"areaDesc"`
	SenderName  string     `json:"senderName"`
	Effective   *time.Time `json:"effective"`
	Expires     *time.Time `json:"expires"`
	Description string     `json:"description"`
}

type femaResponse struct {
	Summaries []femaSummary `json:"DisasterDeclarationsSummaries"`
}

type femaSummary struct {
	DisasterNumber    int        `json:"disasterNumber"`
	State             string     `json:"state"`
	DeclarationType   string     `json:"declarationType"`
	DeclarationDate   time.Time  `json:"declarationDate"`
	IncidentType      string     `json:"incidentType"`
	DeclarationTitle  string     `json:"declarationTitle"`
	DesignatedArea    string     `json:"designatedArea"`
	IncidentBeginDate *time.Time `json:"incidentBeginDate"`
	IncidentEndDate   *time.Time `json:"incidentEndDate"`
}

type arcgisResponse struct {
	Features []arcgisFeature `json:"features"`
	Error    *arcgisError    `json:"error"`
}

type arcgisError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type arcgisFeature struct {
	Attributes nifcAttributes `json:"attributes"`
	Geometry   *arcgisPoint   `json:"geometry"`
}

type arcgisPoint struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
}

type nifcAttributes struct {
	IncidentName           string   `json:"IncidentName"`
	DailyAcres             *float64 `json:"DailyAcres"`
	CalculatedAcres        *float64 `json:"CalculatedAcres"`
	PercentContained       *float64 `json:"PercentContained"`
	FireDiscoveryDateTime  *int64   `json:"FireDiscoveryDateTime"`
	FireCause              string   `json:"FireCause"`
	POOState               string   `json:"POOState"`
	POOCounty              string   `json:"POOCounty"`
	GACC                   string   `json:"GACC"`
	TotalIncidentPersonnel *int     `json:"TotalIncidentPersonnel"`
	FireMgmtComplexity     string   `json:"FireMgmtComplexity"`
	ResidencesDestroyed    *int     `json:"ResidencesDestroyed"`
	Injuries               *int     `json:"Injuries"`
	Fatalities             *int     `json:"Fatalities"`
	ModifiedOnDateTime     *int64   `json:"ModifiedOnDateTime"`
}

// WildfireFields is the attribute projection requested from the wildfire service.
const WildfireFields = "IncidentName,DailyAcres,PercentContained,FireDiscoveryDateTime,FireCause," +
	"POOState,POOCounty,GACC,TotalIncidentPersonnel,FireMgmtComplexity,CalculatedAcres," +
	"ResidencesDestroyed,Injuries,Fatalities,ModifiedOnDateTime"

type usgsResponse struct {
	Features []usgsFeature `json:"features"`
}

type usgsFeature struct {
	ID         string         `json:"id"`
	Properties usgsProperties `json:"properties"`
	Geometry   *usgsGeometry  `json:"geometry"`
}

type usgsProperties struct {
	Mag     *float64 `json:"mag"`
	Place   string   `json:"place"`
	Time    int64    `json:"time"`
	Updated *int64   `json:"updated"`
	URL     string   `json:"url"`
	Alert   *string  `json:"alert"`
	Tsunami int      `json:"tsunami"`
	Title   string   `json:"title"`
}

type usgsGeometry struct {
	Coordinates []float64 `json:"coordinates"`
}

// NormalizeWeather flattens NWS alert features, promoting properties to the
// top level and attaching the geometry as-is.
func NormalizeWeather(payload []byte) ([]WeatherAlert, error) {
	var resp nwsResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("decode weather alerts: %w", err)
	}

	alerts := make([]WeatherAlert, 0, len(resp.Features))
	for _, f := range resp.Features {
		p := f.Properties
		id := p.ID
		if id == "" {
			id = f.ID
		}
		alerts = append(alerts, WeatherAlert{
			ID:          id,
			Event:       p.Event,
			Severity:    ParseSeverity(p.Severity),
			Urgency:     p.Urgency,
			Certainty:   p.Certainty,
			Headline:    p.Headline,
			AreaDesc:    p.AreaDesc,
			SenderName:  p.SenderName,
			Effective:   p.Effective,
			Expires:     p.Expires,
			Geometry:    nonNullGeometry(f.Geometry),
			Description: p.Description,
		})
	}
	return alerts, nil
}

// NormalizeDeclarations maps FEMA summaries and keeps only the first row per
// disaster number. The upstream query orders newest-first, so the survivor is
// the most recent amendment.
func NormalizeDeclarations(payload []byte) ([]Declaration, error) {
	var resp femaResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("decode declarations: %w", err)
	}

	seen := make(map[int]struct{}, len(resp.Summaries))
	decls := make([]Declaration, 0, len(resp.Summaries))
	for _, s := range resp.Summaries {
		if _, dup := seen[s.DisasterNumber]; dup {
			continue
		}
		seen[s.DisasterNumber] = struct{}{}
		decls = append(decls, Declaration{
			DisasterNumber:  s.DisasterNumber,
			State:           s.State,
			DeclarationType: s.DeclarationType,
			IncidentType:    s.IncidentType,
			Title:           s.DeclarationTitle,
			DesignatedArea:  s.DesignatedArea,
			DeclarationDate: s.DeclarationDate,
			IncidentBegin:   s.IncidentBeginDate,
			IncidentEnd:     s.IncidentEndDate,
		})
	}
	return decls, nil
}

// NormalizeWildfires projects NIFC features to Wildfire records. Features
// without point geometry keep their attributes but carry no coordinates.
func NormalizeWildfires(payload []byte) ([]Wildfire, error) {
	var resp arcgisResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("decode wildfires: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("wildfire service error %d: %s", resp.Error.Code, resp.Error.Message)
	}

	fires := make([]Wildfire, 0, len(resp.Features))
	for _, f := range resp.Features {
		a := f.Attributes
		fire := Wildfire{
			Name:                a.IncidentName,
			DailyAcres:          a.DailyAcres,
			CalculatedAcres:     a.CalculatedAcres,
			PercentContained:    a.PercentContained,
			DiscoveredAt:        epochMillis(a.FireDiscoveryDateTime),
			Cause:               a.FireCause,
			State:               a.POOState,
			County:              a.POOCounty,
			GACC:                a.GACC,
			Personnel:           a.TotalIncidentPersonnel,
			Complexity:          a.FireMgmtComplexity,
			ResidencesDestroyed: a.ResidencesDestroyed,
			Injuries:            a.Injuries,
			Fatalities:          a.Fatalities,
			ModifiedAt:          epochMillis(a.ModifiedOnDateTime),
		}
		if f.Geometry != nil && f.Geometry.X != nil && f.Geometry.Y != nil {
			fire.Coordinates = &Coordinates{Lon: *f.Geometry.X, Lat: *f.Geometry.Y}
		}
		fires = append(fires, fire)
	}
	return fires, nil
}

// NormalizeQuakes projects USGS point geometry into coordinates and depth and
// carries the feed's own identifier through unchanged.
func NormalizeQuakes(payload []byte) ([]Quake, error) {
	var resp usgsResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("decode quakes: %w", err)
	}

	quakes := make([]Quake, 0, len(resp.Features))
	for _, f := range resp.Features {
		p := f.Properties
		q := Quake{
			ID:      f.ID,
			Place:   p.Place,
			Time:    time.UnixMilli(p.Time).UTC(),
			Updated: epochMillis(p.Updated),
			Tsunami: p.Tsunami != 0,
			Title:   p.Title,
			URL:     p.URL,
		}
		if p.Mag != nil {
			q.Magnitude = *p.Mag
		}
		if p.Alert != nil {
			q.Alert = PagerAlert(*p.Alert)
		}
		if f.Geometry != nil && len(f.Geometry.Coordinates) >= 2 {
			c := f.Geometry.Coordinates
			q.Coordinates = &Coordinates{Lon: c[0], Lat: c[1]}
			if len(c) >= 3 {
				depth := c[2]
				q.Depth = &depth
			}
		}
		quakes = append(quakes, q)
	}
	return quakes, nil
}

func epochMillis(ms *int64) *time.Time {
	if ms == nil {
		return nil
	}
	t := time.UnixMilli(*ms).UTC()
	return &t
}

func nonNullGeometry(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return raw
}
