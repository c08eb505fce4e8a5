// Package domain models the four public hazard feeds and the decision logic
// that turns them into a single situational picture.
//
// # Data Sources
//
// Weather alerts come from the National Weather Service (NWS) active alerts
// endpoint (https://api.weather.gov/alerts/active). The server already limits
// the response to currently active alerts, so every fetched alert counts as
// current.
//
// Disaster declarations come from the FEMA OpenFEMA
// DisasterDeclarationsSummaries dataset. One disaster number appears once per
// designated area and once per amendment; the client requests newest-first so
// the first row for a disaster number is the most recent amendment.
//
// Wildfire incidents come from the NIFC USA_Wildfires ArcGIS feature service.
// Attributes arrive under "attributes", point geometry under "geometry" as
// {x: lon, y: lat}. Dates are epoch milliseconds.
//
// Seismic events come from the USGS 2.5_week GeoJSON summary feed. Point
// geometry is [lon, lat, depth_km]; "alert" carries the PAGER level.
//
// # Location Conventions
//
// Each feed encodes location differently, so scope matching is feed specific:
//
//	declarations  "state": "CA"                       exact postal code
//	weather       "areaDesc": "Ventura County, CA; …"   state names inside free text
//	wildfire      "POOState": "California"            state name inside free text
//	seismic       "place": "34km NW of Anza, CA"      ", <code>" suffix or state name
//
// # Status Synthesis
//
// Four ordered rules produce at most one needs-action item each:
//
//	1. Extreme weather alert                         danger
//	2. Declaration inside the lookback window        danger
//	3. Quake ≥ action magnitude or PAGER orange/red  danger on red, else warning
//	4. Fire ≥ acreage threshold and < containment    warning
//
// The list is truncated to three items. The overall level is danger when any
// item is danger, warning when any item exists or a Severe alert or big fire
// is present, success otherwise.
package domain
