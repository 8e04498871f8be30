// Package alert defines the normalized alert shapes shared by every
// producer (live watch, push channel, background scan) and consumed by
// the dispatcher.
package alert

// Source identifies which producer observed a set of hits. The
// dispatcher varies its deduplication policy by source.
type Source string

const (
	SourceLive       Source = "live"
	SourcePush       Source = "push"
	SourceBackground Source = "background"
)

// Hit is a single matched hazard within the alert radius. Hits are
// transient: created per match cycle and never persisted.
type Hit struct {
	FeatureID      string
	Name           string
	DistanceMeters float64
}

// ServerAlert is one entry of a server-pushed construction alert batch,
// as delivered over the notification websocket. Field names follow the
// server's wire format.
type ServerAlert struct {
	FavoriteName     string  `json:"favorite_name"`
	ConstructionName string  `json:"construction_name"`
	ConstructionRoad string  `json:"construction_road"`
	DistanceMeters   float64 `json:"distance_meters"`
	StartDate        string  `json:"start_date,omitempty"`
	EndDate          string  `json:"end_date,omitempty"`
	URL              string  `json:"url,omitempty"`
}

// Hit converts a server alert into the dispatcher's hit shape.
func (a ServerAlert) Hit() Hit {
	name := a.ConstructionName
	if name == "" {
		name = a.ConstructionRoad
	}
	return Hit{
		FeatureID:      name,
		Name:           name,
		DistanceMeters: a.DistanceMeters,
	}
}
