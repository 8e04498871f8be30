package hazard

import (
	"sort"

	"github.com/ChenCXxx/townpass-microservice/internal/alert"
	"github.com/ChenCXxx/townpass-microservice/internal/geo"
)

// Match returns the features whose anchor lies within radiusMeters of
// the observer, sorted ascending by distance. Pure function: no side
// effects, safe to call concurrently with immutable inputs. Ties are
// broken by feature id so identical inputs always yield identical
// output.
func Match(observer geo.Position, features []Feature, radiusMeters float64) []alert.Hit {
	here := geo.Coordinate{Lon: observer.Longitude, Lat: observer.Latitude}

	var hits []alert.Hit
	for _, feature := range features {
		distance := geo.DistanceMeters(here, feature.Anchor)
		if distance > radiusMeters {
			continue
		}
		hits = append(hits, alert.Hit{
			FeatureID:      feature.ID,
			Name:           feature.Name,
			DistanceMeters: distance,
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].DistanceMeters != hits[j].DistanceMeters {
			return hits[i].DistanceMeters < hits[j].DistanceMeters
		}
		return hits[i].FeatureID < hits[j].FeatureID
	})
	return hits
}
