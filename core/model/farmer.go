package model

import (
	"fmt"
	"math"
)

// GeoPoint is a WGS84 coordinate pair.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// IsZero reports whether the point carries no coordinate.
func (p GeoPoint) IsZero() bool { return p.Lat == 0 && p.Lon == 0 }

const earthRadiusKm = 6371.0

// DistanceKm returns the great-circle distance to q in kilometers.
func (p GeoPoint) DistanceKm(q GeoPoint) float64 {
	lat1 := p.Lat * math.Pi / 180
	lat2 := q.Lat * math.Pi / 180
	dLat := (q.Lat - p.Lat) * math.Pi / 180
	dLon := (q.Lon - p.Lon) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// Farmer represents a print provider able to receive offers.
type Farmer struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	City            string   `json:"city"`
	Location        GeoPoint `json:"location"`
	Materials       []string `json:"materials"`
	MaxBuildVolume  float64  `json:"maxBuildVolumeCm3"` // cm³
	Rating          float64  `json:"rating"`            // 0..5
	CompletedOrders int      `json:"completedOrders"`
	DeclinedOffers  int      `json:"declinedOffers"`
}

// Validate checks that the farmer profile is sound.
func (f Farmer) Validate() error {
	if f.ID == "" {
		return fmt.Errorf("farmer id is required")
	}
	if f.Rating < 0 || f.Rating > 5 {
		return fmt.Errorf("rating must be between 0 and 5")
	}
	if f.MaxBuildVolume < 0 {
		return fmt.Errorf("build volume must not be negative")
	}
	return nil
}

// SupportsMaterial reports whether the farmer prints the given material.
func (f Farmer) SupportsMaterial(material string) bool {
	if material == "" {
		return true
	}
	for _, m := range f.Materials {
		if m == material {
			return true
		}
	}
	return false
}

// Candidate is one ranked farmer within a dispatch run. The candidate list is
// a snapshot: it is produced once per run and never re-ranked mid-run.
type Candidate struct {
	FarmerID   string  `json:"farmerId"`
	MatchScore float64 `json:"matchScore"`
	DistanceKm float64 `json:"distanceKm"`
	Rating     float64 `json:"rating"`
	Available  bool    `json:"available"`
}
