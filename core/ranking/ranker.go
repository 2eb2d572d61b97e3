package ranking

import (
	"context"
	"fmt"
	"sort"

	"github.com/shareprinto/dispatcher/core/availability"
	"github.com/shareprinto/dispatcher/core/model"
)

// Requirements are the hard constraints an order imposes on candidates.
type Requirements struct {
	MaterialType   string  `json:"materialType"`
	MinBuildVolume float64 `json:"minBuildVolumeCm3"`
	MinRating      float64 `json:"minRating"`
	MaxDistanceKm  float64 `json:"maxDistanceKm"`
}

// Source supplies the farmer profiles considered for ranking.
type Source interface {
	List() []model.Farmer
}

// CityResolver maps a city name to coordinates. Unknown cities yield no
// candidates, which the scheduler treats as a regular exhausted run.
type CityResolver interface {
	Locate(city string) (model.GeoPoint, bool)
}

// StaticResolver resolves cities from a fixed table loaded at startup.
type StaticResolver map[string]model.GeoPoint

func (r StaticResolver) Locate(city string) (model.GeoPoint, bool) {
	p, ok := r[city]
	return p, ok
}

// Ranker filters farmers by hard constraints and orders the survivors by a
// weighted score. Filtering and scoring are pure reads; the result is a
// snapshot that stays authoritative for the lifetime of a dispatch run.
type Ranker struct {
	source       Source
	availability availability.Store
	resolver     CityResolver
	weights      Weights
}

// NewRanker creates a Ranker. A zero Weights value is replaced with defaults.
func NewRanker(src Source, avail availability.Store, res CityResolver, w Weights) (*Ranker, error) {
	if src == nil || avail == nil || res == nil {
		return nil, fmt.Errorf("ranking: nil parameter provided to NewRanker")
	}
	if w == (Weights{}) {
		w = DefaultWeights()
	}
	return &Ranker{source: src, availability: avail, resolver: res, weights: w}, nil
}

// Rank returns the ordered candidate snapshot for the given city and
// requirements. An empty result is a valid terminal outcome, not an error.
func (r *Ranker) Rank(ctx context.Context, city string, req Requirements) ([]model.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	origin, ok := r.resolver.Locate(city)
	if !ok {
		return nil, nil
	}
	var res []model.Candidate
	for _, f := range r.source.List() {
		st, ok := r.availability.Get(f.ID)
		if !ok || !st.Online || !st.Available {
			continue
		}
		if !f.SupportsMaterial(req.MaterialType) {
			continue
		}
		if f.MaxBuildVolume < req.MinBuildVolume {
			continue
		}
		if f.Rating < req.MinRating {
			continue
		}
		dist := origin.DistanceKm(f.Location)
		if req.MaxDistanceKm > 0 && dist > req.MaxDistanceKm {
			continue
		}
		res = append(res, model.Candidate{
			FarmerID:   f.ID,
			MatchScore: r.weights.Score(f.Rating, dist, st.Available),
			DistanceKm: dist,
			Rating:     f.Rating,
			Available:  st.Available,
		})
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].MatchScore != res[j].MatchScore {
			return res[i].MatchScore > res[j].MatchScore
		}
		if res[i].DistanceKm != res[j].DistanceKm {
			return res[i].DistanceKm < res[j].DistanceKm
		}
		return res[i].FarmerID < res[j].FarmerID
	})
	return res, nil
}
