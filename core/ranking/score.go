package ranking

// Weights tunes the soft ranking among farmers that survived the hard filter.
type Weights struct {
	RatingWeight      float64 `json:"rating_weight"`
	DistancePenaltyKm float64 `json:"distance_penalty_per_km"`
	// AvailabilityBonus is awarded for available farmers. The hard filter
	// already guarantees availability, so today the bonus is a constant term;
	// it stays an explicit weight so the filter can later be relaxed to a
	// soft constraint without touching the score shape.
	AvailabilityBonus float64 `json:"availability_bonus"`
}

// DefaultWeights returns the weights used when none are configured.
func DefaultWeights() Weights {
	return Weights{
		RatingWeight:      2,
		DistancePenaltyKm: 0.1,
		AvailabilityBonus: 0.5,
	}
}

// Score computes the match score for one farmer.
func (w Weights) Score(rating, distanceKm float64, available bool) float64 {
	score := rating*w.RatingWeight - distanceKm*w.DistancePenaltyKm
	if available {
		score += w.AvailabilityBonus
	}
	return score
}
