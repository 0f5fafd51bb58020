package agent

// ConfidenceWeights is the single tunable table behind the confidence
// heuristic.
type ConfidenceWeights struct {
	Base               float64
	RetrievalBonus     float64 // applied when best retrieval score > RetrievalThreshold
	RetrievalThreshold float64
	SQLOKBonus         float64 // applied when SQL executed without error
	SQLRowsBonus       float64 // applied when SQL returned a non-empty result set
	RepairPenalty      float64 // subtracted once per repair iteration consumed
	CoercionPenalty    float64 // subtracted when the answer failed format coercion
}

// DefaultWeights returns the production weight table.
func DefaultWeights() ConfidenceWeights {
	return ConfidenceWeights{
		Base:               0.5,
		RetrievalBonus:     0.2,
		RetrievalThreshold: 0.5,
		SQLOKBonus:         0.2,
		SQLRowsBonus:       0.1,
		RepairPenalty:      0.15,
		CoercionPenalty:    0.1,
	}
}

// ConfidenceInputs is the structured evidence the heuristic scores.
type ConfidenceInputs struct {
	BestRetrievalScore float64
	SQLOK              bool
	SQLNonEmpty        bool
	RepairCount        int
	CoercionFailed     bool
}

// ScoreConfidence computes the heuristic confidence for one request. Pure
// function: additive adjustments over the weight table, clamped to [0, 1].
func ScoreConfidence(in ConfidenceInputs, w ConfidenceWeights) float64 {
	confidence := w.Base

	if in.BestRetrievalScore > w.RetrievalThreshold {
		confidence += w.RetrievalBonus
	}
	if in.SQLOK {
		confidence += w.SQLOKBonus
		if in.SQLNonEmpty {
			confidence += w.SQLRowsBonus
		}
	}
	confidence -= float64(in.RepairCount) * w.RepairPenalty
	if in.CoercionFailed {
		confidence -= w.CoercionPenalty
	}

	if confidence < 0 {
		return 0
	}
	if confidence > 1 {
		return 1
	}
	return confidence
}
