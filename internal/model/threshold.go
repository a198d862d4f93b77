package model

import (
	"fmt"
	"sort"
)

// Evaluate compares every score against the threshold of the same class and returns
// one Detection per class, in catalog order. A score equal to its threshold counts as
// detected.
func Evaluate(catalog []string, scores []float32, thresholds []float64) ([]Detection, error) {
	if len(scores) != len(catalog) || len(thresholds) != len(catalog) {
		return nil, fmt.Errorf("length mismatch: %d classes, %d scores, %d thresholds",
			len(catalog), len(scores), len(thresholds))
	}

	all := make([]Detection, len(catalog))
	for i, name := range catalog {
		score := float64(scores[i])
		all[i] = Detection{
			Disease:    name,
			Confidence: score,
			Threshold:  thresholds[i],
			Detected:   score >= thresholds[i],
		}
	}
	return all, nil
}

// Detected keeps the detected entries, ordered by descending confidence. Entries with
// equal confidence keep their catalog order.
func Detected(all []Detection) []Detection {
	out := make([]Detection, 0, len(all))
	for _, d := range all {
		if d.Detected {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})
	return out
}
