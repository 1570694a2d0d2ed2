// Copyright 2026 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package logics

import (
	"math"

	"github.com/samber/lo"
)

// RatingEntry is a single score of a user on an item.
type RatingEntry struct {
	UserId string
	ItemId string
	Score  float64
}

// ItemScore is an element of the rating history of a user.
type ItemScore struct {
	ItemId string
	Score  float64
}

// UserScore is an element of the raters of an item.
type UserScore struct {
	UserId string
	Score  float64
}

// RatingVector maps item ids to the scores of a single user.
type RatingVector map[string]float64

// NewRatingVector builds the rating vector of a rating history.
func NewRatingVector(ratings []ItemScore) RatingVector {
	return lo.SliceToMap(ratings, func(r ItemScore) (string, float64) {
		return r.ItemId, r.Score
	})
}

// Pair is the scores of two users on the same item.
type Pair struct {
	A float64
	B float64
}

// PairedObservations is one pair per item rated by both users.
type PairedObservations []Pair

// Pearson computes the Pearson product-moment correlation coefficient of pairs.
//
//	r = (Σab - ΣaΣb/n) / sqrt((Σa² - (Σa)²/n)(Σb² - (Σb)²/n))
//
// Empty pairs and zero variance on either side have no correlation signal, so
// the result is 0 in both cases.
func Pearson(pairs PairedObservations) float64 {
	if len(pairs) == 0 {
		return 0
	}
	var sumA, sumB, sqA, sqB, sumAB float64
	for _, p := range pairs {
		sumA += p.A
		sumB += p.B
		sqA += p.A * p.A
		sqB += p.B * p.B
		sumAB += p.A * p.B
	}
	n := float64(len(pairs))
	numerator := sumAB - sumA*sumB/n
	denominator := math.Sqrt((sqA - sumA*sumA/n) * (sqB - sumB*sumB/n))
	// Rounding may turn a zero variance into a tiny negative product.
	if denominator == 0 || math.IsNaN(denominator) {
		return 0
	}
	return math.Max(-1, math.Min(1, numerator/denominator))
}

// Intersect pairs the scores of items rated by both users. Pairs follow the
// order of b.
func Intersect(a, b []ItemScore) PairedObservations {
	vector := NewRatingVector(a)
	pairs := make(PairedObservations, 0)
	for _, r := range b {
		if score, ok := vector[r.ItemId]; ok {
			pairs = append(pairs, Pair{A: score, B: r.Score})
		}
	}
	return pairs
}

// SimilarityBetweenUsers computes the Pearson similarity between two rating
// histories over commonly rated items. Users without common items are 0.
func SimilarityBetweenUsers(a, b []ItemScore) float64 {
	pairs := Intersect(a, b)
	if len(pairs) == 0 {
		return 0
	}
	return Pearson(pairs)
}
