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
	"sort"

	"github.com/gorse-io/ratings/config"
	"github.com/juju/errors"
	"github.com/samber/lo"
)

// ErrNoCandidates is returned when nobody else has rated the item.
var ErrNoCandidates = errors.NotFoundf("rating candidates")

// RatingSource provides materialized rating histories to predictors.
type RatingSource interface {
	// RatingsOf returns the ratings of a user.
	RatingsOf(userId string) []ItemScore
	// RatersOf returns the users who rated an item and their scores.
	RatersOf(itemId string) []UserScore
}

// Candidate is a neighbor who rated the target item.
type Candidate struct {
	UserId     string
	Similarity float64
	Score      float64
}

// Prediction is the estimated score of a user on an item.
type Prediction struct {
	UserId     string
	ItemId     string
	Score      float64
	Neighbor   Candidate
	Candidates int
}

// SelectNearest returns the candidate with the maximum similarity. The first
// candidate wins on ties.
func SelectNearest(candidates []Candidate) (Candidate, bool) {
	if len(candidates) == 0 {
		return Candidate{}, false
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Similarity > best.Similarity {
			best = c
		}
	}
	return best, true
}

// SimilarityFunc measures the similarity between two users of a rating source.
type SimilarityFunc func(source RatingSource, userA, userB string) float64

// Predictor estimates ratings from the most similar raters of an item.
type Predictor struct {
	strategy    string
	k           int
	excludeSelf bool
	similarity  SimilarityFunc
}

// NewPredictor creates a predictor from the prediction config.
func NewPredictor(cfg config.PredictConfig) (*Predictor, error) {
	switch cfg.Strategy {
	case config.StrategyNearest, config.StrategyWeighted:
	default:
		return nil, errors.NotValidf("prediction strategy %q", cfg.Strategy)
	}
	if cfg.Strategy == config.StrategyWeighted && cfg.K <= 0 {
		return nil, errors.NotValidf("number of neighbors %d", cfg.K)
	}
	return &Predictor{
		strategy:    cfg.Strategy,
		k:           cfg.K,
		excludeSelf: cfg.ExcludeSelf,
	}, nil
}

// SetSimilarity replaces the similarity between the user and raters, which is
// computed from rating histories by default.
func (p *Predictor) SetSimilarity(similarity SimilarityFunc) {
	p.similarity = similarity
}

// Candidates scores every rater of the item against the user. Candidates keep
// the order of raters returned by the source.
func (p *Predictor) Candidates(source RatingSource, userId, itemId string) []Candidate {
	var history []ItemScore
	if p.similarity == nil {
		history = source.RatingsOf(userId)
	}
	candidates := make([]Candidate, 0)
	for _, rater := range source.RatersOf(itemId) {
		if p.excludeSelf && rater.UserId == userId {
			continue
		}
		var similarity float64
		if p.similarity != nil {
			similarity = p.similarity(source, userId, rater.UserId)
		} else {
			similarity = SimilarityBetweenUsers(history, source.RatingsOf(rater.UserId))
		}
		candidates = append(candidates, Candidate{
			UserId:     rater.UserId,
			Similarity: similarity,
			Score:      rater.Score,
		})
	}
	return candidates
}

// Predict estimates the score of the user on the item. The result is not
// clamped to any rating scale.
func (p *Predictor) Predict(source RatingSource, userId, itemId string) (Prediction, error) {
	candidates := p.Candidates(source, userId, itemId)
	score, nearest, err := p.Combine(candidates)
	if err != nil {
		return Prediction{}, errors.Annotatef(err, "item %s", itemId)
	}
	return Prediction{
		UserId:     userId,
		ItemId:     itemId,
		Score:      score,
		Neighbor:   nearest,
		Candidates: len(candidates),
	}, nil
}

// Combine turns candidates into a predicted score and the nearest neighbor.
// The nearest strategy returns the score of the most similar candidate scaled
// by its similarity.
func (p *Predictor) Combine(candidates []Candidate) (float64, Candidate, error) {
	nearest, ok := SelectNearest(candidates)
	if !ok {
		return 0, Candidate{}, ErrNoCandidates
	}
	if p.strategy == config.StrategyWeighted {
		if score, ok := WeightedMean(candidates, p.k); ok {
			return score, nearest, nil
		}
	}
	return nearest.Score * nearest.Similarity, nearest, nil
}

// WeightedMean averages the scores of the top k candidates with positive
// similarity, weighted by similarity. It returns false if no candidate has a
// positive similarity.
func WeightedMean(candidates []Candidate, k int) (float64, bool) {
	positive := lo.Filter(candidates, func(c Candidate, _ int) bool {
		return c.Similarity > 0
	})
	if len(positive) == 0 {
		return 0, false
	}
	sort.SliceStable(positive, func(i, j int) bool {
		return positive[i].Similarity > positive[j].Similarity
	})
	if k < len(positive) {
		positive = positive[:k]
	}
	weightSum, weightScore := 0.0, 0.0
	for _, c := range positive {
		weightSum += math.Abs(c.Similarity)
		weightScore += c.Similarity * c.Score
	}
	return weightScore / weightSum, true
}

// Predict estimates a rating from the single most similar other rater.
func Predict(source RatingSource, userId, itemId string) (Prediction, error) {
	p := &Predictor{strategy: config.StrategyNearest, excludeSelf: true}
	return p.Predict(source, userId, itemId)
}
