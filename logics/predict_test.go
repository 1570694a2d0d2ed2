// Copyright 2025 gorse Project Authors
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
	"testing"

	"github.com/gorse-io/ratings/config"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type mockSource struct {
	users map[string][]ItemScore
	items map[string][]UserScore
}

func newMockSource(ratings []RatingEntry) *mockSource {
	source := &mockSource{
		users: make(map[string][]ItemScore),
		items: make(map[string][]UserScore),
	}
	for _, r := range ratings {
		source.users[r.UserId] = append(source.users[r.UserId], ItemScore{ItemId: r.ItemId, Score: r.Score})
		source.items[r.ItemId] = append(source.items[r.ItemId], UserScore{UserId: r.UserId, Score: r.Score})
	}
	return source
}

func (m *mockSource) RatingsOf(userId string) []ItemScore {
	return m.users[userId]
}

func (m *mockSource) RatersOf(itemId string) []UserScore {
	return m.items[itemId]
}

type PredictTestSuite struct {
	suite.Suite
	source *mockSource
}

func (suite *PredictTestSuite) SetupTest() {
	suite.source = newMockSource([]RatingEntry{
		{"1", "1", 5}, {"1", "2", 3}, {"1", "3", 4}, {"1", "4", 4}, {"1", "6", 2},
		{"2", "1", 3}, {"2", "2", 1}, {"2", "3", 2}, {"2", "4", 3}, {"2", "5", 3},
		{"3", "1", 4}, {"3", "2", 2}, {"3", "3", 3}, {"3", "5", 5},
	})
}

func (suite *PredictTestSuite) TestPredict() {
	prediction, err := Predict(suite.source, "1", "5")
	suite.NoError(err)
	suite.Equal("1", prediction.UserId)
	suite.Equal("5", prediction.ItemId)
	suite.Equal("3", prediction.Neighbor.UserId)
	suite.InDelta(1, prediction.Neighbor.Similarity, 1e-9)
	suite.InDelta(5, prediction.Score, 1e-9)
	suite.Equal(2, prediction.Candidates)
}

func (suite *PredictTestSuite) TestExcludeSelf() {
	// user 3 rated item 5 but is not a candidate of itself
	prediction, err := Predict(suite.source, "3", "5")
	suite.NoError(err)
	suite.Equal("2", prediction.Neighbor.UserId)
	suite.Equal(1, prediction.Candidates)
	similarity := SimilarityBetweenUsers(suite.source.RatingsOf("3"), suite.source.RatingsOf("2"))
	suite.InDelta(0.9438798074485389, similarity, 1e-9)
	suite.InDelta(3*similarity, prediction.Score, 1e-9)

	predictor, err := NewPredictor(config.PredictConfig{Strategy: config.StrategyNearest, K: 1})
	suite.NoError(err)
	prediction, err = predictor.Predict(suite.source, "3", "5")
	suite.NoError(err)
	suite.Equal(2, prediction.Candidates)
}

func (suite *PredictTestSuite) TestNoCandidates() {
	// only user 1 rated item 6
	_, err := Predict(suite.source, "1", "6")
	suite.ErrorIs(err, ErrNoCandidates)
	// nobody rated item 7
	_, err = Predict(suite.source, "1", "7")
	suite.ErrorIs(err, ErrNoCandidates)
}

func (suite *PredictTestSuite) TestUnknownUser() {
	// an unknown user has no common items with anyone
	prediction, err := Predict(suite.source, "4", "5")
	suite.NoError(err)
	suite.Equal("2", prediction.Neighbor.UserId)
	suite.Equal(0.0, prediction.Score)
}

func (suite *PredictTestSuite) TestWeighted() {
	predictor, err := NewPredictor(config.PredictConfig{Strategy: config.StrategyWeighted, K: 2, ExcludeSelf: true})
	suite.NoError(err)
	prediction, err := predictor.Predict(suite.source, "1", "5")
	suite.NoError(err)
	sim2 := SimilarityBetweenUsers(suite.source.RatingsOf("1"), suite.source.RatingsOf("2"))
	sim3 := SimilarityBetweenUsers(suite.source.RatingsOf("1"), suite.source.RatingsOf("3"))
	suite.InDelta((sim2*3+sim3*5)/(sim2+sim3), prediction.Score, 1e-9)
	suite.Equal("3", prediction.Neighbor.UserId)
}

func (suite *PredictTestSuite) TestSetSimilarity() {
	predictor, err := NewPredictor(config.GetDefaultConfig().Predict)
	suite.NoError(err)
	calls := 0
	predictor.SetSimilarity(func(source RatingSource, userA, userB string) float64 {
		calls++
		suite.Equal("1", userA)
		if userB == "2" {
			return 0.5
		}
		return 0.1
	})
	prediction, err := predictor.Predict(suite.source, "1", "5")
	suite.NoError(err)
	suite.Equal(2, calls)
	suite.Equal("2", prediction.Neighbor.UserId)
	suite.InDelta(1.5, prediction.Score, 1e-9)
}

func TestPredict(t *testing.T) {
	suite.Run(t, new(PredictTestSuite))
}

func TestCombine(t *testing.T) {
	predictor, err := NewPredictor(config.GetDefaultConfig().Predict)
	assert.NoError(t, err)
	// the most similar candidate wins
	score, nearest, err := predictor.Combine([]Candidate{
		{UserId: "a", Similarity: 0.9, Score: 4},
		{UserId: "b", Similarity: 0.95, Score: 2},
	})
	assert.NoError(t, err)
	assert.Equal(t, "b", nearest.UserId)
	assert.InDelta(t, 1.9, score, 1e-9)
	// the first candidate wins on ties
	score, nearest, err = predictor.Combine([]Candidate{
		{UserId: "a", Similarity: 0.5, Score: 4},
		{UserId: "b", Similarity: 0.5, Score: 2},
	})
	assert.NoError(t, err)
	assert.Equal(t, "a", nearest.UserId)
	assert.InDelta(t, 2, score, 1e-9)
	// zero similarity
	score, nearest, err = predictor.Combine([]Candidate{
		{UserId: "a", Similarity: 0, Score: 4},
		{UserId: "b", Similarity: 0, Score: 2},
	})
	assert.NoError(t, err)
	assert.Equal(t, "a", nearest.UserId)
	assert.Equal(t, 0.0, score)
	// negative similarity makes negative prediction
	score, _, err = predictor.Combine([]Candidate{{UserId: "a", Similarity: -0.5, Score: 4}})
	assert.NoError(t, err)
	assert.InDelta(t, -2, score, 1e-9)
	// no candidates
	_, _, err = predictor.Combine(nil)
	assert.ErrorIs(t, err, ErrNoCandidates)
	assert.True(t, errors.IsNotFound(err))
}

func TestCombineWeighted(t *testing.T) {
	predictor, err := NewPredictor(config.PredictConfig{Strategy: config.StrategyWeighted, K: 1})
	assert.NoError(t, err)
	score, nearest, err := predictor.Combine([]Candidate{
		{UserId: "a", Similarity: 0.5, Score: 2},
		{UserId: "b", Similarity: 0.8, Score: 4},
	})
	assert.NoError(t, err)
	assert.Equal(t, "b", nearest.UserId)
	assert.InDelta(t, 4, score, 1e-9)
	// fall back to the nearest candidate without positive similarity
	score, nearest, err = predictor.Combine([]Candidate{
		{UserId: "a", Similarity: -0.5, Score: 4},
		{UserId: "b", Similarity: -0.2, Score: 2},
	})
	assert.NoError(t, err)
	assert.Equal(t, "b", nearest.UserId)
	assert.InDelta(t, -0.4, score, 1e-9)
}

func TestWeightedMean(t *testing.T) {
	candidates := []Candidate{
		{UserId: "a", Similarity: 0.5, Score: 2},
		{UserId: "b", Similarity: -0.9, Score: 5},
		{UserId: "c", Similarity: 0.5, Score: 4},
	}
	score, ok := WeightedMean(candidates, 10)
	assert.True(t, ok)
	assert.InDelta(t, 3, score, 1e-9)
	score, ok = WeightedMean(candidates, 1)
	assert.True(t, ok)
	assert.InDelta(t, 2, score, 1e-9)
	_, ok = WeightedMean(candidates[1:2], 10)
	assert.False(t, ok)
}

func TestSelectNearest(t *testing.T) {
	_, ok := SelectNearest(nil)
	assert.False(t, ok)
	nearest, ok := SelectNearest([]Candidate{{UserId: "a", Similarity: -1}, {UserId: "b", Similarity: -0.5}})
	assert.True(t, ok)
	assert.Equal(t, "b", nearest.UserId)
}

func TestNewPredictor(t *testing.T) {
	_, err := NewPredictor(config.PredictConfig{Strategy: "average"})
	assert.True(t, errors.IsNotValid(err))
	_, err = NewPredictor(config.PredictConfig{Strategy: config.StrategyWeighted})
	assert.True(t, errors.IsNotValid(err))
	_, err = NewPredictor(config.PredictConfig{Strategy: config.StrategyNearest})
	assert.NoError(t, err)
}
