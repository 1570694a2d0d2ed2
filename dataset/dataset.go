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

package dataset

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/gorse-io/ratings/base/log"
	"github.com/gorse-io/ratings/logics"
	"github.com/gorse-io/ratings/storage/data"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

// Dataset is an in-memory snapshot of ratings indexed by user and by item.
// Ratings keep their insertion order.
type Dataset struct {
	mu          sync.RWMutex
	timestamp   time.Time
	userDict    *IdDict
	itemDict    *IdDict
	userRatings [][]logics.ItemScore
	itemRatings [][]logics.UserScore
	numRatings  int
}

var _ logics.RatingSource = (*Dataset)(nil)

func NewDataset(timestamp time.Time, userCount, itemCount int) *Dataset {
	return &Dataset{
		timestamp:   timestamp,
		userDict:    NewIdDict(),
		itemDict:    NewIdDict(),
		userRatings: make([][]logics.ItemScore, 0, userCount),
		itemRatings: make([][]logics.UserScore, 0, itemCount),
	}
}

// GetTimestamp returns the time the snapshot was created.
func (d *Dataset) GetTimestamp() time.Time {
	return d.timestamp
}

func (d *Dataset) CountUsers() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.userDict.Count()
}

func (d *Dataset) CountItems() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.itemDict.Count()
}

func (d *Dataset) CountRatings() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.numRatings
}

// ItemIds returns ids of rated items in order of first appearance.
func (d *Dataset) ItemIds() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Clone(d.itemDict.is)
}

// SetRating inserts a rating or updates the score of an existing one in place.
// It returns true if the rating is new.
func (d *Dataset) SetRating(rating logics.RatingEntry) bool {
	userId, itemId, score := rating.UserId, rating.ItemId, rating.Score
	d.mu.Lock()
	defer d.mu.Unlock()
	userIndex := d.userDict.Id(userId)
	itemIndex := d.itemDict.Id(itemId)
	for len(d.userRatings) <= userIndex {
		d.userRatings = append(d.userRatings, nil)
	}
	for len(d.itemRatings) <= itemIndex {
		d.itemRatings = append(d.itemRatings, nil)
	}
	// update existing rating
	if i := slices.IndexFunc(d.userRatings[userIndex], func(r logics.ItemScore) bool {
		return r.ItemId == itemId
	}); i >= 0 {
		d.userRatings[userIndex][i].Score = score
		j := slices.IndexFunc(d.itemRatings[itemIndex], func(r logics.UserScore) bool {
			return r.UserId == userId
		})
		d.itemRatings[itemIndex][j].Score = score
		return false
	}
	// insert new rating
	d.userRatings[userIndex] = append(d.userRatings[userIndex], logics.ItemScore{ItemId: itemId, Score: score})
	d.itemRatings[itemIndex] = append(d.itemRatings[itemIndex], logics.UserScore{UserId: userId, Score: score})
	d.numRatings++
	return true
}

// RatingsOf returns a copy of the ratings of a user.
func (d *Dataset) RatingsOf(userId string) []logics.ItemScore {
	d.mu.RLock()
	defer d.mu.RUnlock()
	userIndex, ok := d.userDict.Index(userId)
	if !ok || userIndex >= len(d.userRatings) {
		return nil
	}
	return slices.Clone(d.userRatings[userIndex])
}

// RatersOf returns a copy of the raters of an item.
func (d *Dataset) RatersOf(itemId string) []logics.UserScore {
	d.mu.RLock()
	defer d.mu.RUnlock()
	itemIndex, ok := d.itemDict.Index(itemId)
	if !ok || itemIndex >= len(d.itemRatings) {
		return nil
	}
	return slices.Clone(d.itemRatings[itemIndex])
}

// LoadFromDatabase builds a dataset from all ratings in the database.
func LoadFromDatabase(ctx context.Context, database data.Database, batchSize int) (*Dataset, error) {
	start := time.Now()
	dataset := NewDataset(start, 0, 0)
	ratingChan, errChan := database.GetRatingStream(ctx, batchSize)
	for ratings := range ratingChan {
		for _, rating := range ratings {
			dataset.SetRating(logics.RatingEntry{UserId: rating.UserId, ItemId: rating.ItemId, Score: rating.Score})
		}
	}
	if err := <-errChan; err != nil {
		return nil, errors.Trace(err)
	}
	log.Logger().Info("load dataset from database",
		zap.Int("n_users", dataset.CountUsers()),
		zap.Int("n_items", dataset.CountItems()),
		zap.Int("n_ratings", dataset.CountRatings()),
		zap.Duration("used_time", time.Since(start)))
	return dataset, nil
}
