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
	"fmt"
	"testing"
	"time"

	"github.com/gorse-io/ratings/logics"
	"github.com/gorse-io/ratings/storage/data"
	"github.com/stretchr/testify/assert"
)

func TestDataset_SetRating(t *testing.T) {
	dataset := NewDataset(time.Now(), 0, 0)
	assert.True(t, dataset.SetRating(logics.RatingEntry{UserId: "1", ItemId: "10", Score: 5}))
	assert.True(t, dataset.SetRating(logics.RatingEntry{UserId: "1", ItemId: "20", Score: 3}))
	assert.True(t, dataset.SetRating(logics.RatingEntry{UserId: "2", ItemId: "10", Score: 4}))
	assert.Equal(t, 2, dataset.CountUsers())
	assert.Equal(t, 2, dataset.CountItems())
	assert.Equal(t, 3, dataset.CountRatings())
	assert.Equal(t, []string{"10", "20"}, dataset.ItemIds())
	// update keeps position
	assert.False(t, dataset.SetRating(logics.RatingEntry{UserId: "1", ItemId: "10", Score: 1}))
	assert.Equal(t, 3, dataset.CountRatings())
	assert.Equal(t, []logics.ItemScore{{ItemId: "10", Score: 1}, {ItemId: "20", Score: 3}}, dataset.RatingsOf("1"))
	assert.Equal(t, []logics.UserScore{{UserId: "1", Score: 1}, {UserId: "2", Score: 4}}, dataset.RatersOf("10"))
	// unknown ids
	assert.Empty(t, dataset.RatingsOf("3"))
	assert.Empty(t, dataset.RatersOf("30"))
	// returned slices are copies
	ratings := dataset.RatingsOf("1")
	ratings[0].Score = 100
	assert.Equal(t, 1.0, dataset.RatingsOf("1")[0].Score)
}

func TestDataset_Predict(t *testing.T) {
	dataset := NewDataset(time.Now(), 0, 0)
	dataset.SetRating(logics.RatingEntry{UserId: "1", ItemId: "1", Score: 5})
	dataset.SetRating(logics.RatingEntry{UserId: "1", ItemId: "2", Score: 3})
	dataset.SetRating(logics.RatingEntry{UserId: "1", ItemId: "3", Score: 4})
	dataset.SetRating(logics.RatingEntry{UserId: "2", ItemId: "1", Score: 4})
	dataset.SetRating(logics.RatingEntry{UserId: "2", ItemId: "2", Score: 2})
	dataset.SetRating(logics.RatingEntry{UserId: "2", ItemId: "3", Score: 3})
	dataset.SetRating(logics.RatingEntry{UserId: "2", ItemId: "4", Score: 5})
	prediction, err := logics.Predict(dataset, "1", "4")
	assert.NoError(t, err)
	assert.Equal(t, "2", prediction.Neighbor.UserId)
	assert.InDelta(t, 5, prediction.Score, 1e-9)
}

func TestLoadFromDatabase(t *testing.T) {
	ctx := context.Background()
	database, err := data.Open(fmt.Sprintf("sqlite://%s/sqlite.db", t.TempDir()), "")
	assert.NoError(t, err)
	defer database.Close()
	assert.NoError(t, database.Init())
	var ratings []data.Rating
	for i := 0; i < 3; i++ {
		for j := 0; j < 4; j++ {
			ratings = append(ratings, data.Rating{
				UserId: fmt.Sprintf("u%d", i),
				ItemId: fmt.Sprintf("i%d", j),
				Score:  float64(i + j),
			})
		}
	}
	assert.NoError(t, database.BatchInsertRatings(ctx, ratings, true))

	dataset, err := LoadFromDatabase(ctx, database, 5)
	assert.NoError(t, err)
	assert.Equal(t, 3, dataset.CountUsers())
	assert.Equal(t, 4, dataset.CountItems())
	assert.Equal(t, 12, dataset.CountRatings())
	assert.Equal(t, []logics.ItemScore{{"i0", 1}, {"i1", 2}, {"i2", 3}, {"i3", 4}}, dataset.RatingsOf("u1"))
	assert.Equal(t, []logics.UserScore{{"u0", 2}, {"u1", 3}, {"u2", 4}}, dataset.RatersOf("i2"))

	_, err = LoadFromDatabase(ctx, data.NoDatabase{}, 5)
	assert.ErrorIs(t, err, data.ErrNoDatabase)
}
