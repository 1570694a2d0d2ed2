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
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorse-io/ratings/storage/data"
	"github.com/stretchr/testify/assert"
)

const (
	usersText = `1|24|M|technician|85711
2|53|F|other|94043
3|23|M|writer|32067
`
	itemsText = `1|Toy Story (1995)|01-Jan-1995||http://us.imdb.com/M/title-exact?Toy%20Story%20(1995)|0|0|0|1|1|1|0|0|0|0|0|0|0|0|0|0|0|0|0
2|GoldenEye (1995)|01-Jan-1995||http://us.imdb.com/M/title-exact?GoldenEye%20(1995)|0|1|1|0|0|0|0|0|0|0|0|0|0|0|0|0|1|0|0
267|unknown||||1|0|0|0|0|0|0|0|0|0|0|0|0|0|0|0|0|0|0
`
	ratingsText = "1\t1\t5\t874965758\n1\t2\t3\t876893171\n2\t1\t4\t888550871\n3\t2\t1\t884182806\n"
)

func TestParseUsers(t *testing.T) {
	users, err := ParseUsers(strings.NewReader(usersText))
	assert.NoError(t, err)
	assert.Equal(t, []data.User{
		{UserId: "1", Age: 24, Zipcode: "85711"},
		{UserId: "2", Age: 53, Zipcode: "94043"},
		{UserId: "3", Age: 23, Zipcode: "32067"},
	}, users)

	_, err = ParseUsers(strings.NewReader("1|24|M\n"))
	assert.Error(t, err)
	_, err = ParseUsers(strings.NewReader("1|x|M|technician|85711\n"))
	assert.ErrorContains(t, err, "line 1")
}

func TestParseItems(t *testing.T) {
	items, err := ParseItems(strings.NewReader(itemsText))
	assert.NoError(t, err)
	if assert.Len(t, items, 3) {
		assert.Equal(t, "1", items[0].ItemId)
		assert.Equal(t, "Toy Story", items[0].Title)
		assert.Equal(t, time.Date(1995, time.January, 1, 0, 0, 0, 0, time.UTC), items[0].ReleasedAt)
		assert.Equal(t, "http://us.imdb.com/M/title-exact?Toy%20Story%20(1995)", items[0].ImdbUrl)
		assert.Equal(t, "GoldenEye", items[1].Title)
		// unknown movie without release date
		assert.Equal(t, "267", items[2].ItemId)
		assert.Empty(t, items[2].Title)
		assert.True(t, items[2].ReleasedAt.IsZero())
	}

	_, err = ParseItems(strings.NewReader("1|Toy Story (1995)|1995-01-01||url\n"))
	assert.Error(t, err)
}

func TestParseRatings(t *testing.T) {
	ratings, err := ParseRatings(strings.NewReader(ratingsText))
	assert.NoError(t, err)
	if assert.Len(t, ratings, 4) {
		assert.Equal(t, data.Rating{
			UserId:    "1",
			ItemId:    "1",
			Score:     5,
			Timestamp: time.Unix(874965758, 0).UTC(),
		}, ratings[0])
	}

	_, err = ParseRatings(strings.NewReader("1 1 5 874965758\n"))
	assert.Error(t, err)
	_, err = ParseRatings(strings.NewReader("1\t1\tfive\t874965758\n"))
	assert.Error(t, err)
}

func TestImportMovieLens(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	files := MovieLensFiles{
		Users:   filepath.Join(dir, "u.user"),
		Items:   filepath.Join(dir, "u.item"),
		Ratings: filepath.Join(dir, "u.data"),
	}
	assert.NoError(t, os.WriteFile(files.Users, []byte(usersText), 0644))
	assert.NoError(t, os.WriteFile(files.Items, []byte(itemsText), 0644))
	assert.NoError(t, os.WriteFile(files.Ratings, []byte(ratingsText), 0644))

	database, err := data.Open(fmt.Sprintf("sqlite://%s/sqlite.db", dir), "")
	assert.NoError(t, err)
	defer database.Close()
	assert.NoError(t, database.Init())
	// stale records are removed
	assert.NoError(t, database.SetRating(ctx, data.Rating{UserId: "9", ItemId: "9", Score: 1}))

	summary, err := ImportMovieLens(ctx, database, files, 2, io.Discard)
	assert.NoError(t, err)
	assert.Equal(t, ImportSummary{Users: 3, Items: 3, Ratings: 4}, summary)

	user, err := database.GetUser(ctx, "2")
	assert.NoError(t, err)
	assert.Equal(t, 53, user.Age)
	item, err := database.GetItem(ctx, "2")
	assert.NoError(t, err)
	assert.Equal(t, "GoldenEye", item.Title)
	ratings, err := database.GetUserRatings(ctx, "1")
	assert.NoError(t, err)
	assert.Len(t, ratings, 2)
	_, err = database.GetRating(ctx, "9", "9")
	assert.ErrorIs(t, err, data.ErrRatingNotExist)

	// missing file
	_, err = ImportMovieLens(ctx, database, MovieLensFiles{Users: filepath.Join(dir, "missing")}, 2, io.Discard)
	assert.Error(t, err)
}
