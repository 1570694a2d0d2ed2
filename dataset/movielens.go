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
	"bufio"
	"context"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gorse-io/ratings/base/log"
	"github.com/gorse-io/ratings/storage/data"
	"github.com/juju/errors"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
)

const releaseDateLayout = "02-Jan-2006"

// ParseUsers parses u.user of MovieLens 100k: user id | age | gender | occupation | zip code.
func ParseUsers(r io.Reader) ([]data.User, error) {
	var users []data.User
	err := scanLines(r, func(lineNumber int, line string) error {
		fields := strings.Split(line, "|")
		if len(fields) != 5 {
			return errors.NotValidf("line %d: %d fields in user", lineNumber, len(fields))
		}
		age, err := strconv.Atoi(fields[1])
		if err != nil {
			return errors.Annotatef(err, "line %d", lineNumber)
		}
		users = append(users, data.User{
			UserId:  fields[0],
			Age:     age,
			Zipcode: fields[4],
		})
		return nil
	})
	return users, err
}

// ParseItems parses u.item of MovieLens 100k: movie id | title (year) | release date |
// video release date | IMDb URL | genres. The year suffix is stripped from titles and
// an empty release date is kept as the zero time.
func ParseItems(r io.Reader) ([]data.Item, error) {
	var items []data.Item
	err := scanLines(r, func(lineNumber int, line string) error {
		fields := strings.Split(line, "|")
		if len(fields) < 5 {
			return errors.NotValidf("line %d: %d fields in item", lineNumber, len(fields))
		}
		item := data.Item{
			ItemId:  fields[0],
			Title:   stripYear(fields[1]),
			ImdbUrl: fields[4],
		}
		if fields[2] != "" {
			releasedAt, err := time.Parse(releaseDateLayout, fields[2])
			if err != nil {
				return errors.Annotatef(err, "line %d", lineNumber)
			}
			item.ReleasedAt = releasedAt
		}
		items = append(items, item)
		return nil
	})
	return items, err
}

// ParseRatings parses u.data of MovieLens 100k: user id \t item id \t rating \t timestamp.
func ParseRatings(r io.Reader) ([]data.Rating, error) {
	var ratings []data.Rating
	err := scanLines(r, func(lineNumber int, line string) error {
		fields := strings.Split(line, "\t")
		if len(fields) != 4 {
			return errors.NotValidf("line %d: %d fields in rating", lineNumber, len(fields))
		}
		score, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return errors.Annotatef(err, "line %d", lineNumber)
		}
		timestamp, err := strconv.ParseInt(fields[3], 10, 64)
		if err != nil {
			return errors.Annotatef(err, "line %d", lineNumber)
		}
		ratings = append(ratings, data.Rating{
			UserId:    fields[0],
			ItemId:    fields[1],
			Score:     score,
			Timestamp: time.Unix(timestamp, 0).UTC(),
		})
		return nil
	})
	return ratings, err
}

// stripYear removes the trailing " (yyyy)" from a movie title.
func stripYear(title string) string {
	if len(title) < 7 {
		return ""
	}
	return title[:len(title)-7]
}

func scanLines(r io.Reader, handle func(lineNumber int, line string) error) error {
	scanner := bufio.NewScanner(r)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := handle(lineNumber, line); err != nil {
			return err
		}
	}
	return errors.Trace(scanner.Err())
}

// MovieLensFiles locates the files of MovieLens 100k.
type MovieLensFiles struct {
	Users   string
	Items   string
	Ratings string
}

// ImportSummary counts records written by an import.
type ImportSummary struct {
	Users   int
	Items   int
	Ratings int
}

// ImportMovieLens replaces everything in the database by MovieLens 100k records.
// Progress bars are written to w.
func ImportMovieLens(ctx context.Context, database data.Database, files MovieLensFiles, batchSize int, w io.Writer) (ImportSummary, error) {
	var summary ImportSummary
	users, err := parseFile(files.Users, ParseUsers)
	if err != nil {
		return summary, errors.Trace(err)
	}
	items, err := parseFile(files.Items, ParseItems)
	if err != nil {
		return summary, errors.Trace(err)
	}
	ratings, err := parseFile(files.Ratings, ParseRatings)
	if err != nil {
		return summary, errors.Trace(err)
	}
	// remove previous records
	if err = database.Purge(); err != nil {
		return summary, errors.Trace(err)
	}
	start := time.Now()
	if err = insertBatches(w, "Loading users", users, batchSize, func(batch []data.User) error {
		return database.BatchInsertUsers(ctx, batch)
	}); err != nil {
		return summary, errors.Trace(err)
	}
	if err = insertBatches(w, "Loading movies", items, batchSize, func(batch []data.Item) error {
		return database.BatchInsertItems(ctx, batch)
	}); err != nil {
		return summary, errors.Trace(err)
	}
	if err = insertBatches(w, "Loading ratings", ratings, batchSize, func(batch []data.Rating) error {
		return database.BatchInsertRatings(ctx, batch, true)
	}); err != nil {
		return summary, errors.Trace(err)
	}
	summary = ImportSummary{Users: len(users), Items: len(items), Ratings: len(ratings)}
	log.Logger().Info("import movielens dataset",
		zap.Int("n_users", summary.Users),
		zap.Int("n_items", summary.Items),
		zap.Int("n_ratings", summary.Ratings),
		zap.Duration("used_time", time.Since(start)))
	return summary, nil
}

func parseFile[T any](path string, parse func(io.Reader) ([]T, error)) ([]T, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer file.Close()
	records, err := parse(file)
	if err != nil {
		return nil, errors.Annotate(err, path)
	}
	return records, nil
}

func insertBatches[T any](w io.Writer, description string, records []T, batchSize int, insert func([]T) error) error {
	if batchSize <= 0 {
		batchSize = max(len(records), 1)
	}
	bar := progressbar.NewOptions(len(records),
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionOnCompletion(func() {
			_, _ = io.WriteString(w, "\n")
		}))
	for i := 0; i < len(records); i += batchSize {
		j := min(i+batchSize, len(records))
		if err := insert(records[i:j]); err != nil {
			return errors.Trace(err)
		}
		_ = bar.Add(j - i)
	}
	return bar.Finish()
}
