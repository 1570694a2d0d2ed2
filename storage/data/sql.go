// Copyright 2020 gorse Project Authors
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

package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/gorse-io/ratings/storage"
	"github.com/juju/errors"
	_ "github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	_ "modernc.org/sqlite"
)

const bufSize = 1

type SQLDriver int

const (
	MySQL SQLDriver = iota
	Postgres
	SQLite
)

// SQLUser is the schema of the users table.
type SQLUser struct {
	UserId  string `gorm:"column:user_id;type:varchar(256) not null;primaryKey"`
	Email   string `gorm:"column:email;type:varchar(256) not null default ''"`
	Age     int    `gorm:"column:age;not null;default:0"`
	Zipcode string `gorm:"column:zipcode;type:varchar(32) not null default ''"`
}

// SQLItem is the schema of the items table.
type SQLItem struct {
	ItemId     string    `gorm:"column:item_id;type:varchar(256) not null;primaryKey"`
	Title      string    `gorm:"column:title;type:varchar(512) not null default ''"`
	ReleasedAt time.Time `gorm:"column:released_at"`
	ImdbUrl    string    `gorm:"column:imdb_url;type:varchar(512) not null default ''"`
}

// SQLRating is the schema of the ratings table.
type SQLRating struct {
	UserId    string    `gorm:"column:user_id;type:varchar(256) not null;primaryKey;index:user_id_index"`
	ItemId    string    `gorm:"column:item_id;type:varchar(256) not null;primaryKey;index:item_id_index"`
	Score     float64   `gorm:"column:score;not null"`
	Timestamp time.Time `gorm:"column:time_stamp"`
}

// SQLDatabase use MySQL, Postgres or SQLite as data storage.
type SQLDatabase struct {
	storage.TablePrefix
	gormDB *gorm.DB
	client *sql.DB
	driver SQLDriver
}

// Init tables and indices in SQL database.
func (d *SQLDatabase) Init() error {
	switch d.driver {
	case MySQL:
		if err := d.gormDB.Set("gorm:table_options", "ENGINE=InnoDB").AutoMigrate(SQLUser{}, SQLItem{}, SQLRating{}); err != nil {
			return errors.Trace(err)
		}
	case Postgres, SQLite:
		if err := d.gormDB.AutoMigrate(SQLUser{}, SQLItem{}, SQLRating{}); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

func (d *SQLDatabase) Ping() error {
	return d.client.Ping()
}

// Close SQL database.
func (d *SQLDatabase) Close() error {
	return d.client.Close()
}

func (d *SQLDatabase) Purge() error {
	tables := []string{d.RatingsTable(), d.UsersTable(), d.ItemsTable()}
	for _, tableName := range tables {
		if err := d.gormDB.Exec(fmt.Sprintf("DELETE FROM %s", tableName)).Error; err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// BatchInsertUsers inserts users into the users table. Existing users are overwritten.
func (d *SQLDatabase) BatchInsertUsers(ctx context.Context, users []User) error {
	if len(users) == 0 {
		return nil
	}
	rows := make([]SQLUser, 0, len(users))
	for _, user := range users {
		rows = append(rows, SQLUser(user))
	}
	err := d.gormDB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "age", "zipcode"}),
	}).Create(&rows).Error
	return errors.Trace(err)
}

func (d *SQLDatabase) GetUser(ctx context.Context, userId string) (User, error) {
	var result []SQLUser
	err := d.gormDB.WithContext(ctx).Table(d.UsersTable()).
		Where("user_id = ?", userId).Limit(1).Find(&result).Error
	if err != nil {
		return User{}, errors.Trace(err)
	}
	if len(result) == 0 {
		return User{}, errors.Annotate(ErrUserNotExist, userId)
	}
	return User(result[0]), nil
}

func (d *SQLDatabase) GetUsers(ctx context.Context, cursor string, n int) (string, []User, error) {
	var result []SQLUser
	err := d.gormDB.WithContext(ctx).Table(d.UsersTable()).
		Where("user_id > ?", cursor).Order("user_id").Limit(n).Find(&result).Error
	if err != nil {
		return "", nil, errors.Trace(err)
	}
	users := make([]User, 0, len(result))
	for _, row := range result {
		users = append(users, User(row))
	}
	if n > 0 && len(users) == n {
		cursor = users[n-1].UserId
	} else {
		cursor = ""
	}
	return cursor, users, nil
}

// BatchInsertItems inserts items into the items table. Existing items are overwritten.
func (d *SQLDatabase) BatchInsertItems(ctx context.Context, items []Item) error {
	if len(items) == 0 {
		return nil
	}
	rows := make([]SQLItem, 0, len(items))
	for _, item := range items {
		rows = append(rows, SQLItem(item))
	}
	err := d.gormDB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "item_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "released_at", "imdb_url"}),
	}).Create(&rows).Error
	return errors.Trace(err)
}

func (d *SQLDatabase) GetItem(ctx context.Context, itemId string) (Item, error) {
	var result []SQLItem
	err := d.gormDB.WithContext(ctx).Table(d.ItemsTable()).
		Where("item_id = ?", itemId).Limit(1).Find(&result).Error
	if err != nil {
		return Item{}, errors.Trace(err)
	}
	if len(result) == 0 {
		return Item{}, errors.Annotate(ErrItemNotExist, itemId)
	}
	return Item(result[0]), nil
}

func (d *SQLDatabase) GetItems(ctx context.Context, cursor string, n int) (string, []Item, error) {
	var result []SQLItem
	err := d.gormDB.WithContext(ctx).Table(d.ItemsTable()).
		Where("item_id > ?", cursor).Order("item_id").Limit(n).Find(&result).Error
	if err != nil {
		return "", nil, errors.Trace(err)
	}
	items := make([]Item, 0, len(result))
	for _, row := range result {
		items = append(items, Item(row))
	}
	if n > 0 && len(items) == n {
		cursor = items[n-1].ItemId
	} else {
		cursor = ""
	}
	return cursor, items, nil
}

func (d *SQLDatabase) BatchInsertRatings(ctx context.Context, ratings []Rating, overwrite bool) error {
	if len(ratings) == 0 {
		return nil
	}
	rows := make([]SQLRating, 0, len(ratings))
	for _, rating := range ratings {
		rows = append(rows, SQLRating(rating))
	}
	onConflict := clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "item_id"}},
	}
	if overwrite {
		onConflict.DoUpdates = clause.AssignmentColumns([]string{"score", "time_stamp"})
	} else {
		onConflict.DoNothing = true
	}
	err := d.gormDB.WithContext(ctx).Clauses(onConflict).Create(&rows).Error
	return errors.Trace(err)
}

func (d *SQLDatabase) SetRating(ctx context.Context, rating Rating) error {
	return d.BatchInsertRatings(ctx, []Rating{rating}, true)
}

func (d *SQLDatabase) GetRating(ctx context.Context, userId, itemId string) (Rating, error) {
	var result []SQLRating
	err := d.gormDB.WithContext(ctx).Table(d.RatingsTable()).
		Where("user_id = ? AND item_id = ?", userId, itemId).Limit(1).Find(&result).Error
	if err != nil {
		return Rating{}, errors.Trace(err)
	}
	if len(result) == 0 {
		return Rating{}, errors.Annotatef(ErrRatingNotExist, "user %s item %s", userId, itemId)
	}
	return Rating(result[0]), nil
}

func (d *SQLDatabase) GetUserRatings(ctx context.Context, userId string) ([]Rating, error) {
	var result []SQLRating
	err := d.gormDB.WithContext(ctx).Table(d.RatingsTable()).
		Where("user_id = ?", userId).Order("item_id").Find(&result).Error
	if err != nil {
		return nil, errors.Trace(err)
	}
	return fromSQLRatings(result), nil
}

func (d *SQLDatabase) GetItemRatings(ctx context.Context, itemId string) ([]Rating, error) {
	var result []SQLRating
	err := d.gormDB.WithContext(ctx).Table(d.RatingsTable()).
		Where("item_id = ?", itemId).Order("user_id").Find(&result).Error
	if err != nil {
		return nil, errors.Trace(err)
	}
	return fromSQLRatings(result), nil
}

// GetRatingStream reads all ratings by batch, ordered by user then item.
func (d *SQLDatabase) GetRatingStream(ctx context.Context, batchSize int) (chan []Rating, chan error) {
	ratingChan := make(chan []Rating, bufSize)
	errChan := make(chan error, 1)
	go func() {
		defer close(ratingChan)
		defer close(errChan)
		// send query
		result, err := d.gormDB.WithContext(ctx).Table(d.RatingsTable()).
			Select("user_id, item_id, score, time_stamp").
			Order("user_id, item_id").Rows()
		if err != nil {
			errChan <- errors.Trace(err)
			return
		}
		// fetch result
		ratings := make([]Rating, 0, batchSize)
		defer result.Close()
		for result.Next() {
			var rating Rating
			if err = d.gormDB.ScanRows(result, &rating); err != nil {
				errChan <- errors.Trace(err)
				return
			}
			ratings = append(ratings, rating)
			if len(ratings) == batchSize {
				ratingChan <- ratings
				ratings = make([]Rating, 0, batchSize)
			}
		}
		if err = result.Err(); err != nil {
			errChan <- errors.Trace(err)
			return
		}
		if len(ratings) > 0 {
			ratingChan <- ratings
		}
		errChan <- nil
	}()
	return ratingChan, errChan
}

func fromSQLRatings(rows []SQLRating) []Rating {
	ratings := make([]Rating, 0, len(rows))
	for _, row := range rows {
		ratings = append(ratings, Rating(row))
	}
	return ratings
}
