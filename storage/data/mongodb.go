// Copyright 2021 gorse Project Authors
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

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gorse-io/ratings/storage"
	"github.com/juju/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDB is the data storage based on MongoDB.
type MongoDB struct {
	storage.TablePrefix
	client *mongo.Client
	dbName string
}

// Init collections and indices in MongoDB.
func (db *MongoDB) Init() error {
	ctx := context.Background()
	d := db.client.Database(db.dbName)
	// list collections
	collections, err := d.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		return errors.Trace(err)
	}
	existed := mapset.NewSet(collections...)
	// create collections
	for _, name := range []string{db.UsersTable(), db.ItemsTable(), db.RatingsTable()} {
		if !existed.Contains(name) {
			if err = d.CreateCollection(ctx, name); err != nil {
				return errors.Trace(err)
			}
		}
	}
	// create index
	_, err = d.Collection(db.UsersTable()).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.M{"userid": 1},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return errors.Trace(err)
	}
	_, err = d.Collection(db.ItemsTable()).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.M{"itemid": 1},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return errors.Trace(err)
	}
	_, err = d.Collection(db.RatingsTable()).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{"userid", 1}, {"itemid", 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.M{"itemid": 1}},
	})
	return errors.Trace(err)
}

func (db *MongoDB) Ping() error {
	return db.client.Ping(context.Background(), nil)
}

// Close connection to MongoDB.
func (db *MongoDB) Close() error {
	return db.client.Disconnect(context.Background())
}

func (db *MongoDB) Purge() error {
	ctx := context.Background()
	d := db.client.Database(db.dbName)
	for _, name := range []string{db.UsersTable(), db.ItemsTable(), db.RatingsTable()} {
		if _, err := d.Collection(name).DeleteMany(ctx, bson.M{}); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

func (db *MongoDB) BatchInsertUsers(ctx context.Context, users []User) error {
	if len(users) == 0 {
		return nil
	}
	c := db.client.Database(db.dbName).Collection(db.UsersTable())
	var models []mongo.WriteModel
	for _, user := range users {
		models = append(models, mongo.NewUpdateOneModel().
			SetUpsert(true).
			SetFilter(bson.M{"userid": bson.M{"$eq": user.UserId}}).
			SetUpdate(bson.M{"$set": user}))
	}
	_, err := c.BulkWrite(ctx, models)
	return errors.Trace(err)
}

func (db *MongoDB) GetUser(ctx context.Context, userId string) (user User, err error) {
	c := db.client.Database(db.dbName).Collection(db.UsersTable())
	r := c.FindOne(ctx, bson.M{"userid": userId})
	if err = r.Err(); err == mongo.ErrNoDocuments {
		err = errors.Annotate(ErrUserNotExist, userId)
		return
	} else if err != nil {
		return user, errors.Trace(err)
	}
	err = errors.Trace(r.Decode(&user))
	return
}

func (db *MongoDB) GetUsers(ctx context.Context, cursor string, n int) (string, []User, error) {
	c := db.client.Database(db.dbName).Collection(db.UsersTable())
	opt := options.Find()
	opt.SetLimit(int64(n))
	opt.SetSort(bson.D{{"userid", 1}})
	r, err := c.Find(ctx, bson.M{"userid": bson.M{"$gt": cursor}}, opt)
	if err != nil {
		return "", nil, errors.Trace(err)
	}
	var users []User
	if err = r.All(ctx, &users); err != nil {
		return "", nil, errors.Trace(err)
	}
	if n > 0 && len(users) == n {
		cursor = users[n-1].UserId
	} else {
		cursor = ""
	}
	return cursor, users, nil
}

func (db *MongoDB) BatchInsertItems(ctx context.Context, items []Item) error {
	if len(items) == 0 {
		return nil
	}
	c := db.client.Database(db.dbName).Collection(db.ItemsTable())
	var models []mongo.WriteModel
	for _, item := range items {
		models = append(models, mongo.NewUpdateOneModel().
			SetUpsert(true).
			SetFilter(bson.M{"itemid": bson.M{"$eq": item.ItemId}}).
			SetUpdate(bson.M{"$set": item}))
	}
	_, err := c.BulkWrite(ctx, models)
	return errors.Trace(err)
}

func (db *MongoDB) GetItem(ctx context.Context, itemId string) (item Item, err error) {
	c := db.client.Database(db.dbName).Collection(db.ItemsTable())
	r := c.FindOne(ctx, bson.M{"itemid": itemId})
	if err = r.Err(); err == mongo.ErrNoDocuments {
		err = errors.Annotate(ErrItemNotExist, itemId)
		return
	} else if err != nil {
		return item, errors.Trace(err)
	}
	err = errors.Trace(r.Decode(&item))
	return
}

func (db *MongoDB) GetItems(ctx context.Context, cursor string, n int) (string, []Item, error) {
	c := db.client.Database(db.dbName).Collection(db.ItemsTable())
	opt := options.Find()
	opt.SetLimit(int64(n))
	opt.SetSort(bson.D{{"itemid", 1}})
	r, err := c.Find(ctx, bson.M{"itemid": bson.M{"$gt": cursor}}, opt)
	if err != nil {
		return "", nil, errors.Trace(err)
	}
	var items []Item
	if err = r.All(ctx, &items); err != nil {
		return "", nil, errors.Trace(err)
	}
	if n > 0 && len(items) == n {
		cursor = items[n-1].ItemId
	} else {
		cursor = ""
	}
	return cursor, items, nil
}

func (db *MongoDB) BatchInsertRatings(ctx context.Context, ratings []Rating, overwrite bool) error {
	if len(ratings) == 0 {
		return nil
	}
	c := db.client.Database(db.dbName).Collection(db.RatingsTable())
	var models []mongo.WriteModel
	for _, rating := range ratings {
		filter := bson.M{
			"userid": bson.M{"$eq": rating.UserId},
			"itemid": bson.M{"$eq": rating.ItemId},
		}
		if overwrite {
			models = append(models, mongo.NewUpdateOneModel().
				SetUpsert(true).
				SetFilter(filter).
				SetUpdate(bson.M{"$set": rating}))
		} else {
			models = append(models, mongo.NewUpdateOneModel().
				SetUpsert(true).
				SetFilter(filter).
				SetUpdate(bson.M{"$setOnInsert": rating}))
		}
	}
	_, err := c.BulkWrite(ctx, models)
	return errors.Trace(err)
}

func (db *MongoDB) SetRating(ctx context.Context, rating Rating) error {
	return db.BatchInsertRatings(ctx, []Rating{rating}, true)
}

func (db *MongoDB) GetRating(ctx context.Context, userId, itemId string) (rating Rating, err error) {
	c := db.client.Database(db.dbName).Collection(db.RatingsTable())
	r := c.FindOne(ctx, bson.M{"userid": userId, "itemid": itemId})
	if err = r.Err(); err == mongo.ErrNoDocuments {
		err = errors.Annotatef(ErrRatingNotExist, "user %s item %s", userId, itemId)
		return
	} else if err != nil {
		return rating, errors.Trace(err)
	}
	err = errors.Trace(r.Decode(&rating))
	return
}

func (db *MongoDB) GetUserRatings(ctx context.Context, userId string) ([]Rating, error) {
	return db.findRatings(ctx, bson.M{"userid": userId}, bson.D{{"itemid", 1}})
}

func (db *MongoDB) GetItemRatings(ctx context.Context, itemId string) ([]Rating, error) {
	return db.findRatings(ctx, bson.M{"itemid": itemId}, bson.D{{"userid", 1}})
}

func (db *MongoDB) findRatings(ctx context.Context, filter bson.M, sort bson.D) ([]Rating, error) {
	c := db.client.Database(db.dbName).Collection(db.RatingsTable())
	r, err := c.Find(ctx, filter, options.Find().SetSort(sort))
	if err != nil {
		return nil, errors.Trace(err)
	}
	ratings := make([]Rating, 0)
	if err = r.All(ctx, &ratings); err != nil {
		return nil, errors.Trace(err)
	}
	return ratings, nil
}

// GetRatingStream reads all ratings from MongoDB by batch.
func (db *MongoDB) GetRatingStream(ctx context.Context, batchSize int) (chan []Rating, chan error) {
	ratingChan := make(chan []Rating, bufSize)
	errChan := make(chan error, 1)
	go func() {
		defer close(ratingChan)
		defer close(errChan)
		c := db.client.Database(db.dbName).Collection(db.RatingsTable())
		opt := options.Find().SetSort(bson.D{{"userid", 1}, {"itemid", 1}})
		r, err := c.Find(ctx, bson.M{}, opt)
		if err != nil {
			errChan <- errors.Trace(err)
			return
		}
		defer r.Close(ctx)
		ratings := make([]Rating, 0, batchSize)
		for r.Next(ctx) {
			var rating Rating
			if err = r.Decode(&rating); err != nil {
				errChan <- errors.Trace(err)
				return
			}
			ratings = append(ratings, rating)
			if len(ratings) == batchSize {
				ratingChan <- ratings
				ratings = make([]Rating, 0, batchSize)
			}
		}
		if err = r.Err(); err != nil {
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
