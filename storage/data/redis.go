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
	"encoding/json"
	"strings"

	"github.com/gorse-io/ratings/storage"
	"github.com/juju/errors"
	"github.com/redis/go-redis/v9"
)

const (
	prefixUser        = "user/"         // prefix for users
	prefixItem        = "item/"         // prefix for items
	prefixRating      = "rating/"       // prefix for ratings
	prefixUserRatings = "user_ratings/" // prefix for items rated by a user
	prefixItemRatings = "item_ratings/" // prefix for users who rated an item
)

// Redis use Redis as data storage, but used for test only.
type Redis struct {
	storage.TablePrefix
	client *redis.Client
}

// Init does nothing.
func (r *Redis) Init() error {
	return nil
}

func (r *Redis) Ping() error {
	return r.client.Ping(context.Background()).Err()
}

// Close Redis connection.
func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) Purge() error {
	ctx := context.Background()
	patterns := []string{
		r.Key(prefixUser + "*"),
		r.Key(prefixItem + "*"),
		r.Key(prefixRating + "*"),
		r.Key(prefixUserRatings + "*"),
		r.Key(prefixItemRatings + "*"),
	}
	for _, pattern := range patterns {
		iter := r.client.Scan(ctx, 0, pattern, 0).Iterator()
		for iter.Next(ctx) {
			if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
				return errors.Trace(err)
			}
		}
		if err := iter.Err(); err != nil {
			return errors.Trace(err)
		}
	}
	return errors.Trace(r.client.Del(ctx, r.UsersTable(), r.ItemsTable(), r.RatingsTable()).Err())
}

func (r *Redis) BatchInsertUsers(ctx context.Context, users []User) error {
	for _, user := range users {
		data, err := json.Marshal(user)
		if err != nil {
			return errors.Trace(err)
		}
		if _, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, r.Key(prefixUser+user.UserId), data, 0)
			pipe.ZAdd(ctx, r.UsersTable(), redis.Z{Member: user.UserId})
			return nil
		}); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

func (r *Redis) GetUser(ctx context.Context, userId string) (User, error) {
	var user User
	if err := r.get(ctx, r.Key(prefixUser+userId), &user); err == redis.Nil {
		return User{}, errors.Annotate(ErrUserNotExist, userId)
	} else if err != nil {
		return User{}, errors.Trace(err)
	}
	return user, nil
}

func (r *Redis) GetUsers(ctx context.Context, cursor string, n int) (string, []User, error) {
	ids, cursor, err := r.scanIndex(ctx, r.UsersTable(), cursor, n)
	if err != nil {
		return "", nil, errors.Trace(err)
	}
	users := make([]User, 0, len(ids))
	for _, id := range ids {
		user, err := r.GetUser(ctx, id)
		if err != nil {
			return "", nil, errors.Trace(err)
		}
		users = append(users, user)
	}
	return cursor, users, nil
}

func (r *Redis) BatchInsertItems(ctx context.Context, items []Item) error {
	for _, item := range items {
		data, err := json.Marshal(item)
		if err != nil {
			return errors.Trace(err)
		}
		if _, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, r.Key(prefixItem+item.ItemId), data, 0)
			pipe.ZAdd(ctx, r.ItemsTable(), redis.Z{Member: item.ItemId})
			return nil
		}); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

func (r *Redis) GetItem(ctx context.Context, itemId string) (Item, error) {
	var item Item
	if err := r.get(ctx, r.Key(prefixItem+itemId), &item); err == redis.Nil {
		return Item{}, errors.Annotate(ErrItemNotExist, itemId)
	} else if err != nil {
		return Item{}, errors.Trace(err)
	}
	return item, nil
}

func (r *Redis) GetItems(ctx context.Context, cursor string, n int) (string, []Item, error) {
	ids, cursor, err := r.scanIndex(ctx, r.ItemsTable(), cursor, n)
	if err != nil {
		return "", nil, errors.Trace(err)
	}
	items := make([]Item, 0, len(ids))
	for _, id := range ids {
		item, err := r.GetItem(ctx, id)
		if err != nil {
			return "", nil, errors.Trace(err)
		}
		items = append(items, item)
	}
	return cursor, items, nil
}

func (r *Redis) BatchInsertRatings(ctx context.Context, ratings []Rating, overwrite bool) error {
	for _, rating := range ratings {
		key := r.Key(prefixRating + rating.UserId + "/" + rating.ItemId)
		data, err := json.Marshal(rating)
		if err != nil {
			return errors.Trace(err)
		}
		if !overwrite {
			exists, err := r.client.Exists(ctx, key).Result()
			if err != nil {
				return errors.Trace(err)
			} else if exists > 0 {
				continue
			}
		}
		if _, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.ZAdd(ctx, r.Key(prefixUserRatings+rating.UserId), redis.Z{Member: rating.ItemId})
			pipe.ZAdd(ctx, r.Key(prefixItemRatings+rating.ItemId), redis.Z{Member: rating.UserId})
			pipe.ZAdd(ctx, r.RatingsTable(), redis.Z{Member: rating.UserId + "/" + rating.ItemId})
			return nil
		}); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

func (r *Redis) SetRating(ctx context.Context, rating Rating) error {
	return r.BatchInsertRatings(ctx, []Rating{rating}, true)
}

func (r *Redis) GetRating(ctx context.Context, userId, itemId string) (Rating, error) {
	var rating Rating
	if err := r.get(ctx, r.Key(prefixRating+userId+"/"+itemId), &rating); err == redis.Nil {
		return Rating{}, errors.Annotatef(ErrRatingNotExist, "user %s item %s", userId, itemId)
	} else if err != nil {
		return Rating{}, errors.Trace(err)
	}
	return rating, nil
}

func (r *Redis) GetUserRatings(ctx context.Context, userId string) ([]Rating, error) {
	itemIds, err := r.client.ZRange(ctx, r.Key(prefixUserRatings+userId), 0, -1).Result()
	if err != nil {
		return nil, errors.Trace(err)
	}
	ratings := make([]Rating, 0, len(itemIds))
	for _, itemId := range itemIds {
		rating, err := r.GetRating(ctx, userId, itemId)
		if err != nil {
			return nil, errors.Trace(err)
		}
		ratings = append(ratings, rating)
	}
	return ratings, nil
}

func (r *Redis) GetItemRatings(ctx context.Context, itemId string) ([]Rating, error) {
	userIds, err := r.client.ZRange(ctx, r.Key(prefixItemRatings+itemId), 0, -1).Result()
	if err != nil {
		return nil, errors.Trace(err)
	}
	ratings := make([]Rating, 0, len(userIds))
	for _, userId := range userIds {
		rating, err := r.GetRating(ctx, userId, itemId)
		if err != nil {
			return nil, errors.Trace(err)
		}
		ratings = append(ratings, rating)
	}
	return ratings, nil
}

func (r *Redis) GetRatingStream(ctx context.Context, batchSize int) (chan []Rating, chan error) {
	ratingChan := make(chan []Rating, bufSize)
	errChan := make(chan error, 1)
	go func() {
		defer close(ratingChan)
		defer close(errChan)
		cursor := ""
		for {
			keys, next, err := r.scanIndex(ctx, r.RatingsTable(), cursor, batchSize)
			if err != nil {
				errChan <- errors.Trace(err)
				return
			}
			ratings := make([]Rating, 0, len(keys))
			for _, key := range keys {
				userId, itemId, _ := strings.Cut(key, "/")
				rating, err := r.GetRating(ctx, userId, itemId)
				if err != nil {
					errChan <- errors.Trace(err)
					return
				}
				ratings = append(ratings, rating)
			}
			if len(ratings) > 0 {
				ratingChan <- ratings
			}
			if next == "" {
				break
			}
			cursor = next
		}
		errChan <- nil
	}()
	return ratingChan, errChan
}

func (r *Redis) get(ctx context.Context, key string, v any) error {
	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(val), v)
}

// scanIndex returns members of a lexicographical index after the cursor.
func (r *Redis) scanIndex(ctx context.Context, key, cursor string, n int) ([]string, string, error) {
	start := "-"
	if cursor != "" {
		start = "(" + cursor
	}
	members, err := r.client.ZRangeByLex(ctx, key, &redis.ZRangeBy{
		Min:   start,
		Max:   "+",
		Count: int64(n),
	}).Result()
	if err != nil {
		return nil, "", err
	}
	if n > 0 && len(members) == n {
		cursor = members[n-1]
	} else {
		cursor = ""
	}
	return members, cursor, nil
}
