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

package server

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/araddon/dateparse"
	restfulspec "github.com/emicklei/go-restful-openapi/v2"
	"github.com/emicklei/go-restful/v3"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorse-io/ratings/base/log"
	"github.com/gorse-io/ratings/common/heap"
	"github.com/gorse-io/ratings/common/parallel"
	"github.com/gorse-io/ratings/config"
	"github.com/gorse-io/ratings/dataset"
	"github.com/gorse-io/ratings/logics"
	"github.com/gorse-io/ratings/storage/data"
	"github.com/jellydator/ttlcache/v3"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.opentelemetry.io/contrib/instrumentation/github.com/emicklei/go-restful/otelrestful"
	"go.uber.org/zap"
)

const batchSize = 10000

// RestServer implements a REST-ful API server.
type RestServer struct {
	Config     *config.Config
	DataClient data.Database
	WebService *restful.WebService

	predictor    *logics.Predictor
	similarities *ttlcache.Cache[string, float64]
	limiter      parallel.RateLimiter
	validate     *validator.Validate

	datasetMutex sync.RWMutex
	dataset      *dataset.Dataset

	// generation is bumped by every rating mutation. A similarity computed
	// across a bump is not cached.
	cacheMutex sync.Mutex
	generation atomic.Uint64
}

// NewRestServer creates a REST-ful API server on a database.
func NewRestServer(cfg *config.Config, dataClient data.Database) (*RestServer, error) {
	predictor, err := logics.NewPredictor(cfg.Predict)
	if err != nil {
		return nil, errors.Trace(err)
	}
	s := &RestServer{
		Config:     cfg,
		DataClient: dataClient,
		WebService: new(restful.WebService),
		predictor:  predictor,
		limiter:    parallel.NewRateLimiter(cfg.Server.RatingWriteLimit),
		validate:   validator.New(),
		dataset:    dataset.NewDataset(time.Now(), 0, 0),
	}
	if cfg.Server.SimilarityCacheTTL > 0 {
		s.similarities = ttlcache.New[string, float64](
			ttlcache.WithTTL[string, float64](cfg.Server.SimilarityCacheTTL),
			ttlcache.WithDisableTouchOnHit[string, float64](),
		)
		go s.similarities.Start()
		predictor.SetSimilarity(func(source logics.RatingSource, userA, userB string) float64 {
			return s.similarity(source, userA, userB)
		})
	}
	s.CreateWebService()
	return s, nil
}

// Close stops background jobs of the server.
func (s *RestServer) Close() {
	if s.similarities != nil {
		s.similarities.Stop()
	}
}

// Dataset returns the current snapshot of ratings.
func (s *RestServer) Dataset() *dataset.Dataset {
	s.datasetMutex.RLock()
	defer s.datasetMutex.RUnlock()
	return s.dataset
}

// LoadDataset replaces the snapshot of ratings by ratings in the database.
func (s *RestServer) LoadDataset(ctx context.Context) error {
	snapshot, err := dataset.LoadFromDatabase(ctx, s.DataClient, batchSize)
	if err != nil {
		return errors.Trace(err)
	}
	s.datasetMutex.Lock()
	s.dataset = snapshot
	s.datasetMutex.Unlock()
	s.cacheMutex.Lock()
	s.generation.Add(1)
	if s.similarities != nil {
		s.similarities.DeleteAll()
	}
	s.cacheMutex.Unlock()
	DatasetRatings.Set(float64(snapshot.CountRatings()))
	return nil
}

func similarityKey(userA, userB string) string {
	if userA > userB {
		userA, userB = userB, userA
	}
	return userA + "/" + userB
}

func (s *RestServer) similarity(source logics.RatingSource, userA, userB string) float64 {
	if s.similarities == nil {
		return logics.SimilarityBetweenUsers(source.RatingsOf(userA), source.RatingsOf(userB))
	}
	key := similarityKey(userA, userB)
	if item := s.similarities.Get(key); item != nil {
		SimilarityCacheHits.Inc()
		return item.Value()
	}
	SimilarityCacheMisses.Inc()
	generation := s.generation.Load()
	similarity := logics.SimilarityBetweenUsers(source.RatingsOf(userA), source.RatingsOf(userB))
	s.cacheMutex.Lock()
	defer s.cacheMutex.Unlock()
	if s.generation.Load() == generation {
		s.similarities.Set(key, similarity, ttlcache.DefaultTTL)
	}
	return similarity
}

// Similarity returns the similarity between two users.
func (s *RestServer) Similarity(userA, userB string) float64 {
	return s.similarity(s.Dataset(), userA, userB)
}

// invalidate evicts cached similarities involving the user.
func (s *RestServer) invalidate(userId string) {
	s.cacheMutex.Lock()
	defer s.cacheMutex.Unlock()
	s.generation.Add(1)
	if s.similarities == nil {
		return
	}
	for _, key := range s.similarities.Keys() {
		userA, userB, _ := strings.Cut(key, "/")
		if userA == userId || userB == userId {
			s.similarities.Delete(key)
		}
	}
}

// SetRating writes a rating to the database and the snapshot.
func (s *RestServer) SetRating(ctx context.Context, rating data.Rating) error {
	if err := s.DataClient.SetRating(ctx, rating); err != nil {
		return errors.Trace(err)
	}
	s.Dataset().SetRating(logics.RatingEntry{
		UserId: rating.UserId,
		ItemId: rating.ItemId,
		Score:  rating.Score,
	})
	s.invalidate(rating.UserId)
	RatingWritesTotal.Inc()
	return nil
}

// Predict estimates the score of the user on the item.
func (s *RestServer) Predict(userId, itemId string) (logics.Prediction, error) {
	start := time.Now()
	prediction, err := s.predictor.Predict(s.Dataset(), userId, itemId)
	PredictSeconds.Observe(time.Since(start).Seconds())
	if errors.Is(err, logics.ErrNoCandidates) {
		PredictTotal.WithLabelValues("no_candidates").Inc()
	} else if err != nil {
		PredictTotal.WithLabelValues("error").Inc()
	} else {
		PredictTotal.WithLabelValues("ok").Inc()
	}
	return prediction, err
}

// Recommend predicts scores of items not rated by the user and returns the top n.
func (s *RestServer) Recommend(ctx context.Context, userId string, n int) ([]logics.Prediction, error) {
	start := time.Now()
	snapshot := s.Dataset()
	rated := lo.SliceToMap(snapshot.RatingsOf(userId), func(r logics.ItemScore) (string, struct{}) {
		return r.ItemId, struct{}{}
	})
	itemIds := lo.Filter(snapshot.ItemIds(), func(itemId string, _ int) bool {
		_, exist := rated[itemId]
		return !exist
	})
	predictions := make([]*logics.Prediction, len(itemIds))
	err := parallel.Parallel(ctx, len(itemIds), s.Config.Server.NumJobs, func(_, jobId int) error {
		prediction, err := s.predictor.Predict(snapshot, userId, itemIds[jobId])
		if errors.Is(err, logics.ErrNoCandidates) {
			return nil
		} else if err != nil {
			return errors.Trace(err)
		}
		predictions[jobId] = &prediction
		return nil
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	filter := heap.NewTopKFilter[logics.Prediction, float64](n)
	for _, prediction := range predictions {
		if prediction != nil {
			filter.Push(*prediction, prediction.Score)
		}
	}
	results := filter.PopAllValues()
	RecommendSeconds.Observe(time.Since(start).Seconds())
	return results, nil
}

// DisplayScore floors a prediction and clamps it into the rating scale.
func DisplayScore(score float64, cfg config.PredictConfig) int {
	display := math.Floor(score)
	display = math.Max(display, math.Ceil(cfg.MinScore))
	display = math.Min(display, math.Floor(cfg.MaxScore))
	return int(display)
}

// RequestIdFilter attaches a request id to every response.
func RequestIdFilter(req *restful.Request, resp *restful.Response, chain *restful.FilterChain) {
	requestId := req.HeaderParameter("X-Request-ID")
	if requestId == "" {
		requestId = uuid.NewString()
	}
	resp.Header().Set("X-Request-ID", requestId)
	chain.ProcessFilter(req, resp)
}

func LogFilter(req *restful.Request, resp *restful.Response, chain *restful.FilterChain) {
	start := time.Now()
	chain.ProcessFilter(req, resp)
	if req.Request.URL.Path != "/api/health" {
		log.ResponseLogger(resp).Info(fmt.Sprintf("%s %s", req.Request.Method, req.Request.URL),
			zap.Int("status_code", resp.StatusCode()),
			zap.Duration("duration", time.Since(start)))
	}
}

// CreateWebService creates web service.
func (s *RestServer) CreateWebService() {
	// Create a server
	ws := s.WebService
	ws.Consumes(restful.MIME_JSON).Produces(restful.MIME_JSON)
	ws.Path("/api/")
	ws.Filter(RequestIdFilter)
	ws.Filter(LogFilter)
	ws.Filter(otelrestful.OTelFilter("ratings"))

	ws.Route(ws.GET("/health").To(s.checkHealth).
		Doc("Check the health of the server.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"health"}).
		Writes(HealthStatus{}))

	/* Interactions with data store */

	// Insert users
	ws.Route(ws.POST("/users").To(s.insertUsers).
		Doc("Insert users.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"user"}).
		Param(ws.HeaderParameter("X-API-Key", "secret key for RESTful API")).
		Reads([]data.User{}).
		Writes(Success{}))
	// Get a user
	ws.Route(ws.GET("/user/{user-id}").To(s.getUser).
		Doc("Get a user.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"user"}).
		Param(ws.HeaderParameter("X-API-Key", "secret key for RESTful API")).
		Param(ws.PathParameter("user-id", "identifier of the user").DataType("string")).
		Writes(data.User{}))
	// Get users
	ws.Route(ws.GET("/users").To(s.getUsers).
		Doc("Get users.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"user"}).
		Param(ws.HeaderParameter("X-API-Key", "secret key for RESTful API")).
		Param(ws.QueryParameter("n", "number of returned users").DataType("integer")).
		Param(ws.QueryParameter("cursor", "cursor for next page").DataType("string")).
		Writes(UserIterator{}))
	// Get ratings of a user
	ws.Route(ws.GET("/user/{user-id}/ratings").To(s.getUserRatings).
		Doc("Get ratings of a user.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"rating"}).
		Param(ws.HeaderParameter("X-API-Key", "secret key for RESTful API")).
		Param(ws.PathParameter("user-id", "identifier of the user").DataType("string")).
		Writes([]data.Rating{}))

	// Insert items
	ws.Route(ws.POST("/items").To(s.insertItems).
		Doc("Insert items.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"item"}).
		Param(ws.HeaderParameter("X-API-Key", "secret key for RESTful API")).
		Reads([]data.Item{}).
		Writes(Success{}))
	// Get an item
	ws.Route(ws.GET("/item/{item-id}").To(s.getItem).
		Doc("Get an item.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"item"}).
		Param(ws.HeaderParameter("X-API-Key", "secret key for RESTful API")).
		Param(ws.PathParameter("item-id", "identifier of the item").DataType("string")).
		Writes(data.Item{}))
	// Get items
	ws.Route(ws.GET("/items").To(s.getItems).
		Doc("Get items.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"item"}).
		Param(ws.HeaderParameter("X-API-Key", "secret key for RESTful API")).
		Param(ws.QueryParameter("n", "number of returned items").DataType("integer")).
		Param(ws.QueryParameter("cursor", "cursor for next page").DataType("string")).
		Writes(ItemIterator{}))
	// Get ratings of an item
	ws.Route(ws.GET("/item/{item-id}/ratings").To(s.getItemRatings).
		Doc("Get ratings of an item.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"rating"}).
		Param(ws.HeaderParameter("X-API-Key", "secret key for RESTful API")).
		Param(ws.PathParameter("item-id", "identifier of the item").DataType("string")).
		Writes([]data.Rating{}))

	// Set a rating
	ws.Route(ws.PUT("/rating").To(s.setRating).
		Doc("Insert a rating or update the score of an existing rating.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"rating"}).
		Param(ws.HeaderParameter("X-API-Key", "secret key for RESTful API")).
		Reads(Rating{}).
		Writes(Success{}))
	// Reload ratings
	ws.Route(ws.POST("/dataset/reload").To(s.reloadDataset).
		Doc("Reload ratings from the database.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"rating"}).
		Param(ws.HeaderParameter("X-API-Key", "secret key for RESTful API")).
		Writes(Success{}))

	/* Recommendation */

	// Get similarity
	ws.Route(ws.GET("/similarity/{user-a}/{user-b}").To(s.getSimilarity).
		Doc("Get the similarity between two users.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"recommendation"}).
		Param(ws.HeaderParameter("X-API-Key", "secret key for RESTful API")).
		Param(ws.PathParameter("user-a", "identifier of a user").DataType("string")).
		Param(ws.PathParameter("user-b", "identifier of another user").DataType("string")).
		Writes(Similarity{}))
	// Predict a rating
	ws.Route(ws.GET("/predict/{user-id}/{item-id}").To(s.getPrediction).
		Doc("Predict the score of a user on an item.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"recommendation"}).
		Param(ws.HeaderParameter("X-API-Key", "secret key for RESTful API")).
		Param(ws.PathParameter("user-id", "identifier of the user").DataType("string")).
		Param(ws.PathParameter("item-id", "identifier of the item").DataType("string")).
		Writes(PredictResult{}))
	// Recommend items
	ws.Route(ws.GET("/recommend/{user-id}").To(s.getRecommend).
		Doc("Recommend unrated items with the highest predicted scores.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"recommendation"}).
		Param(ws.HeaderParameter("X-API-Key", "secret key for RESTful API")).
		Param(ws.PathParameter("user-id", "identifier of the user").DataType("string")).
		Param(ws.QueryParameter("n", "number of returned items").DataType("integer")).
		Writes([]Recommendation{}))
}

// ParseInt parses integers from the query parameter.
func ParseInt(request *restful.Request, name string, fallback int) (value int, err error) {
	valueString := request.QueryParameter(name)
	value, err = strconv.Atoi(valueString)
	if err != nil && valueString == "" {
		value = fallback
		err = nil
	}
	return
}

type HealthStatus struct {
	DataStoreConnected bool
	DataStoreError     string
	Ratings            int
	DatasetTimestamp   time.Time
}

func (s *RestServer) checkHealth(_ *restful.Request, response *restful.Response) {
	snapshot := s.Dataset()
	status := HealthStatus{
		DataStoreConnected: true,
		Ratings:            snapshot.CountRatings(),
		DatasetTimestamp:   snapshot.GetTimestamp(),
	}
	if err := s.DataClient.Ping(); err != nil {
		status.DataStoreConnected = false
		status.DataStoreError = err.Error()
	}
	if status.DataStoreConnected {
		Ok(response, status)
	} else {
		response.Header().Set("Access-Control-Allow-Origin", "*")
		if err := response.WriteHeaderAndJson(http.StatusServiceUnavailable, status, restful.MIME_JSON); err != nil {
			log.ResponseLogger(response).Error("failed to write json", zap.Error(err))
		}
	}
}

type Success struct {
	RowAffected int
}

func (s *RestServer) insertUsers(request *restful.Request, response *restful.Response) {
	// Authorize
	if !s.auth(request, response) {
		return
	}
	var users []data.User
	if err := request.ReadEntity(&users); err != nil {
		BadRequest(response, err)
		return
	}
	for _, user := range users {
		if err := s.validate.Struct(user); err != nil {
			BadRequest(response, err)
			return
		}
		if err := data.ValidateId(user.UserId); err != nil {
			BadRequest(response, err)
			return
		}
	}
	if err := s.DataClient.BatchInsertUsers(request.Request.Context(), users); err != nil {
		InternalServerError(response, err)
		return
	}
	Ok(response, Success{RowAffected: len(users)})
}

func (s *RestServer) getUser(request *restful.Request, response *restful.Response) {
	// Authorize
	if !s.auth(request, response) {
		return
	}
	userId := request.PathParameter("user-id")
	user, err := s.DataClient.GetUser(request.Request.Context(), userId)
	if err != nil {
		if errors.Is(err, data.ErrUserNotExist) {
			PageNotFound(response, err)
		} else {
			InternalServerError(response, err)
		}
		return
	}
	Ok(response, user)
}

type UserIterator struct {
	Cursor string
	Users  []data.User
}

func (s *RestServer) getUsers(request *restful.Request, response *restful.Response) {
	// Authorize
	if !s.auth(request, response) {
		return
	}
	cursor := request.QueryParameter("cursor")
	n, err := ParseInt(request, "n", s.Config.Server.DefaultN)
	if err != nil {
		BadRequest(response, err)
		return
	} else if n <= 0 {
		BadRequest(response, errors.NotValidf("n = %d", n))
		return
	}
	cursor, users, err := s.DataClient.GetUsers(request.Request.Context(), cursor, n)
	if err != nil {
		InternalServerError(response, err)
		return
	}
	Ok(response, UserIterator{Cursor: cursor, Users: users})
}

func (s *RestServer) getUserRatings(request *restful.Request, response *restful.Response) {
	// Authorize
	if !s.auth(request, response) {
		return
	}
	userId := request.PathParameter("user-id")
	ratings, err := s.DataClient.GetUserRatings(request.Request.Context(), userId)
	if err != nil {
		InternalServerError(response, err)
		return
	}
	Ok(response, ratings)
}

func (s *RestServer) insertItems(request *restful.Request, response *restful.Response) {
	// Authorize
	if !s.auth(request, response) {
		return
	}
	var items []data.Item
	if err := request.ReadEntity(&items); err != nil {
		BadRequest(response, err)
		return
	}
	for _, item := range items {
		if err := s.validate.Struct(item); err != nil {
			BadRequest(response, err)
			return
		}
		if err := data.ValidateId(item.ItemId); err != nil {
			BadRequest(response, err)
			return
		}
	}
	if err := s.DataClient.BatchInsertItems(request.Request.Context(), items); err != nil {
		InternalServerError(response, err)
		return
	}
	Ok(response, Success{RowAffected: len(items)})
}

func (s *RestServer) getItem(request *restful.Request, response *restful.Response) {
	// Authorize
	if !s.auth(request, response) {
		return
	}
	itemId := request.PathParameter("item-id")
	item, err := s.DataClient.GetItem(request.Request.Context(), itemId)
	if err != nil {
		if errors.Is(err, data.ErrItemNotExist) {
			PageNotFound(response, err)
		} else {
			InternalServerError(response, err)
		}
		return
	}
	Ok(response, item)
}

type ItemIterator struct {
	Cursor string
	Items  []data.Item
}

func (s *RestServer) getItems(request *restful.Request, response *restful.Response) {
	// Authorize
	if !s.auth(request, response) {
		return
	}
	cursor := request.QueryParameter("cursor")
	n, err := ParseInt(request, "n", s.Config.Server.DefaultN)
	if err != nil {
		BadRequest(response, err)
		return
	} else if n <= 0 {
		BadRequest(response, errors.NotValidf("n = %d", n))
		return
	}
	cursor, items, err := s.DataClient.GetItems(request.Request.Context(), cursor, n)
	if err != nil {
		InternalServerError(response, err)
		return
	}
	Ok(response, ItemIterator{Cursor: cursor, Items: items})
}

func (s *RestServer) getItemRatings(request *restful.Request, response *restful.Response) {
	// Authorize
	if !s.auth(request, response) {
		return
	}
	itemId := request.PathParameter("item-id")
	ratings, err := s.DataClient.GetItemRatings(request.Request.Context(), itemId)
	if err != nil {
		InternalServerError(response, err)
		return
	}
	Ok(response, ratings)
}

// Rating is the request body to set a rating.
type Rating struct {
	UserId    string `validate:"required"`
	ItemId    string `validate:"required"`
	Score     float64
	Timestamp string
}

func (s *RestServer) setRating(request *restful.Request, response *restful.Response) {
	// Authorize
	if !s.auth(request, response) {
		return
	}
	if s.limiter.TakeAvailable(1) == 0 {
		response.Header().Set("Access-Control-Allow-Origin", "*")
		if err := response.WriteError(http.StatusTooManyRequests, errors.New("too many rating writes")); err != nil {
			log.ResponseLogger(response).Error("failed to write error", zap.Error(err))
		}
		return
	}
	var temp Rating
	if err := request.ReadEntity(&temp); err != nil {
		BadRequest(response, err)
		return
	}
	if err := s.validate.Struct(temp); err != nil {
		BadRequest(response, err)
		return
	}
	if err := data.ValidateId(temp.UserId); err != nil {
		BadRequest(response, err)
		return
	}
	if err := data.ValidateId(temp.ItemId); err != nil {
		BadRequest(response, err)
		return
	}
	if temp.Score < s.Config.Predict.MinScore || temp.Score > s.Config.Predict.MaxScore {
		BadRequest(response, errors.NotValidf("score %v out of [%v, %v]",
			temp.Score, s.Config.Predict.MinScore, s.Config.Predict.MaxScore))
		return
	}
	rating := data.Rating{
		UserId:    temp.UserId,
		ItemId:    temp.ItemId,
		Score:     temp.Score,
		Timestamp: time.Now().UTC(),
	}
	if temp.Timestamp != "" {
		timestamp, err := dateparse.ParseAny(temp.Timestamp)
		if err != nil {
			BadRequest(response, err)
			return
		}
		rating.Timestamp = timestamp
	}
	if err := s.SetRating(request.Request.Context(), rating); err != nil {
		InternalServerError(response, err)
		return
	}
	Ok(response, Success{RowAffected: 1})
}

func (s *RestServer) reloadDataset(request *restful.Request, response *restful.Response) {
	// Authorize
	if !s.auth(request, response) {
		return
	}
	if err := s.LoadDataset(request.Request.Context()); err != nil {
		InternalServerError(response, err)
		return
	}
	Ok(response, Success{RowAffected: s.Dataset().CountRatings()})
}

type Similarity struct {
	UserA      string
	UserB      string
	Similarity float64
}

func (s *RestServer) getSimilarity(request *restful.Request, response *restful.Response) {
	// Authorize
	if !s.auth(request, response) {
		return
	}
	userA := request.PathParameter("user-a")
	userB := request.PathParameter("user-b")
	Ok(response, Similarity{
		UserA:      userA,
		UserB:      userB,
		Similarity: s.Similarity(userA, userB),
	})
}

// PredictResult is the prediction of a user on an item. Score is the raw prediction
// and Display is the prediction on the rating scale. Actual is the score given by the
// user if the item has been rated.
type PredictResult struct {
	UserId     string
	ItemId     string
	Score      *float64
	Display    *int
	Neighbor   *logics.Candidate
	Candidates int
	Rated      bool
	Actual     *float64
}

func (s *RestServer) getPrediction(request *restful.Request, response *restful.Response) {
	// Authorize
	if !s.auth(request, response) {
		return
	}
	userId := request.PathParameter("user-id")
	itemId := request.PathParameter("item-id")
	result := PredictResult{UserId: userId, ItemId: itemId}
	for _, rating := range s.Dataset().RatingsOf(userId) {
		if rating.ItemId == itemId {
			result.Rated = true
			result.Actual = lo.ToPtr(rating.Score)
			break
		}
	}
	prediction, err := s.Predict(userId, itemId)
	if errors.Is(err, logics.ErrNoCandidates) {
		if !result.Rated {
			PageNotFound(response, err)
			return
		}
	} else if err != nil {
		InternalServerError(response, err)
		return
	} else {
		result.Score = lo.ToPtr(prediction.Score)
		result.Display = lo.ToPtr(DisplayScore(prediction.Score, s.Config.Predict))
		result.Neighbor = lo.ToPtr(prediction.Neighbor)
		result.Candidates = prediction.Candidates
	}
	Ok(response, result)
}

type Recommendation struct {
	ItemId  string
	Score   float64
	Display int
}

func (s *RestServer) getRecommend(request *restful.Request, response *restful.Response) {
	// Authorize
	if !s.auth(request, response) {
		return
	}
	userId := request.PathParameter("user-id")
	n, err := ParseInt(request, "n", s.Config.Server.DefaultN)
	if err != nil {
		BadRequest(response, err)
		return
	} else if n <= 0 {
		BadRequest(response, errors.NotValidf("n = %d", n))
		return
	}
	predictions, err := s.Recommend(request.Request.Context(), userId, n)
	if err != nil {
		InternalServerError(response, err)
		return
	}
	Ok(response, lo.Map(predictions, func(p logics.Prediction, _ int) Recommendation {
		return Recommendation{
			ItemId:  p.ItemId,
			Score:   p.Score,
			Display: DisplayScore(p.Score, s.Config.Predict),
		}
	}))
}

// BadRequest returns a bad request error.
func BadRequest(response *restful.Response, err error) {
	response.Header().Set("Access-Control-Allow-Origin", "*")
	log.ResponseLogger(response).Error("bad request", zap.Error(err))
	if err = response.WriteError(http.StatusBadRequest, err); err != nil {
		log.ResponseLogger(response).Error("failed to write error", zap.Error(err))
	}
}

// InternalServerError returns a internal server error.
func InternalServerError(response *restful.Response, err error) {
	response.Header().Set("Access-Control-Allow-Origin", "*")
	log.ResponseLogger(response).Error("internal server error", zap.Error(err))
	if err = response.WriteError(http.StatusInternalServerError, err); err != nil {
		log.ResponseLogger(response).Error("failed to write error", zap.Error(err))
	}
}

// PageNotFound returns a not found error.
func PageNotFound(response *restful.Response, err error) {
	response.Header().Set("Access-Control-Allow-Origin", "*")
	if err := response.WriteError(http.StatusNotFound, err); err != nil {
		log.ResponseLogger(response).Error("failed to write error", zap.Error(err))
	}
}

// Ok sends the content as JSON to the client.
func Ok(response *restful.Response, content any) {
	response.Header().Set("Access-Control-Allow-Origin", "*")
	if err := response.WriteAsJson(content); err != nil {
		log.ResponseLogger(response).Error("failed to write json", zap.Error(err))
	}
}

func (s *RestServer) auth(request *restful.Request, response *restful.Response) bool {
	if s.Config.Server.APIKey == "" {
		return true
	}
	apikey := request.HeaderParameter("X-API-Key")
	if apikey == s.Config.Server.APIKey {
		return true
	}
	log.ResponseLogger(response).Error("unauthorized", zap.String("X-API-Key", apikey))
	if err := response.WriteError(http.StatusUnauthorized, fmt.Errorf("unauthorized")); err != nil {
		log.ResponseLogger(response).Error("failed to write error", zap.Error(err))
	}
	return false
}
