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

package main

import (
	"os"
	"strconv"

	"github.com/gorse-io/ratings/base/log"
	"github.com/gorse-io/ratings/config"
	"github.com/gorse-io/ratings/dataset"
	"github.com/gorse-io/ratings/logics"
	"github.com/juju/errors"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const loadBatchSize = 10000

var predictCommand = &cobra.Command{
	Use:   "predict <user-id> <item-id>",
	Short: "Predict the score of a user on a movie.",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		conf := loadConfig(cmd)
		snapshot := loadDataset(cmd, conf)
		predictor, err := logics.NewPredictor(conf.Predict)
		if err != nil {
			log.Logger().Fatal("invalid predictor", zap.Error(err))
		}
		prediction, err := predictor.Predict(snapshot, args[0], args[1])
		if errors.Is(err, logics.ErrNoCandidates) {
			log.Logger().Fatal("no other user rated the movie", zap.String("item_id", args[1]))
		} else if err != nil {
			log.Logger().Fatal("failed to predict", zap.Error(err))
		}
		table := tablewriter.NewWriter(os.Stdout)
		table.Header("user", "movie", "score", "neighbor", "similarity", "candidates")
		if err = table.Append(
			prediction.UserId,
			prediction.ItemId,
			strconv.FormatFloat(prediction.Score, 'f', 4, 64),
			prediction.Neighbor.UserId,
			strconv.FormatFloat(prediction.Neighbor.Similarity, 'f', 4, 64),
			strconv.Itoa(prediction.Candidates),
		); err != nil {
			log.Logger().Fatal("failed to append row", zap.Error(err))
		}
		if err = table.Render(); err != nil {
			log.Logger().Fatal("failed to render table", zap.Error(err))
		}
	},
}

var similarityCommand = &cobra.Command{
	Use:   "similarity <user-id> <user-id>...",
	Short: "Show the similarity between a user and other users.",
	Args:  cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		conf := loadConfig(cmd)
		snapshot := loadDataset(cmd, conf)
		table := tablewriter.NewWriter(os.Stdout)
		table.Header("user", "other", "similarity")
		for _, other := range args[1:] {
			similarity := logics.SimilarityBetweenUsers(snapshot.RatingsOf(args[0]), snapshot.RatingsOf(other))
			if err := table.Append(args[0], other, strconv.FormatFloat(similarity, 'f', 4, 64)); err != nil {
				log.Logger().Fatal("failed to append row", zap.Error(err))
			}
		}
		if err := table.Render(); err != nil {
			log.Logger().Fatal("failed to render table", zap.Error(err))
		}
	},
}

func init() {
	rootCommand.AddCommand(predictCommand, similarityCommand)
}

func loadDataset(cmd *cobra.Command, conf *config.Config) *dataset.Dataset {
	database, err := openDatabase(conf)
	if err != nil {
		log.Logger().Fatal("failed to open database", zap.Error(err),
			zap.String("database", log.RedactDBURL(conf.Database.DataStore)))
	}
	defer database.Close()
	snapshot, err := dataset.LoadFromDatabase(cmd.Context(), database, loadBatchSize)
	if err != nil {
		log.Logger().Fatal("failed to load ratings", zap.Error(err))
	}
	return snapshot
}
