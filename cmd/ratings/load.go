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
	"fmt"
	"os"

	"github.com/gorse-io/ratings/base/log"
	"github.com/gorse-io/ratings/dataset"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var loadCommand = &cobra.Command{
	Use:   "load",
	Short: "Replace ratings in the data store by the MovieLens 100k dataset.",
	Run: func(cmd *cobra.Command, args []string) {
		conf := loadConfig(cmd)
		files := dataset.MovieLensFiles{}
		files.Users, _ = cmd.Flags().GetString("users")
		files.Items, _ = cmd.Flags().GetString("items")
		files.Ratings, _ = cmd.Flags().GetString("ratings")
		batchSize, _ := cmd.Flags().GetInt("batch-size")
		database, err := openDatabase(conf)
		if err != nil {
			log.Logger().Fatal("failed to open database", zap.Error(err),
				zap.String("database", log.RedactDBURL(conf.Database.DataStore)))
		}
		defer database.Close()
		summary, err := dataset.ImportMovieLens(cmd.Context(), database, files, batchSize, os.Stderr)
		if err != nil {
			log.Logger().Fatal("failed to load dataset", zap.Error(err))
		}
		fmt.Printf("Loaded %d users, %d movies and %d ratings\n", summary.Users, summary.Items, summary.Ratings)
	},
}

func init() {
	loadCommand.Flags().String("users", "u.user", "path of the users file")
	loadCommand.Flags().String("items", "u.item", "path of the movies file")
	loadCommand.Flags().String("ratings", "u.data", "path of the ratings file")
	loadCommand.Flags().Int("batch-size", 1000, "number of records inserted per batch")
	rootCommand.AddCommand(loadCommand)
}
