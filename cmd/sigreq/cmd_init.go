// Copyright 2025 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gitlab.com/accumulatenetwork/sigreq/config"
)

var cmdInit = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration to the working directory",
	Args:  cobra.NoArgs,
	Run:   initConfig,
}

var flagInit struct {
	Reset   bool
	Storage string
	Path    string
	DSN     string
	Redis   string
}

func init() {
	cmdMain.AddCommand(cmdInit)

	cmdInit.Flags().BoolVar(&flagInit.Reset, "reset", false, "Overwrite an existing configuration")
	cmdInit.Flags().StringVar(&flagInit.Storage, "storage", string(config.BadgerStorage), "Cache storage: memory, badger, sqlite, postgres, or redis")
	cmdInit.Flags().StringVar(&flagInit.Path, "path", "", "Database path for badger or sqlite, relative to the working directory")
	cmdInit.Flags().StringVar(&flagInit.DSN, "dsn", "", "Postgres connection string")
	cmdInit.Flags().StringVar(&flagInit.Redis, "redis", "", "Redis address")
}

func initConfig(cmd *cobra.Command, _ []string) {
	file := config.File(flagMain.WorkDir)
	if _, err := os.Stat(file); err == nil && !flagInit.Reset {
		fatalf("%s already exists, use --reset to overwrite it", file)
	}

	cfg := config.Default()
	cfg.Storage.Type = config.StorageType(flagInit.Storage)
	if cfg.Storage.Type == config.SQLiteStorage {
		cfg.Storage.Path = "data/keycache.sqlite"
	}

	// Only explicitly set flags override the defaults
	cmd.Flags().Visit(func(flag *pflag.Flag) {
		switch flag.Name {
		case "path":
			cfg.Storage.Path = flagInit.Path
		case "dsn":
			cfg.Storage.DSN = flagInit.DSN
		case "redis":
			cfg.Storage.Redis.Address = flagInit.Redis
		}
	})
	check(cfg.Validate())

	check(config.Store(flagMain.WorkDir, cfg))
	fmt.Println(colorSuccess.Sprint("✔"), "Wrote", file)
}
