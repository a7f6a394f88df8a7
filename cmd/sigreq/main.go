// Copyright 2025 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gitlab.com/accumulatenetwork/sigreq/config"
	"gitlab.com/accumulatenetwork/sigreq/internal/engine"
	"gitlab.com/accumulatenetwork/sigreq/internal/logging"
	"gitlab.com/accumulatenetwork/sigreq/pkg/errors"
	"gitlab.com/accumulatenetwork/sigreq/pkg/ledger"
)

var cmdMain = &cobra.Command{
	Use:   "sigreq",
	Short: "Signature requirement resolver",
	Run:   printUsageAndExit1,
}

var flagMain struct {
	WorkDir  string
	Network  string
	Output   string
	LogLevel string
}

func init() {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	cmdMain.PersistentFlags().StringVarP(&flagMain.WorkDir, "work-dir", "w", filepath.Join(home, ".sigreq"), "Working directory for configuration and data")
	cmdMain.PersistentFlags().StringVarP(&flagMain.Network, "network", "n", string(ledger.Testnet), "Ledger network")
	cmdMain.PersistentFlags().StringVarP(&flagMain.Output, "output", "o", outputText, "Output format: text, json, or yaml")
	cmdMain.PersistentFlags().StringVar(&flagMain.LogLevel, "log-level", "", "Override the configured log level")
}

func main() {
	_ = cmdMain.Execute()
}

func printUsageAndExit1(cmd *cobra.Command, args []string) {
	_ = cmd.Usage()
	os.Exit(1)
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func check(err error) {
	if err != nil {
		err = errors.UnknownError.Skip(1).Wrap(err)
		fatalf("%v", err)
	}
}

func checkf(err error, format string, otherArgs ...interface{}) {
	if err != nil {
		err = errors.UnknownError.Skip(1).Wrap(err)
		fatalf(format+": %v", append(otherArgs, err)...)
	}
}

// loadConfig loads the configuration from the working directory, or uses
// the defaults if there is none.
func loadConfig() *config.Config {
	var cfg *config.Config
	if _, err := os.Stat(config.File(flagMain.WorkDir)); err == nil {
		cfg, err = config.Load(flagMain.WorkDir)
		checkf(err, "load configuration")
	} else {
		cfg = config.Default()
	}

	if flagMain.LogLevel != "" {
		cfg.Log.Level = flagMain.LogLevel
	}
	return cfg
}

func newLogger(cfg *config.Config) *slog.Logger {
	logger, err := logging.NewLogger(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	checkf(err, "logging")
	return logger
}

func openEngine() (*engine.Engine, *config.Config) {
	cfg := loadConfig()
	e, err := engine.New(cfg,
		engine.WithRoot(flagMain.WorkDir),
		engine.WithLogger(newLogger(cfg)))
	checkf(err, "start engine")
	return e, cfg
}

func network() ledger.Network {
	n, err := ledger.ParseNetwork(flagMain.Network)
	check(err)
	return n
}
