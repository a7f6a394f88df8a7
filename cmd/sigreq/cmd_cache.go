// Copyright 2025 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package main

import (
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gitlab.com/accumulatenetwork/sigreq/internal/keycache"
)

var cmdCache = &cobra.Command{
	Use:   "cache",
	Short: "Inspect cached key material",
}

var cmdCacheGet = &cobra.Command{
	Use:   "get <entity>",
	Short: "Show the stored record of an account (0.0.123) or node (node/3)",
	Args:  cobra.ExactArgs(1),
	Run:   cacheGet,
}

var cmdCacheRefresh = &cobra.Command{
	Use:   "refresh <entity>",
	Short: "Refresh the key material of an account or node",
	Args:  cobra.ExactArgs(1),
	Run:   cacheRefresh,
}

func init() {
	cmdMain.AddCommand(cmdCache)
	cmdCache.AddCommand(cmdCacheGet, cmdCacheRefresh)
}

func parseEntity(s string) keycache.EntityKey {
	key, err := keycache.ParseEntityKey(network(), s)
	check(err)
	return key
}

func cacheGet(_ *cobra.Command, args []string) {
	key := parseEntity(args[0])
	e, _ := openEngine()
	defer e.Close()

	r, err := e.Peek(context.Background(), key)
	checkf(err, "get %v", key)
	showRecord(r)
}

func cacheRefresh(_ *cobra.Command, args []string) {
	key := parseEntity(args[0])
	e, _ := openEngine()
	defer e.Close()

	r, err := e.Lookup(context.Background(), key, true)
	checkf(err, "refresh %v", key)
	showRecord(r)
}

func showRecord(r *keycache.Record) {
	check(printResult(os.Stdout, r, func(w io.Writer) {
		printRecord(w, r)
	}))
}
