// Copyright 2025 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gitlab.com/accumulatenetwork/sigreq/pkg/errors"
	"gitlab.com/accumulatenetwork/sigreq/pkg/ledger"
)

func TestPersistence(t *testing.T) {
	dir := t.TempDir()

	// Create
	cfg := Default()
	cfg.Storage.Type = SQLiteStorage
	cfg.Storage.Path = "keys.sqlite"
	cfg.Cache.FreshWindow = 10 * time.Second
	cfg.Mirror.Networks = []Network{{Name: "testnet", URL: "http://localhost:8080"}}

	// Store
	require.NoError(t, Store(dir, cfg))

	// Load
	lcfg, err := Load(dir)
	require.NoError(t, err)

	// Should be equal
	require.Equal(t, cfg, lcfg)
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "config"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config", "sigreq.toml"), []byte(`
[cache]
fresh-window = "5s"

[storage]
type = "memory"
`), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, 5*time.Second, cfg.Cache.FreshWindow)
	require.Equal(t, MemoryStorage, cfg.Storage.Type)
	require.Equal(t, Default().Cache.AccountYoungWindow, cfg.Cache.AccountYoungWindow)

	url, ok := cfg.MirrorURL(ledger.Testnet)
	require.True(t, ok)
	require.Equal(t, "https://testnet.mirrornode.hedera.com", url)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg = Default()
	cfg.Storage.Type = "etcd"
	require.ErrorIs(t, cfg.Validate(), errors.BadRequest)

	cfg = Default()
	cfg.Storage.Type = PostgresStorage
	require.Error(t, cfg.Validate())
	cfg.Storage.DSN = "postgres://localhost/sigreq"
	require.NoError(t, cfg.Validate())

	cfg = Default()
	cfg.Mirror.Networks = append(cfg.Mirror.Networks, Network{Name: "Mainnet", URL: "http://localhost"})
	require.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Cache.FreshWindow = 0
	require.Error(t, cfg.Validate())

	require.GreaterOrEqual(t, Default().Cache.LeaseWait, Default().Mirror.Timeout)
	require.Greater(t, Default().Cache.ReclaimAfter, Default().Mirror.Timeout)

	cfg = Default()
	cfg.Cache.LeaseWait = 10 * time.Second
	cfg.Mirror.Timeout = 15 * time.Second
	require.ErrorIs(t, cfg.Validate(), errors.BadRequest)
	cfg.Cache.LeaseWait = 15 * time.Second
	require.NoError(t, cfg.Validate())

	cfg = Default()
	cfg.Cache.ReclaimAfter = cfg.Mirror.Timeout
	require.ErrorIs(t, cfg.Validate(), errors.BadRequest)

	cfg = Default()
	cfg.Mirror.Timeout = 2 * time.Minute
	require.Error(t, cfg.Validate())
	cfg.Cache.LeaseWait = 2 * time.Minute
	cfg.Cache.ReclaimAfter = 3 * time.Minute
	require.NoError(t, cfg.Validate())

	cfg = Default()
	cfg.Cache.Entries = 0
	require.Error(t, cfg.Validate())
}

func TestLogLevel(t *testing.T) {
	l := LogLevel{}.Parse("error;keycache=debug")
	require.Equal(t, "error", l.Default)
	require.Equal(t, [][2]string{{"keycache", "debug"}}, l.Modules)
	require.Equal(t, "error;keycache=debug", l.String())
}
