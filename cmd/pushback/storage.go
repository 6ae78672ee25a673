package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/towsim/pushback/internal/config"
	"github.com/towsim/pushback/internal/storage"
)

func (a *app) initStorage() error {
	storageCfg := config.GetStorageConfig()
	dir := dataDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	if storageCfg.Type == storage.TypeSQLite && storageCfg.SQLite.DumpPath == "" {
		storageCfg.SQLite.DumpPath = filepath.Join(dir,
			fmt.Sprintf("%s_%s.db", AppName, a.start.Format("20060102_150405")))
	}
	storageCfg.Websocket.URL = httpToWS(storageCfg.Websocket.URL)

	backend, err := storage.NewBackend(storageCfg, storage.Dependencies{
		LogManager: a.logs,
		Logger:     a.influxLogger(),
		DataDir:    dir,
	})
	if err != nil {
		return fmt.Errorf("failed to create storage backend: %w", err)
	}
	if err := backend.Init(); err != nil {
		return fmt.Errorf("failed to initialize storage backend: %w", err)
	}
	a.backend = backend
	a.logger.Info("Storage backend initialized", "type", storageCfg.Type, "influx", storageCfg.Influx.Enabled)
	return nil
}

// httpToWS converts an HTTP(S) URL to a WebSocket URL.
func httpToWS(httpURL string) string {
	s := strings.TrimRight(httpURL, "/")
	s = strings.Replace(s, "https://", "wss://", 1)
	s = strings.Replace(s, "http://", "ws://", 1)
	return s
}
