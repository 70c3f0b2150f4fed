package main

import (
	"os"
	"path/filepath"

	"github.com/auralis/tiercache/internal/config"
	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
)

func getLogFilePath(rt config.Runtime) (string, error) {
	if rt.LogFile != "" {
		return expandPath(rt.LogFile), nil
	}
	dir, err := gap.NewScope(gap.User, "tiercache").CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "tiercache.log"), nil
}

// setupLog sends the default logger to a file so command output stays clean.
func setupLog(rt config.Runtime) (func() error, error) {
	logFile, err := getLogFilePath(rt)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}

	log.SetOutput(f)
	log.SetReportTimestamp(true)
	if rt.Debug {
		log.SetLevel(log.DebugLevel)
	}
	return f.Close, nil
}
