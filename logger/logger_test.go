package logger

import (
	"testing"

	"github.com/marquee-app/marquee/config"
	"github.com/op/go-logging"
	"github.com/stretchr/testify/assert"
)

func TestGetLogsFiltersBySeverity(t *testing.T) {
	Info("seeded 12 movies")
	Warning("omdb lookup failed")
	Error("database is locked")

	warnings := GetLogs(10, "WARNING")
	assert.Len(t, warnings, 2)
	assert.Contains(t, warnings[0], "database is locked")
	assert.Contains(t, warnings[1], "omdb lookup failed")

	all := GetLogs(1, "DEBUG")
	assert.Len(t, all, 1)
}

func TestLevelFromConfig(t *testing.T) {
	lvl, err := LevelFromConfig(config.Warn)
	assert.NoError(t, err)
	assert.Equal(t, logging.WARNING, lvl)

	_, err = LevelFromConfig("verbose")
	assert.Error(t, err)
}
