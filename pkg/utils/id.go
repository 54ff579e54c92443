package utils

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// GenerateRunID returns the run identifier: the Unix time in whole seconds.
// Results folders and log files are suffixed with it.
func GenerateRunID(now time.Time) string {
	return strconv.FormatInt(now.Unix(), 10)
}

// GenerateTaskID generates a random identifier for a dispatched task
func GenerateTaskID() string {
	return uuid.NewString()
}
