package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewRequestID returns a timestamp prefixed id with a random suffix.
func NewRequestID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return now.UTC().Format("20060102150405") + "-" + suffix
}
