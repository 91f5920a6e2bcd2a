package admin

import (
	"punchclock/internal/biometric/models"
	"punchclock/pkg/platform/readcache"
)

// CachesResponse is the HTTP response DTO for the cache overview.
type CachesResponse struct {
	Templates models.CacheStats `json:"templates"`
	Schedules readcache.Stats   `json:"schedules"`
	Settings  readcache.Stats   `json:"settings"`
}

// InvalidatedResponse reports how many memoized entries an invalidation dropped.
type InvalidatedResponse struct {
	Cache       string `json:"cache"`
	Invalidated int    `json:"invalidated"`
}
