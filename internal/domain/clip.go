package domain

import "time"

type AcquireStatus string

const (
	AcquireReady    AcquireStatus = "ready"
	AcquireDeferred AcquireStatus = "deferred"
)

type CatalogInfo struct {
	Name    string `json:"name"`
	Label   string `json:"label"`
	Kind    string `json:"kind"`
	Enabled bool   `json:"enabled"`
}

type CatalogSearchRequest struct {
	Query string
	Limit int
}

type Clip struct {
	Identity     string     `json:"identity"`
	Title        string     `json:"title"`
	ThumbnailURL string     `json:"thumbnailUrl,omitempty"`
	PreviewURL   string     `json:"previewUrl,omitempty"`
	DurationSec  float64    `json:"durationSec,omitempty"`
	Width        int        `json:"width,omitempty"`
	Height       int        `json:"height,omitempty"`
	Tags         []string   `json:"tags,omitempty"`
	Catalog      string     `json:"catalog,omitempty"`
	PublishedAt  *time.Time `json:"publishedAt,omitempty"`
}

type ClipDetail struct {
	Identity      string   `json:"identity"`
	Description   string   `json:"description,omitempty"`
	Keywords      []string `json:"keywords,omitempty"`
	Location      string   `json:"location,omitempty"`
	Contributor   string   `json:"contributor,omitempty"`
	ScreenshotURL string   `json:"screenshotUrl,omitempty"`
	Attribution   string   `json:"attribution,omitempty"`
	DurationSec   float64  `json:"durationSec,omitempty"`
	Width         int      `json:"width,omitempty"`
	Height        int      `json:"height,omitempty"`
}

type AcquireReceipt struct {
	Status      AcquireStatus `json:"status"`
	AssetURL    string        `json:"assetUrl,omitempty"`
	Attribution string        `json:"attribution,omitempty"`
	RetryAfter  time.Duration `json:"-"`
}

// QueryStatus reports the outcome of one aggregated catalog query.
type QueryStatus struct {
	Query  string `json:"query"`
	OK     bool   `json:"ok"`
	Count  int    `json:"count"`
	Cached bool   `json:"cached,omitempty"`
	Error  string `json:"error,omitempty"`
}

type CatalogDiagnostics struct {
	Name                string     `json:"name"`
	Label               string     `json:"label"`
	Kind                string     `json:"kind"`
	Enabled             bool       `json:"enabled"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	BlockedUntil        *time.Time `json:"blockedUntil,omitempty"`
	LastError           string     `json:"lastError,omitempty"`
	LastSuccessAt       *time.Time `json:"lastSuccessAt,omitempty"`
	LastFailureAt       *time.Time `json:"lastFailureAt,omitempty"`
	LastLatencyMS       int64      `json:"lastLatencyMs,omitempty"`
	LastTimeout         bool       `json:"lastTimeout,omitempty"`
	LastQuery           string     `json:"lastQuery,omitempty"`
	TotalRequests       int64      `json:"totalRequests,omitempty"`
	TotalFailures       int64      `json:"totalFailures,omitempty"`
	TimeoutCount        int64      `json:"timeoutCount,omitempty"`
}
