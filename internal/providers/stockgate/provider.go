package stockgate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"newsreel/discoveryservice/internal/domain"
)

const (
	defaultEndpoint  = "http://stockgate:8120"
	defaultUserAgent = "newsreel-discovery/1.0"
)

type Config struct {
	Endpoint  string
	APIKey    string
	UserAgent string
	Client    *http.Client
}

// Provider talks to the in-house stock-footage gateway. The gateway
// fronts several licensed archives behind one JSON API and may answer
// a download request with "preparing" when the archive has to restore
// the master file first.
type Provider struct {
	client    *http.Client
	endpoint  string
	apiKey    string
	userAgent string
}

type apiClip struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	ThumbnailURL string   `json:"thumbnailUrl"`
	PreviewURL   string   `json:"previewUrl"`
	DurationSec  float64  `json:"durationSec"`
	Width        int      `json:"width"`
	Height       int      `json:"height"`
	Tags         []string `json:"tags"`
	PublishedAt  string   `json:"publishedAt"`
}

type searchResponse struct {
	Items []apiClip `json:"items"`
}

type apiDetail struct {
	ID            string   `json:"id"`
	Description   string   `json:"description"`
	Keywords      []string `json:"keywords"`
	Location      string   `json:"location"`
	Contributor   string   `json:"contributor"`
	ScreenshotURL string   `json:"screenshotUrl"`
	Attribution   string   `json:"attribution"`
	DurationSec   float64  `json:"durationSec"`
	Width         int      `json:"width"`
	Height        int      `json:"height"`
}

type downloadResponse struct {
	Status        string `json:"status"`
	URL           string `json:"url"`
	Attribution   string `json:"attribution"`
	RetryAfterSec int    `json:"retryAfterSec"`
}

func NewProvider(cfg Config) *Provider {
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	return &Provider{
		client:    client,
		endpoint:  strings.TrimRight(endpoint, "/"),
		apiKey:    strings.TrimSpace(cfg.APIKey),
		userAgent: userAgent,
	}
}

func (p *Provider) Name() string {
	return "stockgate"
}

func (p *Provider) Info() domain.CatalogInfo {
	return domain.CatalogInfo{
		Name:    p.Name(),
		Label:   "Stock Gateway",
		Kind:    "gateway",
		Enabled: true,
	}
}

func (p *Provider) Search(ctx context.Context, request domain.CatalogSearchRequest) ([]domain.Clip, error) {
	uri, err := url.Parse(p.endpoint + "/v1/search")
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	limit := request.Limit
	if limit <= 0 {
		limit = 25
	}
	query := uri.Query()
	query.Set("q", strings.TrimSpace(request.Query))
	query.Set("limit", fmt.Sprintf("%d", limit))
	uri.RawQuery = query.Encode()

	payload, err := p.get(ctx, uri.String(), 4*1024*1024)
	if err != nil {
		return nil, err
	}

	items, err := parseSearchItems(payload)
	if err != nil {
		return nil, err
	}

	clips := make([]domain.Clip, 0, len(items))
	for _, item := range items {
		clip, ok := toClip(item)
		if !ok {
			continue
		}
		clips = append(clips, clip)
		if len(clips) >= limit {
			break
		}
	}
	return clips, nil
}

func (p *Provider) Detail(ctx context.Context, identity string) (domain.ClipDetail, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return domain.ClipDetail{}, fmt.Errorf("empty clip identity")
	}

	payload, err := p.get(ctx, p.endpoint+"/v1/clips/"+url.PathEscape(identity), 1024*1024)
	if err != nil {
		return domain.ClipDetail{}, err
	}

	var detail apiDetail
	if err := json.Unmarshal(payload, &detail); err != nil {
		return domain.ClipDetail{}, fmt.Errorf("unexpected detail payload: %w", err)
	}
	return toDetail(identity, detail), nil
}

func (p *Provider) Acquire(ctx context.Context, identity string) (domain.AcquireReceipt, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return domain.AcquireReceipt{}, fmt.Errorf("empty clip identity")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+"/v1/clips/"+url.PathEscape(identity)+"/download", nil)
	if err != nil {
		return domain.AcquireReceipt{}, err
	}
	p.decorate(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return domain.AcquireReceipt{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return domain.AcquireReceipt{}, fmt.Errorf("catalog HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 256*1024))
	if err != nil {
		return domain.AcquireReceipt{}, err
	}

	var download downloadResponse
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &download); err != nil {
			return domain.AcquireReceipt{}, fmt.Errorf("unexpected download payload: %w", err)
		}
	}

	return toReceipt(resp.StatusCode, download), nil
}

func (p *Provider) get(ctx context.Context, rawURL string, maxBytes int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	p.decorate(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("catalog HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxBytes))
}

func (p *Provider) decorate(req *http.Request) {
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "application/json")
	if p.apiKey != "" {
		req.Header.Set("X-Api-Key", p.apiKey)
	}
}

func parseSearchItems(payload []byte) ([]apiClip, error) {
	var response searchResponse
	if err := json.Unmarshal(payload, &response); err == nil && response.Items != nil {
		return response.Items, nil
	}

	// Older gateway builds answer with a bare array.
	var items []apiClip
	if err := json.Unmarshal(payload, &items); err == nil {
		return items, nil
	}

	return nil, fmt.Errorf("unexpected catalog payload")
}

func toClip(item apiClip) (domain.Clip, bool) {
	id := strings.TrimSpace(item.ID)
	title := strings.TrimSpace(item.Title)
	if id == "" || title == "" {
		return domain.Clip{}, false
	}
	return domain.Clip{
		Identity:     id,
		Title:        title,
		ThumbnailURL: strings.TrimSpace(item.ThumbnailURL),
		PreviewURL:   strings.TrimSpace(item.PreviewURL),
		DurationSec:  item.DurationSec,
		Width:        item.Width,
		Height:       item.Height,
		Tags:         item.Tags,
		Catalog:      "stockgate",
		PublishedAt:  parseTimestamp(item.PublishedAt),
	}, true
}

func toDetail(identity string, detail apiDetail) domain.ClipDetail {
	if strings.TrimSpace(detail.ID) != "" {
		identity = strings.TrimSpace(detail.ID)
	}
	return domain.ClipDetail{
		Identity:      identity,
		Description:   strings.TrimSpace(detail.Description),
		Keywords:      detail.Keywords,
		Location:      strings.TrimSpace(detail.Location),
		Contributor:   strings.TrimSpace(detail.Contributor),
		ScreenshotURL: strings.TrimSpace(detail.ScreenshotURL),
		Attribution:   strings.TrimSpace(detail.Attribution),
		DurationSec:   detail.DurationSec,
		Width:         detail.Width,
		Height:        detail.Height,
	}
}

func toReceipt(statusCode int, download downloadResponse) domain.AcquireReceipt {
	status := strings.ToLower(strings.TrimSpace(download.Status))
	deferred := statusCode == http.StatusAccepted || status == "preparing"

	receipt := domain.AcquireReceipt{
		Status:      domain.AcquireReady,
		AssetURL:    strings.TrimSpace(download.URL),
		Attribution: strings.TrimSpace(download.Attribution),
	}
	if deferred {
		receipt.Status = domain.AcquireDeferred
		receipt.AssetURL = ""
		if download.RetryAfterSec > 0 {
			receipt.RetryAfter = time.Duration(download.RetryAfterSec) * time.Second
		}
	}
	return receipt
}

func parseTimestamp(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil
	}
	value := parsed.UTC()
	return &value
}
