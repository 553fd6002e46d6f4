package pexels

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"newsreel/discoveryservice/internal/domain"
)

const (
	defaultEndpoint  = "https://api.pexels.com/videos"
	defaultUserAgent = "newsreel-discovery/1.0"
)

type Config struct {
	Endpoint  string
	APIKey    string
	UserAgent string
	Client    *http.Client
}

// Provider adapts the Pexels Videos API. Pexels clips are free-license,
// so Acquire never defers; attribution follows the Pexels guidelines.
type Provider struct {
	client    *http.Client
	endpoint  string
	apiKey    string
	userAgent string
}

type apiVideo struct {
	ID       int     `json:"id"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	Duration float64 `json:"duration"`
	Image    string  `json:"image"`
	URL      string  `json:"url"`
	User     struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	} `json:"user"`
	VideoFiles []struct {
		Link    string `json:"link"`
		Quality string `json:"quality"`
		Width   int    `json:"width"`
		Height  int    `json:"height"`
	} `json:"video_files"`
	VideoPictures []struct {
		Picture string `json:"picture"`
	} `json:"video_pictures"`
}

type searchResponse struct {
	Videos []apiVideo `json:"videos"`
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
	return "pexels"
}

func (p *Provider) Info() domain.CatalogInfo {
	return domain.CatalogInfo{
		Name:    p.Name(),
		Label:   "Pexels Videos",
		Kind:    "public",
		Enabled: p.apiKey != "",
	}
}

func (p *Provider) Search(ctx context.Context, request domain.CatalogSearchRequest) ([]domain.Clip, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("pexels api key not configured")
	}

	uri, err := url.Parse(p.endpoint + "/search")
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	limit := request.Limit
	if limit <= 0 {
		limit = 25
	}
	if limit > 80 {
		limit = 80
	}
	query := uri.Query()
	query.Set("query", strings.TrimSpace(request.Query))
	query.Set("per_page", strconv.Itoa(limit))
	uri.RawQuery = query.Encode()

	payload, err := p.get(ctx, uri.String(), 4*1024*1024)
	if err != nil {
		return nil, err
	}

	var response searchResponse
	if err := json.Unmarshal(payload, &response); err != nil {
		return nil, fmt.Errorf("unexpected catalog payload: %w", err)
	}

	clips := make([]domain.Clip, 0, len(response.Videos))
	for _, video := range response.Videos {
		clip, ok := toClip(video)
		if !ok {
			continue
		}
		clips = append(clips, clip)
	}
	return clips, nil
}

func (p *Provider) Detail(ctx context.Context, identity string) (domain.ClipDetail, error) {
	video, err := p.fetchVideo(ctx, identity)
	if err != nil {
		return domain.ClipDetail{}, err
	}
	return toDetail(video), nil
}

func (p *Provider) Acquire(ctx context.Context, identity string) (domain.AcquireReceipt, error) {
	video, err := p.fetchVideo(ctx, identity)
	if err != nil {
		return domain.AcquireReceipt{}, err
	}

	link := bestFileLink(video)
	if link == "" {
		return domain.AcquireReceipt{}, fmt.Errorf("video %d has no downloadable files", video.ID)
	}
	return domain.AcquireReceipt{
		Status:      domain.AcquireReady,
		AssetURL:    link,
		Attribution: attributionFor(video),
	}, nil
}

func (p *Provider) fetchVideo(ctx context.Context, identity string) (apiVideo, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return apiVideo{}, fmt.Errorf("empty clip identity")
	}
	if p.apiKey == "" {
		return apiVideo{}, fmt.Errorf("pexels api key not configured")
	}

	payload, err := p.get(ctx, p.endpoint+"/videos/"+url.PathEscape(identity), 1024*1024)
	if err != nil {
		return apiVideo{}, err
	}

	var video apiVideo
	if err := json.Unmarshal(payload, &video); err != nil {
		return apiVideo{}, fmt.Errorf("unexpected video payload: %w", err)
	}
	if video.ID == 0 {
		return apiVideo{}, fmt.Errorf("video %s not found", identity)
	}
	return video, nil
}

func (p *Provider) get(ctx context.Context, rawURL string, maxBytes int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", p.apiKey)
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "application/json")

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

func toClip(video apiVideo) (domain.Clip, bool) {
	if video.ID == 0 {
		return domain.Clip{}, false
	}
	return domain.Clip{
		Identity:     strconv.Itoa(video.ID),
		Title:        titleFor(video),
		ThumbnailURL: strings.TrimSpace(video.Image),
		PreviewURL:   previewFileLink(video),
		DurationSec:  video.Duration,
		Width:        video.Width,
		Height:       video.Height,
		Catalog:      "pexels",
	}, true
}

func toDetail(video apiVideo) domain.ClipDetail {
	screenshot := ""
	if len(video.VideoPictures) > 0 {
		screenshot = strings.TrimSpace(video.VideoPictures[0].Picture)
	}
	if screenshot == "" {
		screenshot = strings.TrimSpace(video.Image)
	}
	return domain.ClipDetail{
		Identity:      strconv.Itoa(video.ID),
		Description:   titleFor(video),
		Contributor:   strings.TrimSpace(video.User.Name),
		ScreenshotURL: screenshot,
		Attribution:   attributionFor(video),
		DurationSec:   video.Duration,
		Width:         video.Width,
		Height:        video.Height,
	}
}

// titleFor recovers a human title from the canonical page URL; the API
// exposes no title field. "/video/aerial-view-of-city-853889/" becomes
// "aerial view of city".
func titleFor(video apiVideo) string {
	raw := strings.Trim(strings.TrimSpace(video.URL), "/")
	if idx := strings.LastIndex(raw, "/"); idx >= 0 {
		raw = raw[idx+1:]
	}
	raw = strings.TrimSuffix(raw, "-"+strconv.Itoa(video.ID))
	raw = strings.ReplaceAll(raw, "-", " ")
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "Pexels video " + strconv.Itoa(video.ID)
	}
	return raw
}

func attributionFor(video apiVideo) string {
	name := strings.TrimSpace(video.User.Name)
	if name == "" {
		return "Video from Pexels"
	}
	return "Video by " + name + " on Pexels"
}

// bestFileLink prefers HD renditions, then the largest frame.
func bestFileLink(video apiVideo) string {
	best := ""
	bestScore := -1
	for _, file := range video.VideoFiles {
		link := strings.TrimSpace(file.Link)
		if link == "" {
			continue
		}
		score := file.Width * file.Height
		if strings.EqualFold(file.Quality, "hd") {
			score += 10_000_000
		}
		if score > bestScore {
			bestScore = score
			best = link
		}
	}
	return best
}

// previewFileLink prefers the smallest rendition; previews are for
// quick inspection, not delivery.
func previewFileLink(video apiVideo) string {
	best := ""
	bestScore := 0
	for _, file := range video.VideoFiles {
		link := strings.TrimSpace(file.Link)
		if link == "" {
			continue
		}
		score := file.Width * file.Height
		if score <= 0 {
			score = 1
		}
		if best == "" || score < bestScore {
			bestScore = score
			best = link
		}
	}
	return best
}
