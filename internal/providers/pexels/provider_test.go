package pexels

import (
	"encoding/json"
	"testing"
)

func sampleVideo(t *testing.T) apiVideo {
	t.Helper()
	payload := []byte(`{
		"id": 853889,
		"width": 3840,
		"height": 2160,
		"duration": 25.4,
		"image": "https://images.pexels.com/videos/853889/picture.jpg",
		"url": "https://www.pexels.com/video/aerial-view-of-city-853889/",
		"user": {"name": "Taryn Elliott", "url": "https://www.pexels.com/@taryn"},
		"video_files": [
			{"link": "https://player.pexels.com/853889-sd.mp4", "quality": "sd", "width": 960, "height": 540},
			{"link": "https://player.pexels.com/853889-hd.mp4", "quality": "hd", "width": 1920, "height": 1080},
			{"link": "https://player.pexels.com/853889-uhd.mp4", "quality": "uhd", "width": 3840, "height": 2160}
		],
		"video_pictures": [{"picture": "https://images.pexels.com/videos/853889/frame-0.jpg"}]
	}`)
	var video apiVideo
	if err := json.Unmarshal(payload, &video); err != nil {
		t.Fatalf("sample payload: %v", err)
	}
	return video
}

func TestToClip(t *testing.T) {
	clip, ok := toClip(sampleVideo(t))
	if !ok {
		t.Fatal("expected valid clip")
	}
	if clip.Identity != "853889" {
		t.Fatalf("unexpected identity %q", clip.Identity)
	}
	if clip.Title != "aerial view of city" {
		t.Fatalf("expected title recovered from page URL, got %q", clip.Title)
	}
	if clip.Catalog != "pexels" {
		t.Fatalf("unexpected catalog %q", clip.Catalog)
	}
	if clip.PreviewURL != "https://player.pexels.com/853889-sd.mp4" {
		t.Fatalf("preview should pick the smallest rendition, got %q", clip.PreviewURL)
	}
}

func TestToClipRejectsZeroID(t *testing.T) {
	if _, ok := toClip(apiVideo{}); ok {
		t.Fatal("video without an id must be dropped")
	}
}

func TestBestFileLinkPrefersHD(t *testing.T) {
	video := sampleVideo(t)
	if got := bestFileLink(video); got != "https://player.pexels.com/853889-hd.mp4" {
		t.Fatalf("expected the hd rendition, got %q", got)
	}
}

func TestBestFileLinkLargestWithoutHD(t *testing.T) {
	video := sampleVideo(t)
	for i := range video.VideoFiles {
		video.VideoFiles[i].Quality = "sd"
	}
	if got := bestFileLink(video); got != "https://player.pexels.com/853889-uhd.mp4" {
		t.Fatalf("expected the largest rendition, got %q", got)
	}
}

func TestToDetailAttribution(t *testing.T) {
	detail := toDetail(sampleVideo(t))
	if detail.Attribution != "Video by Taryn Elliott on Pexels" {
		t.Fatalf("unexpected attribution %q", detail.Attribution)
	}
	if detail.Contributor != "Taryn Elliott" {
		t.Fatalf("unexpected contributor %q", detail.Contributor)
	}
	if detail.ScreenshotURL != "https://images.pexels.com/videos/853889/frame-0.jpg" {
		t.Fatalf("expected the first video picture, got %q", detail.ScreenshotURL)
	}
}

func TestAttributionWithoutUser(t *testing.T) {
	video := sampleVideo(t)
	video.User.Name = ""
	if got := attributionFor(video); got != "Video from Pexels" {
		t.Fatalf("unexpected fallback attribution %q", got)
	}
}

func TestTitleForFallback(t *testing.T) {
	video := apiVideo{ID: 42, URL: ""}
	if got := titleFor(video); got != "Pexels video 42" {
		t.Fatalf("unexpected fallback title %q", got)
	}
}
