package apihttp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxProxyImageBytes = 20 << 20

// proxyBlockedHosts are hostnames the image proxy refuses outright,
// covering the loopback names and the in-compose service names.
var proxyBlockedHosts = map[string]struct{}{
	"localhost":         {},
	"127.0.0.1":         {},
	"::1":               {},
	"mongo":             {},
	"mongodb":           {},
	"redis":             {},
	"stockgate":         {},
	"discovery-service": {},
	"otel-collector":    {},
}

var imageProxyClient = newImageProxyClient()

// handleImageProxy streams a remote thumbnail through the service so
// browser clients can preview clips without tripping catalog CORS or
// hotlink rules. Targets are validated before and after redirects to
// keep the proxy from reaching into the private network.
func (s *Server) handleImageProxy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET")
		return
	}
	raw := strings.TrimSpace(r.URL.Query().Get("u"))
	if raw == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "u query parameter is required")
		return
	}

	target, err := validateProxyURL(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_url", err.Error())
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target.String(), nil)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_url", "cannot build upstream request")
		return
	}
	req.Header.Set("User-Agent", "newsreel-discovery/1.0")
	req.Header.Set("Accept", "image/avif,image/webp,image/png,image/jpeg,image/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Referer", target.Scheme+"://"+target.Host+"/")

	resp, err := imageProxyClient.Do(req)
	if err != nil {
		writeError(w, http.StatusBadGateway, "upstream_error", "upstream fetch failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		writeError(w, http.StatusBadGateway, "upstream_error",
			fmt.Sprintf("upstream returned status %d", resp.StatusCode))
		return
	}

	limited := io.LimitReader(resp.Body, maxProxyImageBytes)
	head := make([]byte, 512)
	n, err := io.ReadFull(limited, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		writeError(w, http.StatusBadGateway, "upstream_error", "upstream read failed")
		return
	}
	head = head[:n]

	contentType := http.DetectContentType(head)
	if !strings.HasPrefix(contentType, "image/") {
		writeError(w, http.StatusBadGateway, "upstream_error", "upstream returned non-image content")
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(head); err != nil {
		return
	}
	_, _ = io.Copy(w, limited)
}

// validateProxyURL rejects targets that are not plain public
// http/https hosts. Hostnames are resolved so a public name cannot
// smuggle in a private address.
func validateProxyURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.New("only http and https schemes are allowed")
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return nil, errors.New("url has no host")
	}
	if _, blocked := proxyBlockedHosts[host]; blocked {
		return nil, errors.New("host is not allowed")
	}
	if strings.HasSuffix(host, ".local") || strings.HasSuffix(host, ".localhost") {
		return nil, errors.New("host is not allowed")
	}

	if ip := net.ParseIP(host); ip != nil {
		if isBlockedIP(ip) {
			return nil, errors.New("ip address is not allowed")
		}
		return u, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("resolve host: %w", err)
	}
	for _, addr := range addrs {
		if isBlockedIP(addr.IP) {
			return nil, errors.New("host resolves to a blocked address")
		}
	}
	return u, nil
}

func isBlockedIP(ip net.IP) bool {
	return ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsMulticast() ||
		ip.IsUnspecified()
}

// newImageProxyClient builds a client that never follows more than
// five redirects and re-validates every hop.
func newImageProxyClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	transport.ForceAttemptHTTP2 = false
	return &http.Client{
		Transport: transport,
		Timeout:   12 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return errors.New("too many redirects")
			}
			if _, err := validateProxyURL(req.URL.String()); err != nil {
				return err
			}
			return nil
		},
	}
}
