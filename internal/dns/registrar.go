// Package dns derives project subdomains and manages their address
// records through the provider's REST API.
package dns

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Registrar creates and removes address records in the configured zone.
type Registrar struct {
	baseURL    string
	token      string
	zoneID     string
	target     string
	suffix     string
	httpClient *http.Client
}

// Option customises registrar instantiation.
type Option func(*Registrar)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(r *Registrar) {
		if h != nil {
			r.httpClient = h
		}
	}
}

// NewRegistrar constructs a Registrar for one zone. target is the address
// every project record points at; suffix is the zone's domain suffix.
func NewRegistrar(base, token, zoneID, target, suffix string, opts ...Option) (*Registrar, error) {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		return nil, fmt.Errorf("dns api base url cannot be empty")
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid dns api base url: %w", err)
	}
	r := &Registrar{
		baseURL:    strings.TrimRight(trimmed, "/"),
		token:      token,
		zoneID:     zoneID,
		target:     target,
		suffix:     strings.TrimPrefix(strings.TrimSpace(suffix), "."),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

type recordRequest struct {
	Type    string `json:"type"`
	Name    string `json:"name"`
	Content string `json:"content"`
	TTL     int    `json:"ttl"`
}

// Register creates an address record for slug and returns the fully
// qualified domain. Retrying is the caller's concern.
func (r *Registrar) Register(ctx context.Context, slug string) (string, error) {
	fqdn := r.FQDN(slug)
	body, err := json.Marshal(recordRequest{Type: "A", Name: fqdn, Content: r.target, TTL: 300})
	if err != nil {
		return "", fmt.Errorf("encode record request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/zones/%s/records", r.baseURL, r.zoneID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build record request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.token)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("create dns record: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("create dns record for %s: status %d: %s", fqdn, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return fqdn, nil
}

// Deregister removes the record for slug. A missing record is success.
func (r *Registrar) Deregister(ctx context.Context, slug string) error {
	fqdn := r.FQDN(slug)
	endpoint := fmt.Sprintf("%s/zones/%s/records/%s", r.baseURL, r.zoneID, url.PathEscape(fqdn))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build record delete: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+r.token)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("delete dns record: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("delete dns record for %s: status %d: %s", fqdn, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

// FQDN renders the fully qualified domain for a slug.
func (r *Registrar) FQDN(slug string) string {
	if r.suffix == "" {
		return slug
	}
	return slug + "." + r.suffix
}
