package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/xela07ax/toolgate/internal/infra"
)

var domainRe = regexp.MustCompile(`^[a-z0-9.-]+$`)

// WebAdapter обслуживает web.* инструменты (fetch). Сам по себе он не
// решает, можно ли агенту в веб — это дело политик; здесь только лимиты
// безопасности: allow-list доменов и потолок байтов ответа.
type WebAdapter struct {
	client   *http.Client
	allowed  map[string]struct{}
	maxBytes int64
}

func NewWebAdapter(cfg infra.WebAdapterConfig) *WebAdapter {
	allowed := make(map[string]struct{}, len(cfg.AllowedDomains))
	for _, d := range cfg.AllowedDomains {
		allowed[strings.ToLower(strings.TrimSpace(d))] = struct{}{}
	}
	return &WebAdapter{
		client:   &http.Client{Timeout: cfg.Timeout},
		allowed:  allowed,
		maxBytes: cfg.MaxBytes,
	}
}

type webFetchArgs struct {
	URL string `json:"url"`
}

func (a *WebAdapter) Execute(ctx context.Context, capName string, args []byte) ([]byte, error) {
	switch capName {
	case "web.fetch":
		var in webFetchArgs
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, fmt.Errorf("bad web.fetch args: %w", err)
		}
		return a.fetch(ctx, in.URL)
	default:
		return nil, fmt.Errorf("capability %s is not served by the web adapter", capName)
	}
}

func (a *WebAdapter) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if err := a.checkURL(rawURL); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "toolgate/1.0")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// Читаем не больше maxBytes, что бы сервер ни прислал
	body, err := io.ReadAll(io.LimitReader(resp.Body, a.maxBytes))
	if err != nil {
		return nil, err
	}

	return json.Marshal(map[string]interface{}{
		"url":          rawURL,
		"status_code":  resp.StatusCode,
		"content_type": resp.Header.Get("Content-Type"),
		"text":         string(body),
	})
}

// checkURL: только http(s) и только хосты из allow-list (или их поддомены).
func (a *WebAdapter) checkURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("bad url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("url scheme %q is not allowed", parsed.Scheme)
	}
	host := strings.ToLower(parsed.Hostname())
	if host == "" || !domainRe.MatchString(host) {
		return fmt.Errorf("url host %q is not allowed", host)
	}

	for d := range a.allowed {
		if host == d || strings.HasSuffix(host, "."+d) {
			return nil
		}
	}
	return fmt.Errorf("url host %q is not in the allowed domain list", host)
}
