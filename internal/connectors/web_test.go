package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/toolgate/internal/infra"
)

func newWebAdapter(t *testing.T, domains []string, maxBytes int64) *WebAdapter {
	t.Helper()
	return NewWebAdapter(infra.WebAdapterConfig{
		AllowedDomains: domains,
		MaxBytes:       maxBytes,
		Timeout:        5 * time.Second,
	})
}

func fetchArgs(t *testing.T, rawURL string) []byte {
	t.Helper()
	args, err := json.Marshal(map[string]string{"url": rawURL})
	require.NoError(t, err)
	return args
}

func TestWebFetchAllowedDomain(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, "hello from upstream")
	}))
	defer srv.Close()

	host := mustHostname(t, srv.URL)
	adapter := newWebAdapter(t, []string{host}, 1<<20)

	out, err := adapter.Execute(context.Background(), "web.fetch", fetchArgs(t, srv.URL))
	require.NoError(t, err)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &resp))
	assert.Equal(t, float64(http.StatusOK), resp["status_code"])
	assert.Equal(t, "hello from upstream", resp["text"])
	assert.Equal(t, "text/plain", resp["content_type"])
}

func TestWebFetchRejectsUnlistedHost(t *testing.T) {
	adapter := newWebAdapter(t, []string{"docs.example.com"}, 1<<20)

	_, err := adapter.Execute(context.Background(), "web.fetch",
		fetchArgs(t, "https://evil.example.org/payload"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not in the allowed domain list")
}

func TestWebFetchAllowsSubdomains(t *testing.T) {
	adapter := newWebAdapter(t, []string{"example.com"}, 1<<20)

	// Поддомен проходит проверку allow-list, суффиксная подделка — нет
	require.NoError(t, adapter.checkURL("https://docs.example.com/page"))
	require.Error(t, adapter.checkURL("https://notexample.com/page"))
}

func TestWebFetchRejectsNonHTTPScheme(t *testing.T) {
	adapter := newWebAdapter(t, []string{"example.com"}, 1<<20)

	_, err := adapter.Execute(context.Background(), "web.fetch",
		fetchArgs(t, "file:///etc/passwd"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scheme")
}

func TestWebFetchTruncatesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, strings.Repeat("x", 1000))
	}))
	defer srv.Close()

	adapter := newWebAdapter(t, []string{mustHostname(t, srv.URL)}, 64)

	out, err := adapter.Execute(context.Background(), "web.fetch", fetchArgs(t, srv.URL))
	require.NoError(t, err)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &resp))
	assert.Len(t, resp["text"], 64)
}

func TestWebAdapterRejectsUnknownCapability(t *testing.T) {
	adapter := newWebAdapter(t, []string{"example.com"}, 1<<20)

	_, err := adapter.Execute(context.Background(), "web.submit", []byte(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not served")
}

func mustHostname(t *testing.T, rawURL string) string {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	return u.Hostname()
}
