// Package testutil holds helpers shared by package tests.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
)

// SkipIfNoNetwork skips the test if ROOMLINE_TEST_SKIP_NETWORK is set.
// Use this for tests that open loopback listeners, which may not be
// available in sandboxed environments.
func SkipIfNoNetwork(t testing.TB) {
	t.Helper()
	if os.Getenv("ROOMLINE_TEST_SKIP_NETWORK") != "" {
		t.Skip("skipping network test: ROOMLINE_TEST_SKIP_NETWORK is set")
	}
}

// NewServer starts an httptest server for handler that is closed when the test ends.
func NewServer(t testing.TB, handler http.Handler) *httptest.Server {
	t.Helper()
	SkipIfNoNetwork(t)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

// WebsocketURL turns an http(s) server URL into its ws(s) form.
func WebsocketURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}
