package mastodon

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "tootsync/pkg/errors"
	"tootsync/pkg/logger"
)

// newInstanceServer serves the discovery endpoints of a fake instance
// reporting the given software name.
func newInstanceServer(software string) *httptest.Server {
	mux := http.NewServeMux()
	var server *httptest.Server
	mux.HandleFunc(WebfingerPath, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest) // no query; status is irrelevant to resolution
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusOK)
			return
		}
		http.NotFound(w, r)
	})
	mux.HandleFunc(NodeinfoPath, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"links":[{"rel":"self","href":"%s/nodeinfo/2.0"}]}`, server.URL)
	})
	mux.HandleFunc("/nodeinfo/2.0", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"software":{"name":"%s","version":"4.2.0"}}`, software)
	})
	server = httptest.NewServer(mux)
	return server
}

// resolveURL resolves against a test server, bypassing the https scheme the
// production path prepends.
func resolveTestServer(t *testing.T, server *httptest.Server) (string, error) {
	t.Helper()
	r := NewResolver(5*time.Second, logger.NewTestLogger())
	domain := strings.TrimPrefix(server.URL, "http://")

	// The resolver always dials https; rewrite test requests to the plain
	// listener instead.
	r.httpClient.Transport = rewriteScheme{base: http.DefaultTransport}
	return r.Resolve(domain)
}

// rewriteScheme downgrades https requests to http for httptest servers.
type rewriteScheme struct {
	base http.RoundTripper
}

func (rt rewriteScheme) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Scheme == "https" {
		req.URL.Scheme = "http"
	}
	return rt.base.RoundTrip(req)
}

func TestResolveValidInstance(t *testing.T) {
	server := newInstanceServer("mastodon")
	defer server.Close()

	baseURL, err := resolveTestServer(t, server)
	require.NoError(t, err)
	assert.Equal(t, server.URL, baseURL)
	assert.False(t, strings.HasSuffix(baseURL, WebfingerPath))
	assert.False(t, strings.HasSuffix(baseURL, NodeinfoPath))
}

func TestResolveRejectsOffPathRedirect(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(WebfingerPath, func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/somewhere/else", http.StatusFound)
	})
	mux.HandleFunc("/somewhere/else", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	_, err := resolveTestServer(t, server)

	var typed *errs.Error
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, errs.ErrorTypeInvalidInstance, typed.Type)
	assert.Contains(t, typed.Message, "redirected away from webfinger path")
}

func TestResolveRejectsNonMastodonSoftware(t *testing.T) {
	server := newInstanceServer("pleroma")
	defer server.Close()

	_, err := resolveTestServer(t, server)

	var typed *errs.Error
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, errs.ErrorTypeNotMastodon, typed.Type)
	assert.Contains(t, typed.Message, "pleroma")
}

func TestResolveRejectsEmptyNodeinfoLinks(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(WebfingerPath, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc(NodeinfoPath, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"links":[]}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	_, err := resolveTestServer(t, server)

	var typed *errs.Error
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, errs.ErrorTypeNotMastodon, typed.Type)
}

func TestResolveRejectsFailingExistenceCheck(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(WebfingerPath, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	_, err := resolveTestServer(t, server)

	var typed *errs.Error
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, errs.ErrorTypeHTTP, typed.Type)
	assert.Equal(t, http.StatusServiceUnavailable, typed.Code)
}
