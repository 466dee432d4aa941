package archiver

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tootsync/pkg/auth"
	"tootsync/pkg/logger"
	"tootsync/pkg/mastodon"
	"tootsync/pkg/output"
	"tootsync/pkg/store"
	"tootsync/pkg/ui"
)

func TestMain(m *testing.M) {
	ui.SetQuietMode(true)
	os.Exit(m.Run())
}

// fixture is an account timeline plus its media files, served over
// httptest with cursor pagination.
type fixture struct {
	statuses []mastodon.Status // newest first
	media    map[string][]byte // path -> body
}

func (f *fixture) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/media/") {
			body, ok := f.media[r.URL.Path]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Write(body)
			return
		}

		maxID := r.URL.Query().Get("max_id")
		minID := r.URL.Query().Get("min_id")
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		if limit <= 0 {
			limit = 40
		}

		page := []mastodon.Status{}
		for _, s := range f.statuses {
			id, _ := strconv.Atoi(s.ID())
			if maxID != "" {
				if bound, _ := strconv.Atoi(maxID); id >= bound {
					continue
				}
			}
			if minID != "" {
				if floor, _ := strconv.Atoi(minID); id <= floor {
					continue
				}
			}
			page = append(page, s)
			if len(page) == limit {
				break
			}
		}
		json.NewEncoder(w).Encode(page)
	})
}

// newFixture builds n statuses with ids counting down from newest, each
// carrying one attachment served under /media/.
func newFixture(baseURL string, n, newest int) *fixture {
	f := &fixture{media: map[string][]byte{}}
	for i := 0; i < n; i++ {
		id := strconv.Itoa(newest - i)
		mediaPath := "/media/" + id + ".png"
		f.statuses = append(f.statuses, mastodon.Status{
			"id":      id,
			"content": "toot " + id,
			"account": map[string]interface{}{"id": "1", "username": "alice", "acct": "alice"},
			"media_attachments": []interface{}{
				map[string]interface{}{"id": "m" + id, "url": baseURL + mediaPath},
			},
		})
		f.media[mediaPath] = []byte("png " + id)
	}
	return f
}

func testAccount() mastodon.Account {
	return mastodon.Account{"id": "1", "username": "alice", "acct": "alice"}
}

func newTestClient(t *testing.T, baseURL string) *mastodon.Client {
	t.Helper()
	cache, err := auth.NewCache(t.TempDir(), baseURL, "", nil, logger.NewTestLogger())
	require.NoError(t, err)
	require.NoError(t, cache.SaveToken(&auth.Token{AccessToken: "tok", TokenType: "Bearer"}))
	return mastodon.NewClient(baseURL, cache, 0, 5*time.Second, logger.NewTestLogger())
}

func TestRunArchivesAllStatusesAndMedia(t *testing.T) {
	var f *fixture
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.handler().ServeHTTP(w, r)
	}))
	defer server.Close()
	f = newFixture(server.URL, 7, 107)

	dir := t.TempDir()
	outFile := filepath.Join(dir, "out.json")
	mediaDir := filepath.Join(dir, "media")
	sink, err := output.NewDirSink(outFile, mediaDir)
	require.NoError(t, err)

	a := New(newTestClient(t, server.URL), Options{
		Sink:      sink,
		WithMedia: true,
		PageLimit: 3,
	}, logger.NewTestLogger())
	require.NoError(t, a.Run(testAccount()))

	data, err := os.ReadFile(outFile)
	require.NoError(t, err)
	var decoded []map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Len(t, decoded, 7)

	entries, err := os.ReadDir(mediaDir)
	require.NoError(t, err)
	assert.Len(t, entries, 7)
	content, err := os.ReadFile(filepath.Join(mediaDir, "m107.png"))
	require.NoError(t, err)
	assert.Equal(t, []byte("png 107"), content)
}

func TestRunSkipsExistingMedia(t *testing.T) {
	var f *fixture
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.handler().ServeHTTP(w, r)
	}))
	defer server.Close()
	f = newFixture(server.URL, 2, 102)

	dir := t.TempDir()
	mediaDir := filepath.Join(dir, "media")
	require.NoError(t, os.MkdirAll(mediaDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(mediaDir, "m102.png"), []byte("already here"), 0644))

	sink, err := output.NewDirSink(filepath.Join(dir, "out.json"), mediaDir)
	require.NoError(t, err)

	a := New(newTestClient(t, server.URL), Options{
		Sink:      sink,
		WithMedia: true,
		PageLimit: 40,
	}, logger.NewTestLogger())
	require.NoError(t, a.Run(testAccount()))

	content, err := os.ReadFile(filepath.Join(mediaDir, "m102.png"))
	require.NoError(t, err)
	assert.Equal(t, []byte("already here"), content, "existing media must not be re-downloaded")

	content, err = os.ReadFile(filepath.Join(mediaDir, "m101.png"))
	require.NoError(t, err)
	assert.Equal(t, []byte("png 101"), content)
}

func TestRunFallsBackToLocalURL(t *testing.T) {
	var serverURL string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/media/local.png":
			w.Write([]byte("local copy"))
		case "/media/remote.png":
			w.WriteHeader(http.StatusNotFound)
		default:
			json.NewEncoder(w).Encode(pageOnce(r, []mastodon.Status{{
				"id":      "50",
				"account": map[string]interface{}{"id": "1", "username": "alice", "acct": "alice"},
				"media_attachments": []interface{}{
					map[string]interface{}{
						"id":         "m50",
						"url":        serverURL + "/media/local.png",
						"remote_url": serverURL + "/media/remote.png",
					},
				},
			}}))
		}
	}))
	defer server.Close()
	serverURL = server.URL

	dir := t.TempDir()
	mediaDir := filepath.Join(dir, "media")
	sink, err := output.NewDirSink(filepath.Join(dir, "out.json"), mediaDir)
	require.NoError(t, err)

	a := New(newTestClient(t, server.URL), Options{
		Sink:      sink,
		WithMedia: true,
		PageLimit: 40,
	}, logger.NewTestLogger())
	require.NoError(t, a.Run(testAccount()))

	// filename derives from the primary (remote) URL even when the
	// fallback served the bytes
	content, err := os.ReadFile(filepath.Join(mediaDir, "m50.png"))
	require.NoError(t, err)
	assert.Equal(t, []byte("local copy"), content)
}

func TestRunSkipsAttachmentMissingEverywhere(t *testing.T) {
	var serverURL string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/media/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(pageOnce(r, []mastodon.Status{{
			"id":      "50",
			"account": map[string]interface{}{"id": "1", "username": "alice", "acct": "alice"},
			"media_attachments": []interface{}{
				map[string]interface{}{"id": "m50", "url": serverURL + "/media/gone.png"},
			},
		}}))
	}))
	defer server.Close()
	serverURL = server.URL

	dir := t.TempDir()
	mediaDir := filepath.Join(dir, "media")
	sink, err := output.NewDirSink(filepath.Join(dir, "out.json"), mediaDir)
	require.NoError(t, err)

	a := New(newTestClient(t, server.URL), Options{
		Sink:      sink,
		WithMedia: true,
		PageLimit: 40,
	}, logger.NewTestLogger())
	require.NoError(t, a.Run(testAccount()), "a missing attachment must not abort the run")

	entries, err := os.ReadDir(mediaDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRunOptimizedPayload(t *testing.T) {
	var f *fixture
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.handler().ServeHTTP(w, r)
	}))
	defer server.Close()
	f = newFixture(server.URL, 3, 103)

	dir := t.TempDir()
	outFile := filepath.Join(dir, "out.json")
	sink, err := output.NewDirSink(outFile, "")
	require.NoError(t, err)

	a := New(newTestClient(t, server.URL), Options{
		Sink:      sink,
		Optimize:  true,
		PageLimit: 40,
	}, logger.NewTestLogger())
	require.NoError(t, a.Run(testAccount()))

	data, err := os.ReadFile(outFile)
	require.NoError(t, err)
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &doc))

	account, ok := doc["account"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "alice", account["username"])

	statuses := doc["statuses"].([]interface{})
	require.Len(t, statuses, 3)
	for _, s := range statuses {
		_, present := s.(map[string]interface{})["account"]
		assert.False(t, present)
	}
}

func TestRunIncrementalSync(t *testing.T) {
	var f *fixture
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.handler().ServeHTTP(w, r)
	}))
	defer server.Close()
	f = newFixture(server.URL, 5, 105)

	dbPath := filepath.Join(t.TempDir(), "sync.db")
	st, err := store.Open(dbPath, logger.NewTestLogger())
	require.NoError(t, err)
	defer st.Close()

	run := func() error {
		a := New(newTestClient(t, server.URL), Options{
			Store:     st,
			PageLimit: 2,
		}, logger.NewTestLogger())
		return a.Run(testAccount())
	}

	require.NoError(t, run())

	count, err := st.StatusCount()
	require.NoError(t, err)
	assert.Equal(t, 5, count)

	watermark, err := st.Watermark()
	require.NoError(t, err)
	assert.Equal(t, "105", watermark, "watermark is the newest id of the first page")

	stored, err := st.HasStatus(watermark)
	require.NoError(t, err)
	assert.True(t, stored, "watermark must point at a status present in the store")

	// second run with nothing new upstream adds no rows
	require.NoError(t, run())
	count, err = st.StatusCount()
	require.NoError(t, err)
	assert.Equal(t, 5, count)

	// two newer statuses appear upstream; only they are fetched
	newer := newFixture(server.URL, 7, 107)
	f.statuses = newer.statuses
	for k, v := range newer.media {
		f.media[k] = v
	}

	require.NoError(t, run())
	count, err = st.StatusCount()
	require.NoError(t, err)
	assert.Equal(t, 7, count)

	watermark, err = st.Watermark()
	require.NoError(t, err)
	assert.Equal(t, "107", watermark)
}

func TestRunNoWatermarkWhenStatusWriteFails(t *testing.T) {
	var f *fixture
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.handler().ServeHTTP(w, r)
	}))
	defer server.Close()
	f = newFixture(server.URL, 3, 103)

	dbPath := filepath.Join(t.TempDir(), "sync.db")
	st, err := store.Open(dbPath, logger.NewTestLogger())
	require.NoError(t, err)
	defer st.Close()

	// break status writes underneath the run; the account and watermark
	// tables stay intact
	raw, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	_, err = raw.Exec(`DROP TABLE status`)
	require.NoError(t, err)
	require.NoError(t, raw.Close())

	a := New(newTestClient(t, server.URL), Options{Store: st, PageLimit: 40}, logger.NewTestLogger())
	require.Error(t, a.Run(testAccount()))

	watermark, err := st.Watermark()
	require.NoError(t, err)
	assert.Empty(t, watermark, "a run that stored nothing must not leave a watermark")
}

func TestRunRejectsSecondAccountInStore(t *testing.T) {
	var f *fixture
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.handler().ServeHTTP(w, r)
	}))
	defer server.Close()
	f = newFixture(server.URL, 1, 101)

	dbPath := filepath.Join(t.TempDir(), "sync.db")
	st, err := store.Open(dbPath, logger.NewTestLogger())
	require.NoError(t, err)
	defer st.Close()

	a := New(newTestClient(t, server.URL), Options{Store: st, PageLimit: 40}, logger.NewTestLogger())
	require.NoError(t, a.Run(testAccount()))

	other := mastodon.Account{"id": "2", "username": "bob", "acct": "bob"}
	err = a.Run(other)
	var mismatch *store.AccountMismatchError
	require.ErrorAs(t, err, &mismatch)
}

// pageOnce returns the given page on the first uncursored request and an
// empty page once max_id is set, terminating pagination.
func pageOnce(r *http.Request, page []mastodon.Status) []mastodon.Status {
	if r.URL.Query().Get("max_id") != "" {
		return []mastodon.Status{}
	}
	return page
}
