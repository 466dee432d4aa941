package output

import (
	"archive/zip"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tootsync/pkg/mastodon"
)

func TestDefaultFilename(t *testing.T) {
	now := time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "alice_example.social_2024-03-09.json", DefaultFilename("alice", "example.social", false, now))
	assert.Equal(t, "alice_example.social_2024-03-09.zip", DefaultFilename("alice", "example.social", true, now))
}

func TestOptimizeHoistsAccount(t *testing.T) {
	account := map[string]interface{}{"id": "7", "username": "alice"}
	statuses := []mastodon.Status{
		{"id": "2", "content": "second", "account": account},
		{"id": "1", "content": "first", "account": account},
	}

	payload := Optimize(statuses)

	doc, ok := payload.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, mastodon.Account(account), doc["account"])
	for _, status := range doc["statuses"].([]mastodon.Status) {
		_, present := status["account"]
		assert.False(t, present, "account should be removed from each status")
	}
}

func TestOptimizeEmpty(t *testing.T) {
	payload := Optimize(nil)
	doc := payload.(map[string]interface{})
	assert.Nil(t, doc["account"])
}

func TestDirSinkWriteStatuses(t *testing.T) {
	dir := t.TempDir()
	outFile := filepath.Join(dir, "out.json")

	sink, err := NewDirSink(outFile, "")
	require.NoError(t, err)
	defer sink.Close()

	statuses := []mastodon.Status{{"id": "1", "content": "hello"}}
	require.NoError(t, sink.WriteStatuses(statuses))

	data, err := os.ReadFile(outFile)
	require.NoError(t, err)

	var decoded []map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, "hello", decoded[0]["content"])
}

func TestDirSinkMedia(t *testing.T) {
	dir := t.TempDir()
	mediaDir := filepath.Join(dir, "media")

	sink, err := NewDirSink(filepath.Join(dir, "out.json"), mediaDir)
	require.NoError(t, err)
	defer sink.Close()

	assert.False(t, sink.HasMedia("a.png"))
	require.NoError(t, sink.WriteMedia("a.png", []byte("pixels")))
	assert.True(t, sink.HasMedia("a.png"))

	data, err := os.ReadFile(filepath.Join(mediaDir, "a.png"))
	require.NoError(t, err)
	assert.Equal(t, []byte("pixels"), data)

	// no temp file left behind
	entries, err := os.ReadDir(mediaDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestDirSinkNoMediaDir(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewDirSink(filepath.Join(dir, "out.json"), "")
	require.NoError(t, err)
	assert.False(t, sink.HasMedia("a.png"))
}

func TestZipSink(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "archive.zip")

	sink, err := NewZipSink(zipPath)
	require.NoError(t, err)

	assert.False(t, sink.HasMedia("a.png"), "archive sink never reports existing media")
	require.NoError(t, sink.WriteMedia("a.png", []byte("pixels")))
	require.NoError(t, sink.WriteStatuses([]mastodon.Status{{"id": "1"}}))
	require.NoError(t, sink.Close())

	r, err := zip.OpenReader(zipPath)
	require.NoError(t, err)
	defer r.Close()

	names := map[string][]byte{}
	for _, f := range r.File {
		rc, err := f.Open()
		require.NoError(t, err)
		buf, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()
		names[f.Name] = buf
	}
	assert.Contains(t, names, "media/a.png")
	assert.Contains(t, names, "statuses.json")
	assert.Equal(t, []byte("pixels"), names["media/a.png"])
}

func TestZipSinkRefusesExistingFile(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "archive.zip")
	require.NoError(t, os.WriteFile(zipPath, []byte("old"), 0644))

	_, err := NewZipSink(zipPath)
	assert.Error(t, err)
}
