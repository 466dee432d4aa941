package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"tootsync/pkg/mastodon"
)

// Sink receives the archived statuses and their media. Implementations are
// single-owner and not safe for concurrent use; the archiver writes
// sequentially.
type Sink interface {
	// WriteStatuses writes the final JSON payload.
	WriteStatuses(payload interface{}) error
	// WriteMedia writes one media file.
	WriteMedia(filename string, data []byte) error
	// HasMedia reports whether the media file already exists at the
	// destination, allowing re-downloads to be skipped. Archive sinks always
	// report false: an open archive cannot be probed for entries.
	HasMedia(filename string) bool
	// Close finalizes the sink.
	Close() error
}

// DefaultFilename builds the default output file name for an account:
// <username>_<domain>_<date>.json or .zip.
func DefaultFilename(username, domain string, zip bool, now time.Time) string {
	ext := "json"
	if zip {
		ext = "zip"
	}
	return fmt.Sprintf("%s_%s_%s.%s", username, domain, now.Format("2006-01-02"), ext)
}

// Optimize reshapes the accumulated statuses for smaller output: the account
// embedded in every status is removed and hoisted once to the top level. The
// input slice is modified in place.
func Optimize(statuses []mastodon.Status) interface{} {
	var account mastodon.Account
	if len(statuses) > 0 {
		account = mastodon.StatusAccount(statuses[0])
	}
	for _, status := range statuses {
		delete(status, "account")
	}
	return map[string]interface{}{
		"account":  account,
		"statuses": statuses,
	}
}

// DirSink writes the JSON payload to a file and media into a directory.
type DirSink struct {
	outputFile string
	mediaDir   string
}

// NewDirSink creates a sink writing the payload to outputFile and media into
// mediaDir. An empty mediaDir disables media writing; otherwise the
// directory is created if absent.
func NewDirSink(outputFile, mediaDir string) (*DirSink, error) {
	if mediaDir != "" {
		if err := os.MkdirAll(mediaDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create media directory: %w", err)
		}
	}
	return &DirSink{outputFile: outputFile, mediaDir: mediaDir}, nil
}

func (s *DirSink) WriteStatuses(payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode statuses: %w", err)
	}
	if err := os.WriteFile(s.outputFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	return nil
}

// WriteMedia writes a media file atomically: a temp file is renamed into
// place so an interrupted run never leaves a truncated file.
func (s *DirSink) WriteMedia(filename string, data []byte) error {
	path := filepath.Join(s.mediaDir, filename)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write media file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to finalize media file: %w", err)
	}
	return nil
}

func (s *DirSink) HasMedia(filename string) bool {
	if s.mediaDir == "" {
		return false
	}
	_, err := os.Stat(filepath.Join(s.mediaDir, filename))
	return err == nil
}

func (s *DirSink) Close() error {
	return nil
}
