package output

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"os"
	"path"
)

// ZipSink writes everything into a single zip archive: media under media/
// and the payload as statuses.json.
type ZipSink struct {
	file   *os.File
	writer *zip.Writer
}

// NewZipSink creates the archive at path. The file is created exclusively;
// an existing archive is never appended to.
func NewZipSink(zipPath string) (*ZipSink, error) {
	f, err := os.OpenFile(zipPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create archive: %w", err)
	}
	return &ZipSink{file: f, writer: zip.NewWriter(f)}, nil
}

func (s *ZipSink) WriteStatuses(payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode statuses: %w", err)
	}
	return s.writeEntry("statuses.json", data)
}

func (s *ZipSink) WriteMedia(filename string, data []byte) error {
	return s.writeEntry(path.Join("media", filename), data)
}

// HasMedia always reports false: entries in an archive being written cannot
// be checked, so media is always downloaded in zip mode.
func (s *ZipSink) HasMedia(string) bool {
	return false
}

func (s *ZipSink) writeEntry(name string, data []byte) error {
	w, err := s.writer.Create(name)
	if err != nil {
		return fmt.Errorf("failed to create archive entry %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write archive entry %s: %w", name, err)
	}
	return nil
}

func (s *ZipSink) Close() error {
	if err := s.writer.Close(); err != nil {
		s.file.Close()
		return fmt.Errorf("failed to finalize archive: %w", err)
	}
	return s.file.Close()
}
