package archiver

import (
	"tootsync/pkg/mastodon"
	"tootsync/pkg/retry"
	"tootsync/pkg/ui"
)

// downloadStatusMedia downloads every attachment of one status into the
// sink. A missing or failing attachment is skipped with a warning; one bad
// file never aborts the run.
func (a *Archiver) downloadStatusMedia(status mastodon.Status, progress *ui.ProgressDisplay) {
	for _, attachment := range mastodon.StatusAttachments(status) {
		filename := attachment.Filename()
		if a.opts.Sink.HasMedia(filename) {
			a.log.DebugWithFields("media already downloaded, skipping", map[string]interface{}{
				"status_id": status.ID(),
				"file":      filename,
			})
			progress.MediaSkipped()
			continue
		}

		data, err := a.fetchAttachment(attachment)
		if err != nil {
			a.log.WithError(err).WarnWithFields("failed to download attachment", map[string]interface{}{
				"status_id": status.ID(),
				"url":       attachment.PrimaryURL(),
			})
			progress.Error()
			continue
		}
		if data == nil {
			a.log.WarnWithFields("attachment not found at any source, skipping", map[string]interface{}{
				"status_id": status.ID(),
				"url":       attachment.PrimaryURL(),
			})
			progress.MediaSkipped()
			continue
		}

		if err := a.opts.Sink.WriteMedia(filename, data); err != nil {
			a.log.WithError(err).WarnWithFields("failed to write media file", map[string]interface{}{
				"file": filename,
			})
			progress.Error()
			continue
		}
		progress.MediaDownloaded()
	}
}

// fetchAttachment tries the primary URL, then the fallback on a miss. Each
// attempt gets its own rate limit retry. A nil result with no error means
// the media was not found anywhere.
func (a *Archiver) fetchAttachment(attachment mastodon.Attachment) ([]byte, error) {
	data, err := retry.OnRateLimit(a.log, func() ([]byte, error) {
		return a.client.DownloadAttachment(attachment.PrimaryURL())
	})
	if err != nil || data != nil {
		return data, err
	}

	fallback := attachment.FallbackURL()
	if fallback == "" {
		return nil, nil
	}
	a.log.DebugWithFields("primary attachment URL missed, trying fallback", map[string]interface{}{
		"primary":  attachment.PrimaryURL(),
		"fallback": fallback,
	})
	return retry.OnRateLimit(a.log, func() ([]byte, error) {
		return a.client.DownloadAttachment(fallback)
	})
}
