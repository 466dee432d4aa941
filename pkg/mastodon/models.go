package mastodon

import "strings"

// Document is a semi-structured API record. Statuses and accounts are kept
// as raw maps rather than typed structs: only a handful of fields are ever
// inspected, and the full upstream schema churns too often to model.
type Document map[string]interface{}

// Str returns the string value of a top-level field, or "" when absent or
// not a string.
func (d Document) Str(key string) string {
	if v, ok := d[key].(string); ok {
		return v
	}
	return ""
}

// ID returns the record's id field.
func (d Document) ID() string {
	return d.Str("id")
}

// Status is a single post. Its id doubles as a pagination cursor: larger
// ids are newer.
type Status = Document

// Account is an account record.
type Account = Document

// AccountUsername returns the account's local username.
func AccountUsername(a Account) string {
	return a.Str("username")
}

// AccountAcct returns the account's acct handle: the bare username for local
// accounts, username@domain for remote ones.
func AccountAcct(a Account) string {
	return a.Str("acct")
}

// AccountHomeDomain derives the account's home instance domain from its acct
// handle. Local accounts carry no domain part; the caller's own instance
// domain is returned instead.
func AccountHomeDomain(a Account, instanceDomain string) string {
	parts := strings.Split(AccountAcct(a), "@")
	if len(parts) == 2 {
		return parts[1]
	}
	return instanceDomain
}

// Attachment references a piece of media attached to a status.
type Attachment struct {
	ID        string
	URL       string
	RemoteURL string
}

// PrimaryURL is the URL to try first: the remote original when the status
// was federated in, the local copy otherwise.
func (a Attachment) PrimaryURL() string {
	if a.RemoteURL != "" {
		return a.RemoteURL
	}
	return a.URL
}

// FallbackURL is the URL to try when the primary 404s. There is a fallback
// only when a remote URL existed.
func (a Attachment) FallbackURL() string {
	if a.RemoteURL != "" {
		return a.URL
	}
	return ""
}

// Filename is the destination file name: the attachment id plus the final
// extension of the primary URL's last path segment.
func (a Attachment) Filename() string {
	source := a.PrimaryURL()
	segment := source
	if i := strings.LastIndex(source, "/"); i >= 0 {
		segment = source[i+1:]
	}
	suffix := segment
	if i := strings.LastIndex(segment, "."); i >= 0 {
		suffix = segment[i+1:]
	}
	return a.ID + "." + suffix
}

// StatusAttachments extracts the media attachments of a status.
func StatusAttachments(s Status) []Attachment {
	raw, ok := s["media_attachments"].([]interface{})
	if !ok {
		return nil
	}
	attachments := make([]Attachment, 0, len(raw))
	for _, entry := range raw {
		m, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		doc := Document(m)
		attachments = append(attachments, Attachment{
			ID:        doc.Str("id"),
			URL:       doc.Str("url"),
			RemoteURL: doc.Str("remote_url"),
		})
	}
	return attachments
}

// StatusAccount returns the account embedded in a status, or nil.
func StatusAccount(s Status) Account {
	if m, ok := s["account"].(map[string]interface{}); ok {
		return Account(m)
	}
	return nil
}
