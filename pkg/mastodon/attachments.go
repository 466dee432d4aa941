package mastodon

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	errs "tootsync/pkg/errors"
)

// DownloadAttachment fetches a media attachment. A 404 is an expected
// outcome and returns (nil, nil) so callers can fall back to another URL.
// The bearer token is attached only when the target shares the instance's
// own base URL; remote media hosts never see the user's token.
func (c *Client) DownloadAttachment(rawurl string) ([]byte, error) {
	authed := strings.HasPrefix(rawurl, c.baseURL)

	resp, err := c.do(http.MethodGet, rawurl, requestOptions{auth: authed, tolerateStatus: true})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errs.NewHTTP(errs.ErrorTypeHTTP, resp.StatusCode,
			fmt.Sprintf("GET %s returned status %d", rawurl, resp.StatusCode))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Newf(errs.ErrorTypeNetwork, "failed to read attachment body: %v", err)
	}
	return data, nil
}
