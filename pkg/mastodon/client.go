package mastodon

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tootsync/pkg/auth"
	errs "tootsync/pkg/errors"
	"tootsync/pkg/logger"
	"tootsync/pkg/ratelimit"
)

// Client is a Mastodon API client bound to one resolved instance. Every
// outbound request passes through a single chokepoint that attaches the
// User-Agent, bearer auth when requested, request pacing, the timeout, and
// converts HTTP 429 into a typed RateLimitError.
type Client struct {
	httpClient *http.Client
	baseURL    string
	cache      *auth.Cache
	limiter    ratelimit.Limiter
	log        logger.Logger
}

// NewClient creates a client for an already-resolved instance base URL.
// requestsPerSecond of zero disables pacing.
func NewClient(baseURL string, cache *auth.Cache, requestsPerSecond float64, timeout time.Duration, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}
	var limiter ratelimit.Limiter = ratelimit.None{}
	if requestsPerSecond > 0 {
		limiter = ratelimit.NewInterval(requestsPerSecond)
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		cache:      cache,
		limiter:    limiter,
		log:        log,
	}
}

// BaseURL returns the instance base URL the client is bound to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Authorized reports whether a user token is cached for this instance.
func (c *Client) Authorized() bool {
	return c.cache.Authorized()
}

// PurgeCredentials deletes this instance's cached credentials, forcing a
// fresh registration and authorization on next use.
func (c *Client) PurgeCredentials() error {
	return c.cache.Purge()
}

// requestOptions control a single request through the chokepoint.
type requestOptions struct {
	params url.Values
	form   url.Values
	json   interface{}
	// auth attaches the cached bearer token.
	auth bool
	// tolerateStatus suppresses the generic non-2xx failure; used only for
	// media fetches where 404 is an expected outcome.
	tolerateStatus bool
}

// do issues a request through the chokepoint. The caller owns the response
// body on success.
func (c *Client) do(method, rawurl string, opts requestOptions) (*http.Response, error) {
	if len(opts.params) > 0 {
		sep := "?"
		if strings.Contains(rawurl, "?") {
			sep = "&"
		}
		rawurl += sep + opts.params.Encode()
	}

	var body io.Reader
	contentType := ""
	switch {
	case opts.json != nil:
		data, err := json.Marshal(opts.json)
		if err != nil {
			return nil, errs.Newf(errs.ErrorTypeParsing, "failed to encode request body: %v", err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	case opts.form != nil:
		body = strings.NewReader(opts.form.Encode())
		contentType = "application/x-www-form-urlencoded"
	}

	req, err := http.NewRequest(method, rawurl, body)
	if err != nil {
		return nil, errs.Newf(errs.ErrorTypeNetwork, "failed to create request: %v", err)
	}
	req.Header.Set("User-Agent", UserAgent)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if opts.auth {
		token, err := c.cache.Token()
		if err != nil {
			return nil, err
		}
		if token == nil {
			return nil, errs.New(errs.ErrorTypeNotAuthorized, "no access token cached, authorize first")
		}
		req.Header.Set("Authorization", token.TokenType+" "+token.AccessToken)
	}

	c.limiter.Wait()

	start := time.Now()
	c.log.DebugWithFields("sending HTTP request", map[string]interface{}{
		"method": method,
		"url":    rawurl,
	})

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.ErrorWithFields("HTTP request failed", map[string]interface{}{
			"method": method,
			"url":    rawurl,
			"error":  err.Error(),
		})
		return nil, errs.Newf(errs.ErrorTypeNetwork, "network error: %v", err)
	}

	c.log.DebugWithFields("HTTP request completed", map[string]interface{}{
		"method":   method,
		"url":      rawurl,
		"status":   resp.StatusCode,
		"duration": time.Since(start),
	})

	if resp.StatusCode == http.StatusTooManyRequests {
		reset := c.parseRateLimitReset(resp)
		resp.Body.Close()
		c.log.WarnWithFields("rate limit exceeded", map[string]interface{}{
			"url":   rawurl,
			"reset": reset,
		})
		return nil, &errs.RateLimitError{Reset: reset}
	}

	if !opts.tolerateStatus && (resp.StatusCode < 200 || resp.StatusCode >= 300) {
		resp.Body.Close()
		return nil, errs.NewHTTP(errs.ErrorTypeHTTP, resp.StatusCode,
			fmt.Sprintf("%s %s returned status %d", method, rawurl, resp.StatusCode))
	}

	return resp, nil
}

// parseRateLimitReset reads the X-RateLimit-Reset header. An absent or
// malformed header falls back to a short flat delay.
func (c *Client) parseRateLimitReset(resp *http.Response) time.Time {
	header := resp.Header.Get("X-RateLimit-Reset")
	reset, err := time.Parse(time.RFC3339, header)
	if err != nil {
		c.log.WarnWithFields("unparseable rate limit reset header", map[string]interface{}{
			"header": header,
		})
		return time.Now().Add(30 * time.Second)
	}
	return reset
}

// getJSON issues a GET and decodes the JSON response into target.
func (c *Client) getJSON(path string, params url.Values, authed bool, target interface{}) error {
	resp, err := c.do(http.MethodGet, c.baseURL+path, requestOptions{params: params, auth: authed})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.decodeJSON(resp, target)
}

// postJSON issues a POST with a JSON body and decodes the JSON response.
func (c *Client) postJSON(path string, body interface{}, target interface{}) error {
	resp, err := c.do(http.MethodPost, c.baseURL+path, requestOptions{json: body})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.decodeJSON(resp, target)
}

// postForm issues a POST with a form-encoded body and decodes the JSON
// response.
func (c *Client) postForm(path string, form url.Values, target interface{}) error {
	resp, err := c.do(http.MethodPost, c.baseURL+path, requestOptions{form: form})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.decodeJSON(resp, target)
}

func (c *Client) decodeJSON(resp *http.Response, target interface{}) error {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errs.Newf(errs.ErrorTypeNetwork, "failed to read response body: %v", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		preview := string(data)
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		c.log.ErrorWithFields("failed to parse JSON response", map[string]interface{}{
			"url":          resp.Request.URL.String(),
			"status":       resp.StatusCode,
			"body_preview": preview,
		})
		return errs.Newf(errs.ErrorTypeParsing, "failed to parse JSON: %v", err)
	}
	return nil
}
