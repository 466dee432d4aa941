package mastodon

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	errs "tootsync/pkg/errors"
	"tootsync/pkg/logger"
)

// Resolver turns a user-supplied domain into a validated, canonical instance
// base URL. It rejects domains that redirect the discovery request away from
// the webfinger path and servers not running Mastodon, so the archiver never
// silently talks to an unrelated or incompatible site.
type Resolver struct {
	httpClient *http.Client
	log        logger.Logger
}

// NewResolver creates an instance resolver with the given request timeout.
func NewResolver(timeout time.Duration, log logger.Logger) *Resolver {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Resolver{
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

type nodeinfoIndex struct {
	Links []struct {
		Href string `json:"href"`
	} `json:"links"`
}

type nodeinfoDocument struct {
	Software struct {
		Name string `json:"name"`
	} `json:"software"`
}

// Resolve validates a domain and returns the canonical instance base URL
// (scheme and host, no trailing path).
func (r *Resolver) Resolve(domain string) (string, error) {
	r.log.InfoWithFields("resolving instance", map[string]interface{}{
		"domain": domain,
	})

	// Webfinger probe. Redirects are followed; the effective URL must still
	// end with the webfinger path or the domain is fronting something else.
	resp, err := r.get(fmt.Sprintf("https://%s%s", domain, WebfingerPath))
	if err != nil {
		return "", err
	}
	resp.Body.Close()
	effective := resp.Request.URL.String()
	if !strings.HasSuffix(effective, WebfingerPath) {
		return "", errs.Newf(errs.ErrorTypeInvalidInstance,
			"webfinger request for %q redirected away from webfinger path to %q", domain, effective)
	}
	baseURL := strings.TrimSuffix(effective, WebfingerPath)

	// Lightweight existence check against the base URL itself.
	head, err := http.NewRequest(http.MethodHead, baseURL, nil)
	if err != nil {
		return "", errs.Newf(errs.ErrorTypeNetwork, "failed to create request: %v", err)
	}
	head.Header.Set("User-Agent", UserAgent)
	headResp, err := r.httpClient.Do(head)
	if err != nil {
		return "", errs.Newf(errs.ErrorTypeNetwork, "network error: %v", err)
	}
	headResp.Body.Close()
	if headResp.StatusCode < 200 || headResp.StatusCode >= 300 {
		return "", errs.NewHTTP(errs.ErrorTypeHTTP, headResp.StatusCode,
			fmt.Sprintf("instance %q returned status %d", baseURL, headResp.StatusCode))
	}

	software, err := r.nodeinfoSoftware(baseURL)
	if err != nil {
		return "", err
	}
	if software != "mastodon" {
		return "", errs.Newf(errs.ErrorTypeNotMastodon,
			"instance %q runs %q, not mastodon", baseURL, software)
	}

	r.log.InfoWithFields("instance resolved", map[string]interface{}{
		"domain":   domain,
		"base_url": baseURL,
	})
	return baseURL, nil
}

// nodeinfoSoftware fetches the nodeinfo index, follows the first link and
// returns the advertised software name.
func (r *Resolver) nodeinfoSoftware(baseURL string) (string, error) {
	var index nodeinfoIndex
	if err := r.getJSON(baseURL+NodeinfoPath, &index); err != nil {
		return "", err
	}
	if len(index.Links) == 0 {
		return "", errs.Newf(errs.ErrorTypeNotMastodon, "nodeinfo index of %q lists no documents", baseURL)
	}

	var doc nodeinfoDocument
	if err := r.getJSON(index.Links[0].Href, &doc); err != nil {
		return "", err
	}
	return doc.Software.Name, nil
}

func (r *Resolver) get(url string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, errs.Newf(errs.ErrorTypeNetwork, "failed to create request: %v", err)
	}
	req.Header.Set("User-Agent", UserAgent)
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, errs.Newf(errs.ErrorTypeNetwork, "network error: %v", err)
	}
	return resp, nil
}

func (r *Resolver) getJSON(url string, target interface{}) error {
	resp, err := r.get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errs.NewHTTP(errs.ErrorTypeHTTP, resp.StatusCode,
			fmt.Sprintf("GET %s returned status %d", url, resp.StatusCode))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errs.Newf(errs.ErrorTypeNetwork, "failed to read response body: %v", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return errs.Newf(errs.ErrorTypeParsing, "failed to parse JSON from %s: %v", url, err)
	}
	return nil
}
