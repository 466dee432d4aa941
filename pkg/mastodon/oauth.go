package mastodon

import (
	"net/url"

	"tootsync/pkg/auth"
	errs "tootsync/pkg/errors"
	"tootsync/pkg/retry"
)

// appRegistration is the app-registration request body.
type appRegistration struct {
	ClientName   string `json:"client_name"`
	RedirectURIs string `json:"redirect_uris"`
	Scopes       string `json:"scopes"`
	Website      string `json:"website"`
}

// ClientCredentials returns the application credentials for this instance,
// registering a new application with the server on first use. The result is
// cached on disk and memoized; a registration is performed at most once per
// (instance, profile) pair.
func (c *Client) ClientCredentials() (*auth.ClientCredentials, error) {
	creds, err := c.cache.ClientCredentials()
	if err != nil {
		return nil, err
	}
	if creds != nil {
		return creds, nil
	}

	c.log.InfoWithFields("registering application", map[string]interface{}{
		"instance": c.baseURL,
	})

	registered, err := retry.OnRateLimit(c.log, func() (*auth.ClientCredentials, error) {
		var response auth.ClientCredentials
		err := c.postJSON(AppsPath, appRegistration{
			ClientName:   ClientName,
			RedirectURIs: RedirectURI,
			Scopes:       Scopes,
			Website:      Website,
		}, &response)
		if err != nil {
			return nil, err
		}
		return &response, nil
	})
	if err != nil {
		return nil, err
	}
	if registered.ClientID == "" || registered.ClientSecret == "" {
		return nil, errs.New(errs.ErrorTypeParsing, "app registration response missing client credentials")
	}

	if err := c.cache.SaveClientCredentials(registered); err != nil {
		return nil, err
	}
	return registered, nil
}

// AuthorizeURL builds the URL the user opens in a browser to authorize the
// application. The server shows the authorization code out-of-band; the user
// pastes it back into CreateToken.
func (c *Client) AuthorizeURL() (string, error) {
	creds, err := c.ClientCredentials()
	if err != nil {
		return "", err
	}

	params := url.Values{}
	params.Set("response_type", "code")
	params.Set("client_id", creds.ClientID)
	params.Set("redirect_uri", RedirectURI)
	params.Set("scope", Scopes)
	return c.baseURL + AuthorizePath + "?" + params.Encode(), nil
}

// CreateToken exchanges an authorization code for an access token and
// persists it, overwriting any previously cached token.
func (c *Client) CreateToken(code string) (*auth.Token, error) {
	creds, err := c.ClientCredentials()
	if err != nil {
		return nil, err
	}

	token, err := retry.OnRateLimit(c.log, func() (*auth.Token, error) {
		form := url.Values{}
		form.Set("grant_type", "authorization_code")
		form.Set("code", code)
		form.Set("client_id", creds.ClientID)
		form.Set("client_secret", creds.ClientSecret)
		form.Set("redirect_uri", RedirectURI)

		var response auth.Token
		if err := c.postForm(TokenPath, form, &response); err != nil {
			return nil, err
		}
		return &response, nil
	})
	if err != nil {
		return nil, err
	}
	if token.AccessToken == "" {
		return nil, errs.New(errs.ErrorTypeParsing, "token response missing access token")
	}

	if err := c.cache.SaveToken(token); err != nil {
		return nil, err
	}
	c.log.Info("access token created and cached")
	return token, nil
}
