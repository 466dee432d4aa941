package auth

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/blake2b"

	"tootsync/pkg/logger"
)

// ClientCredentials are application credentials issued once per instance
// (and optional account profile) by the app-registration endpoint.
type ClientCredentials struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// Token is a user access token issued by the OAuth token endpoint.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Cache persists per-instance credentials in a single cache directory.
// Files are keyed by the blake2b hex digest of the instance URL; client
// credentials additionally carry the account profile name, the user token
// does not; only one logged-in user per instance is cached.
type Cache struct {
	dir          string
	instanceHash string
	profile      string
	keyring      *TokenKeyring

	clientCreds *ClientCredentials
	token       *Token
	log         logger.Logger
}

// NewCache creates a credential cache rooted at dir, creating the directory
// if absent. keyring may be nil to disable the system keychain.
func NewCache(dir, instanceURL, profile string, keyring *TokenKeyring, log logger.Logger) (*Cache, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	if log == nil {
		log = logger.GetLogger()
	}

	sum := blake2b.Sum512([]byte(instanceURL))
	return &Cache{
		dir:          dir,
		instanceHash: hex.EncodeToString(sum[:]),
		profile:      profile,
		keyring:      keyring,
		log:          log,
	}, nil
}

func (c *Cache) clientCredentialsPath() string {
	name := c.instanceHash + "_client.json"
	if c.profile != "" {
		name = c.instanceHash + "_" + c.profile + "_client.json"
	}
	return filepath.Join(c.dir, name)
}

func (c *Cache) tokenPath() string {
	return filepath.Join(c.dir, c.instanceHash+"_user.json")
}

// ClientCredentials returns the cached application credentials, or nil when
// none are cached. The result is memoized after the first disk read.
func (c *Cache) ClientCredentials() (*ClientCredentials, error) {
	if c.clientCreds != nil {
		return c.clientCreds, nil
	}

	var creds ClientCredentials
	found, err := readJSONFile(c.clientCredentialsPath(), &creds)
	if err != nil {
		return nil, fmt.Errorf("failed to read client credentials: %w", err)
	}
	if !found {
		return nil, nil
	}
	c.clientCreds = &creds
	return c.clientCreds, nil
}

// SaveClientCredentials persists application credentials to disk and memory.
func (c *Cache) SaveClientCredentials(creds *ClientCredentials) error {
	if err := writeJSONFile(c.clientCredentialsPath(), creds); err != nil {
		return fmt.Errorf("failed to save client credentials: %w", err)
	}
	c.clientCreds = creds
	c.log.DebugWithFields("client credentials cached", map[string]interface{}{
		"path": c.clientCredentialsPath(),
	})
	return nil
}

// Token returns the cached user token, or nil when none is cached. The
// keyring, when available, takes precedence over the cache file.
func (c *Cache) Token() (*Token, error) {
	if c.token != nil {
		return c.token, nil
	}

	if c.keyring != nil {
		if token, err := c.keyring.Load(c.instanceHash); err != nil {
			c.log.WithError(err).Warn("keyring unavailable, falling back to file cache")
		} else if token != nil {
			c.token = token
			return c.token, nil
		}
	}

	var token Token
	found, err := readJSONFile(c.tokenPath(), &token)
	if err != nil {
		return nil, fmt.Errorf("failed to read token: %w", err)
	}
	if !found {
		return nil, nil
	}
	c.token = &token
	return c.token, nil
}

// SaveToken persists the user token, overwriting any prior one. The keyring
// write is best effort; the cache file is authoritative.
func (c *Cache) SaveToken(token *Token) error {
	if err := writeJSONFile(c.tokenPath(), token); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	if c.keyring != nil {
		if err := c.keyring.Save(c.instanceHash, token); err != nil {
			c.log.WithError(err).Warn("failed to store token in system keyring")
		}
	}
	c.token = token
	return nil
}

// Authorized reports whether a user token is cached in memory or on disk.
func (c *Cache) Authorized() bool {
	token, err := c.Token()
	return err == nil && token != nil
}

// Purge deletes this instance's credential files, across all profiles, and
// clears the in-memory and keyring caches. Other instances sharing the cache
// directory are untouched.
func (c *Cache) Purge() error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("failed to read cache directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), c.instanceHash) {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, entry.Name())); err != nil {
			return fmt.Errorf("failed to remove cache file %s: %w", entry.Name(), err)
		}
	}

	if c.keyring != nil {
		if err := c.keyring.Delete(c.instanceHash); err != nil {
			c.log.WithError(err).Warn("failed to remove token from system keyring")
		}
	}

	c.clientCreds = nil
	c.token = nil
	c.log.Info("credential cache purged")
	return nil
}

// readJSONFile reads path into v, reporting whether the file existed.
func readJSONFile(path string, v interface{}) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, err
	}
	return true, nil
}

func writeJSONFile(path string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
