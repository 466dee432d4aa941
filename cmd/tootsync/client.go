package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"tootsync/pkg/auth"
	"tootsync/pkg/config"
	"tootsync/pkg/logger"
	"tootsync/pkg/mastodon"
	"tootsync/pkg/ui"
)

// buildClient resolves the instance and wires up the credential cache and
// API client from the loaded configuration.
func buildClient(cfg *config.Config, domain string, log logger.Logger) (*mastodon.Client, error) {
	resolver := mastodon.NewResolver(cfg.RateLimit.RequestTimeout, log)
	baseURL, err := resolver.Resolve(domain)
	if err != nil {
		return nil, err
	}
	log.WithField("base_url", baseURL).Info("instance resolved")

	var keyring *auth.TokenKeyring
	if cfg.Cache.KeyringEnabled {
		keyring, err = auth.NewTokenKeyring()
		if err != nil {
			log.WithError(err).Debug("system keyring unavailable, using file cache only")
			keyring = nil
		}
	}

	cache, err := auth.NewCache(cfg.Cache.Directory, baseURL, cfg.Instance.AccountProfile, keyring, log)
	if err != nil {
		return nil, err
	}

	return mastodon.NewClient(baseURL, cache, cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.RequestTimeout, log), nil
}

// login runs the out-of-band authorization flow: the user opens the printed
// URL in a browser, approves access, and pastes the code back.
func login(client *mastodon.Client) error {
	authorizeURL, err := client.AuthorizeURL()
	if err != nil {
		return err
	}

	fmt.Println("\nOpen this URL in your browser and authorize the application:")
	fmt.Println("  " + ui.Cyan(authorizeURL))
	fmt.Println()

	code, err := promptAuthCode()
	if err != nil {
		return err
	}
	if code == "" {
		return fmt.Errorf("no authorization code entered")
	}

	if _, err := client.CreateToken(code); err != nil {
		return err
	}
	ui.PrintSuccess("Logged in successfully")
	return nil
}

// promptAuthCode reads the pasted authorization code. On a terminal the
// input is hidden like a password; otherwise it is read as a plain line.
func promptAuthCode() (string, error) {
	fmt.Print("Authorization code: ")
	if term.IsTerminal(int(syscall.Stdin)) {
		code, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("failed to read authorization code: %w", err)
		}
		return strings.TrimSpace(string(code)), nil
	}
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read authorization code: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// confirm asks a yes/no question and returns the answer. Anything other
// than y/yes counts as no.
func confirm(question string) bool {
	fmt.Printf("%s [y/N]: ", question)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
