package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"tootsync/pkg/config"
	"tootsync/pkg/logger"
	"tootsync/pkg/mastodon"
	"tootsync/pkg/ui"
)

var authProfile string

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage cached instance credentials",
	Long: `Manage the cached application and user credentials for an instance.

Application credentials are registered once per instance and profile. The
user access token is stored in the system keyring when available, with a
file fallback in the cache directory.`,
}

// loginCmd represents the auth login command
var loginCmd = &cobra.Command{
	Use:   "login <domain>",
	Short: "Authorize with an instance",
	Long: `Run the out-of-band authorization flow against an instance.

A cached token is replaced. Use --account-profile to keep separate
application registrations for different accounts on the same instance.`,
	Example: `  # Authorize with your instance
  tootsync auth login example.social

  # Authorize under a named profile
  tootsync auth login example.social --account-profile work`,
	Args: cobra.ExactArgs(1),
	Run:  runLogin,
}

// statusCmd represents the auth status command
var statusCmd = &cobra.Command{
	Use:   "status <domain>",
	Short: "Show whether an instance has a cached token",
	Args:  cobra.ExactArgs(1),
	Run:   runStatus,
}

// purgeCmd represents the auth purge command
var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete all cached credentials",
	Long: `Delete every cached credential file and remove stored tokens from the
system keyring. The next archive run will register and authorize again.`,
	Args: cobra.MaximumNArgs(1),
	Run:  runPurge,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(statusCmd)
	authCmd.AddCommand(purgeCmd)

	loginCmd.Flags().StringVarP(&authProfile, "account-profile", "a", "", "named credential profile for this instance")
	statusCmd.Flags().StringVarP(&authProfile, "account-profile", "a", "", "named credential profile for this instance")
}

// authClient loads the configuration and builds a client for one instance.
func authClient(domain string) *mastodon.Client {
	flags := map[string]interface{}{}
	if authProfile != "" {
		flags["account-profile"] = authProfile
	}
	if logLevel != "info" {
		flags["log-level"] = logLevel
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		os.Exit(1)
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		ui.PrintError("Failed to initialize logging", err.Error())
		os.Exit(1)
	}

	client, err := buildClient(cfg, domain, logger.GetLogger())
	if err != nil {
		ui.PrintError("Failed to resolve instance", err.Error())
		os.Exit(1)
	}
	return client
}

func runLogin(cmd *cobra.Command, args []string) {
	client := authClient(args[0])
	if err := login(client); err != nil {
		ui.PrintError("Authorization failed", err.Error())
		os.Exit(1)
	}
}

func runStatus(cmd *cobra.Command, args []string) {
	client := authClient(args[0])
	if client.Authorized() {
		me, err := client.Me()
		if err != nil {
			ui.PrintWarning("Token cached but not usable", err.Error())
			os.Exit(1)
		}
		ui.PrintSuccess("Logged in as " + mastodon.AccountAcct(me))
		return
	}
	ui.PrintWarning("Not logged in")
}

func runPurge(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		os.Exit(1)
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		ui.PrintError("Failed to initialize logging", err.Error())
		os.Exit(1)
	}

	if !confirm("Delete all cached credentials?") {
		ui.PrintWarning("Aborted")
		return
	}

	// Purging works per instance; with a domain argument only that
	// instance's credentials are removed, otherwise the whole cache
	// directory is emptied.
	if len(args) == 1 {
		client := authClient(args[0])
		if err := client.PurgeCredentials(); err != nil {
			ui.PrintError("Failed to purge credentials", err.Error())
			os.Exit(1)
		}
	} else {
		if err := purgeCacheDir(cfg.Cache.Directory); err != nil {
			ui.PrintError("Failed to purge cache directory", err.Error())
			os.Exit(1)
		}
	}
	ui.PrintSuccess("Credential cache purged")
}

// purgeCacheDir removes every file in the credential cache directory.
func purgeCacheDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}
