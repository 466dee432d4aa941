package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"tootsync/pkg/archiver"
	"tootsync/pkg/config"
	"tootsync/pkg/logger"
	"tootsync/pkg/mastodon"
	"tootsync/pkg/output"
	"tootsync/pkg/store"
	"tootsync/pkg/ui"
)

var (
	// Archive command flags
	userHandle     string
	accountProfile string
	forceLogin     bool
	outputFile     string
	zipOutput      bool
	mediaOutput    string
	syncDB         string
	optimizeJSON   bool
	rateLimit      float64
	cacheDir       string
)

// archiveCmd represents the archive command
var archiveCmd = &cobra.Command{
	Use:   "archive <domain>",
	Short: "Download an account's statuses and media from a Mastodon instance",
	Long: `Download the complete status history of an account on the given instance.

Without --user the authorized account itself is archived. On the first run
you will be asked to authorize the application in your browser; the
credentials are cached for later runs.

With --sync-db, statuses are written into a local SQLite store and later
runs only fetch what is newer than the last sync.`,
	Example: `  # Archive your own account
  tootsync archive example.social

  # Archive another user into a zip file with all media
  tootsync archive example.social --user gargron@mastodon.social --zip

  # Incremental sync into a local store
  tootsync archive example.social --sync-db alice.db

  # Download media next to the JSON output
  tootsync archive example.social --media-output ./media`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		runArchive(cmd, args)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(archiveCmd)

	archiveCmd.Flags().StringVarP(&userHandle, "user", "u", "", "account to archive, user@domain (default: yourself)")
	archiveCmd.Flags().StringVarP(&accountProfile, "account-profile", "a", "", "named credential profile for this instance")
	archiveCmd.Flags().BoolVar(&forceLogin, "force-login", false, "run the authorization flow even with a cached token")
	archiveCmd.Flags().StringVarP(&outputFile, "output", "o", "", "output file (default: <user>_<domain>_<date>.json)")
	archiveCmd.Flags().BoolVar(&zipOutput, "zip", false, "write a zip archive including all media")
	archiveCmd.Flags().StringVarP(&mediaOutput, "media-output", "m", "", "directory for downloaded media")
	archiveCmd.Flags().StringVar(&syncDB, "sync-db", "", "SQLite store for incremental sync")
	archiveCmd.Flags().BoolVar(&optimizeJSON, "optimize-json", false, "hoist the shared account out of each status")
	archiveCmd.Flags().Float64Var(&rateLimit, "rate-limit", 0, "maximum requests per second (0 = unlimited)")
	archiveCmd.Flags().StringVar(&cacheDir, "cache-dir", "", "credential cache directory")
}

func runArchive(cmd *cobra.Command, args []string) {
	domain := strings.TrimSpace(args[0])
	ui.PrintInfo("Instance", domain)

	// Build flags map from command line
	flags := make(map[string]interface{})
	if accountProfile != "" {
		flags["account-profile"] = accountProfile
	}
	if rateLimit > 0 {
		flags["rate-limit"] = rateLimit
	}
	if outputFile != "" {
		flags["output"] = outputFile
	}
	if zipOutput {
		flags["zip"] = true
	}
	if mediaOutput != "" {
		flags["media-output"] = mediaOutput
	}
	if optimizeJSON {
		flags["optimize-json"] = true
	}
	if cacheDir != "" {
		flags["cache-dir"] = cacheDir
	}
	if logLevel != "info" {
		flags["log-level"] = logLevel
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		os.Exit(1)
	}
	cfg.Instance.Domain = domain

	if err := logger.Initialize(&cfg.Logging); err != nil {
		ui.PrintError("Failed to initialize logging", err.Error())
		os.Exit(1)
	}
	log := logger.GetLogger()
	log.WithField("version", version).Info("tootsync starting")

	client, err := buildClient(cfg, domain, log)
	if err != nil {
		ui.PrintError("Failed to resolve instance", err.Error())
		os.Exit(1)
	}

	if forceLogin || !client.Authorized() {
		if err := login(client); err != nil {
			log.WithError(err).Error("authorization failed")
			ui.PrintError("Authorization failed", err.Error())
			os.Exit(1)
		}
	}

	account, err := client.ResolveAccount(userHandle)
	if err != nil {
		log.WithError(err).WithField("user", userHandle).Error("failed to resolve account")
		ui.PrintError("Failed to resolve account", err.Error())
		os.Exit(1)
	}
	ui.PrintInfo("Archiving", mastodon.AccountAcct(account))

	outFile := cfg.Output.File
	if outFile == "" {
		outFile = output.DefaultFilename(
			mastodon.AccountUsername(account),
			mastodon.AccountHomeDomain(account, domain),
			cfg.Output.Zip,
			time.Now(),
		)
	}

	if _, err := os.Stat(outFile); err == nil {
		// quiet runs have nobody to answer the prompt
		if ui.IsQuietMode() || !confirm(fmt.Sprintf("%s already exists, overwrite?", outFile)) {
			ui.PrintError("Refusing to overwrite existing file", outFile)
			os.Exit(1)
		}
		if err := os.Remove(outFile); err != nil {
			ui.PrintError("Failed to remove existing file", err.Error())
			os.Exit(1)
		}
	}

	sink, withMedia, err := buildSink(cfg, outFile)
	if err != nil {
		ui.PrintError("Failed to create output", err.Error())
		os.Exit(1)
	}

	var syncStore *store.Store
	if syncDB != "" {
		syncStore, err = store.Open(syncDB, log)
		if err != nil {
			ui.PrintError("Failed to open sync store", err.Error())
			os.Exit(1)
		}
		defer syncStore.Close()
	}

	a := archiver.New(client, archiver.Options{
		Sink:      sink,
		Store:     syncStore,
		WithMedia: withMedia,
		Optimize:  cfg.Output.OptimizeJSON,
		PageLimit: cfg.Output.PageLimit,
	}, log)

	runErr := a.Run(account)
	if closeErr := sink.Close(); runErr == nil {
		runErr = closeErr
	}
	if runErr != nil {
		log.WithError(runErr).Error("archive run failed")
		ui.PrintError("Archive failed", runErr.Error())
		os.Exit(1)
	}

	log.WithField("output", outFile).Info("archive completed")
	ui.PrintInfo("Written", outFile)
}

// buildSink creates the configured output sink. Zip output always bundles
// media; directory output downloads media only when a media directory is
// configured.
func buildSink(cfg *config.Config, outFile string) (output.Sink, bool, error) {
	if cfg.Output.Zip {
		sink, err := output.NewZipSink(outFile)
		return sink, true, err
	}
	sink, err := output.NewDirSink(outFile, cfg.Output.MediaDir)
	return sink, cfg.Output.MediaDir != "", err
}
