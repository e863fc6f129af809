/*
Copyright 2026 Google LLC

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ademuri/apple-music-reports/internal/appleapi"
	"github.com/ademuri/apple-music-reports/internal/config"
	"github.com/ademuri/apple-music-reports/internal/logger"
	"github.com/ademuri/apple-music-reports/internal/store"
)

const defaultConfigFile = "config.json"

var errUsage = errors.New("Please specify exactly one operation.")

// overrideFlags maps command line flags onto config keys. They only apply
// when given explicitly.
var overrideFlags = map[string]string{
	"api_base_url":   config.KeyAPIBaseURL,
	"issuer_id":      config.KeyIssuerID,
	"key_id":         config.KeyKeyID,
	"privkey_path":   config.KeyPrivKeyPath,
	"jwt_expire_sec": config.KeyJWTExpireSec,
	"database":       config.KeyDatabase,
	"retries":        config.KeyRetries,
	"out":            config.KeyOut,
}

type rootOptions struct {
	cfgFile  string
	verbose  bool
	insecure bool

	getInReview      string
	getInReviewRange string
	listDownloads    bool
	skipDownloaded   bool
}

// Execute runs the command line and exits with status 1 on any failure.
// This is called by main.main().
func Execute() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		// The usage error has already been printed along with the usage text.
		if !errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if args == nil {
		args = []string{}
	}
	rootCmd := newRootCmd()
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "apple-music-reports",
		Short: "Get reports from the Apple Music Analytics API",
		Long: `Downloads Music Analytics reports and saves them as tab-separated files.

Settings come from built-in defaults, then the JSON config file, then
environment variables (API_BASE_URL, ISSUER_ID, JWT_EXPIRE_SEC, KEY_ID,
PRIVKEY_PATH), then command line flags.

Exactly one operation must be given.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperation(cmd, opts)
		},
	}
	rootCmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		c.PrintErr(c.UsageString())
		return err
	})

	flags := rootCmd.Flags()
	flags.StringVar(&opts.cfgFile, "config", defaultConfigFile, "Specify an alternate config file.")
	flags.String("out", "", "Override the default output file name (a directory with --get-in-review-range).")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Log debug output to stderr")

	flags.StringVar(&opts.getInReview, "get-in-review", "", "Get in-review report. Accepts a date in YYYY-MM-DD format.")
	flags.StringVar(&opts.getInReviewRange, "get-in-review-range", "",
		"Get in-review reports for every day in a range: YYYY, YYYY-MM, YYYY-MM-DD, or two dates separated by a comma (end exclusive).")
	flags.BoolVar(&opts.listDownloads, "list-downloads", false, "List previously downloaded reports. Requires a database.")
	flags.BoolVar(&opts.skipDownloaded, "skip-downloaded", false, "With --get-in-review-range, skip days already downloaded successfully.")

	flags.String("api_base_url", "", "Music Analytics API base URL")
	flags.String("issuer_id", "", "App Store Connect issuer ID")
	flags.String("key_id", "", "App Store Connect API key ID")
	flags.String("privkey_path", "", "Path to the .p8 private key")
	flags.Int("jwt_expire_sec", config.DefaultJWTExpireSec, "Seconds each token is valid for")
	flags.StringP("database", "d", "", "Path to a SQLite database recording downloads")
	flags.Int("retries", 0, "Extra attempts on server errors")
	flags.BoolVar(&opts.insecure, "insecure", false, "Skip TLS certificate verification")

	return rootCmd
}

func countOperations(flags *pflag.FlagSet) int {
	count := 0
	for _, name := range []string{"get-in-review", "get-in-review-range", "list-downloads"} {
		if flags.Changed(name) {
			count++
		}
	}
	return count
}

func overrides(flags *pflag.FlagSet, opts *rootOptions) map[string]any {
	values := make(map[string]any)
	flags.Visit(func(f *pflag.Flag) {
		if key, ok := overrideFlags[f.Name]; ok {
			values[key] = f.Value.String()
		}
	})
	if opts.insecure {
		values[config.KeyVerifySSL] = false
	}
	return values
}

func runOperation(cmd *cobra.Command, opts *rootOptions) error {
	if countOperations(cmd.Flags()) != 1 {
		cmd.PrintErrln(errUsage)
		cmd.PrintErr(cmd.UsageString())
		return errUsage
	}

	log := logger.New(cmd.ErrOrStderr(), opts.verbose)

	settings, err := config.Resolve(config.Source{
		Path:      opts.cfgFile,
		Explicit:  cmd.Flags().Changed("config"),
		Overrides: overrides(cmd.Flags(), opts),
		Lenient:   opts.listDownloads,
	})
	if err != nil {
		return err
	}
	if settings.File != "" {
		log.Debug().Str("file", settings.File).Msg("using config file")
	}

	ctx := cmd.Context()
	switch {
	case opts.listDownloads:
		return listDownloads(settings, cmd.OutOrStdout())

	case cmd.Flags().Changed("get-in-review"):
		a, err := newApp(settings, log, cmd.OutOrStdout())
		if err != nil {
			return err
		}
		defer a.Close()
		return a.getInReview(ctx, opts.getInReview)

	default:
		a, err := newApp(settings, log, cmd.OutOrStdout())
		if err != nil {
			return err
		}
		defer a.Close()
		return a.getInReviewRange(ctx, opts.getInReviewRange, opts.skipDownloaded)
	}
}

// app holds everything an API operation needs.
type app struct {
	settings config.Settings
	client   *appleapi.Client
	history  *store.Store // nil when no database is configured
	log      *zerolog.Logger
	out      io.Writer
}

func newApp(settings config.Settings, log *zerolog.Logger, out io.Writer) (*app, error) {
	issuer := appleapi.NewTokenIssuer(appleapi.TokenConfig{
		PrivKeyPath: settings.PrivKeyPath,
		KeyID:       settings.KeyID,
		IssuerID:    settings.IssuerID,
		Lifetime:    settings.JWTExpire,
	})

	// Surface key problems before any request goes out.
	if _, err := issuer.Token(); err != nil {
		return nil, err
	}

	client := appleapi.NewClient(issuer, appleapi.ClientConfig{
		BaseURL:    settings.APIBaseURL,
		VerifySSL:  settings.VerifySSL,
		UserAgent:  settings.UserAgent,
		Retries:    settings.Retries,
		RetryDelay: settings.RetryDelay,
		Logger:     log,
	})

	a := &app{settings: settings, client: client, log: log, out: out}
	if settings.Database != "" {
		history, err := store.New(settings.Database)
		if err != nil {
			return nil, fmt.Errorf("opening download history: %w", err)
		}
		a.history = history
	}
	return a, nil
}

func (a *app) Close() error {
	if a.history == nil {
		return nil
	}
	return a.history.Close()
}

// record logs a fetch in the download history, if one is configured. A
// failure to record is logged, not returned.
func (a *app) record(d store.Download) {
	if a.history == nil {
		return
	}
	if err := a.history.RecordDownload(d); err != nil {
		a.log.Warn().Err(err).Msg("could not record download")
	}
}
