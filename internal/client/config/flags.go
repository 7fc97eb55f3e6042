package config

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/dmitrijs2005/civilforms/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
// os.Args is filtered with flagx.FilterArgs so unrelated arguments do not
// interfere.
func parseFlags(cfg *Config) error {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-ut", "-mf", "-rt", "-l"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.ServerURL, "a", cfg.ServerURL, "base URL of the intake server")
	fs.DurationVar(&cfg.UploadTimeout, "ut", cfg.UploadTimeout, "per-file upload timeout (0 disables)")
	fs.IntVar(&cfg.MaxFiles, "mf", cfg.MaxFiles, "maximum files per form")
	fs.DurationVar(&cfg.RequestTimeout, "rt", cfg.RequestTimeout, "API request timeout")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}
	return nil
}
