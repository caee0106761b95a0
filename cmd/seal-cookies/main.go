package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/jessevdk/go-flags"

	"github.com/iconidentify/threadgrabba/internal/config"
	"github.com/iconidentify/threadgrabba/pkg/crypto"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

type options struct {
	Src        string `long:"src" description:"Plaintext Netscape cookies file" required:"true"`
	Dest       string `long:"dest" description:"Sealed output path (defaults to the configured cookies path)"`
	Passphrase string `long:"passphrase" env:"THREADS_COOKIES_PASSPHRASE" description:"Passphrase used to seal the file"`
	Config     string `long:"config" description:"Path to YAML config file"`
	EnvFile    string `long:"env-file" default:".env" description:"Path to .env file"`
	Version    bool   `long:"version" description:"Show version and exit"`
}

func main() {
	var opts options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(2)
	}

	if opts.Version {
		fmt.Printf("threadgrabba-seal-cookies %s (built %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	if err := config.LoadEnvFile(opts.EnvFile); err != nil {
		logger.Error("failed to load env file", "error", err)
		os.Exit(1)
	}

	dest := opts.Dest
	passphrase := opts.Passphrase
	if dest == "" || passphrase == "" {
		cfg, err := config.Load(opts.Config)
		if err != nil {
			logger.Error("failed to load config", "error", err)
			os.Exit(1)
		}
		if dest == "" {
			dest = cfg.Threads.CookiesPath
		}
		if passphrase == "" {
			passphrase = cfg.Threads.CookiesPassphrase
		}
	}

	if passphrase == "" {
		logger.Error("passphrase required: use --passphrase or THREADS_COOKIES_PASSPHRASE")
		os.Exit(1)
	}

	if err := crypto.SealFile(opts.Src, dest, passphrase); err != nil {
		logger.Error("seal failed", "error", err)
		os.Exit(1)
	}

	logger.Info("cookies sealed, plaintext source left in place", "src", opts.Src, "dest", dest)
}
