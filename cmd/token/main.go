// Command token mints a bearer token for calling the API by hand, signed with
// the same secret the server verifies against.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/taxfiler/kyc-ocr-service/internal/auth"
	"github.com/taxfiler/kyc-ocr-service/internal/config"
)

type options struct {
	configPath string
	subject    string
	role       string
	ttl        time.Duration
}

func main() {
	opts := parseFlags()
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "token: %v\n", err)
		os.Exit(1)
	}
	if err := run(opts, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "token: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() options {
	var opts options
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: go run ./cmd/token [flags]\n")
		flag.PrintDefaults()
	}
	defaultConfig := os.Getenv("CONFIG_PATH")
	if defaultConfig == "" {
		defaultConfig = "config.yaml"
	}
	flag.StringVar(&opts.configPath, "config", defaultConfig, "Service configuration file")
	flag.StringVar(&opts.subject, "subject", "local-dev", "Token subject")
	flag.StringVar(&opts.role, "role", "staff", "Role claim")
	flag.DurationVar(&opts.ttl, "ttl", 12*time.Hour, "Token lifetime")
	flag.Parse()
	return opts
}

func run(opts options, out io.Writer) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("no jwt secret configured (auth.disabled is set)")
	}
	if opts.ttl <= 0 {
		return fmt.Errorf("ttl must be positive, got %s", opts.ttl)
	}

	token, err := auth.GenerateToken(cfg.Auth.JWTSecret, opts.subject, opts.role, opts.ttl)
	if err != nil {
		return fmt.Errorf("sign token: %w", err)
	}
	_, err = fmt.Fprintln(out, token)
	return err
}
