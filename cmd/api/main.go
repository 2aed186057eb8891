// Command api serves the Bucharest transit map API.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/pietrosul/MyBusApp/internal/appconf"
)

// loadConfig merges the configuration sources. Priority, highest first:
// command line flags, the JSON file given with -f, MYBUS_* environment
// variables (after loading .env), then the defaults.
func loadConfig(args []string, lookup func(string) (string, bool), stderr io.Writer) (appconf.Config, error) {
	fs := flag.NewFlagSet("api", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		configFile    = fs.String("f", "", "path to a JSON config file")
		envFile       = fs.String("env-file", ".env", "path to a .env file, skipped when missing")
		port          = fs.Int("port", 0, "API server port")
		env           = fs.String("env", "", "environment (development|test|production)")
		apiKeys       = fs.String("api-keys", "", "comma separated API keys")
		exemptAPIKeys = fs.String("exempt-api-keys", "", "comma separated API keys exempt from rate limiting")
		rateLimit     = fs.Int("rate-limit", 0, "requests per second per client")
		dataSource    = fs.String("data-source", "", "transit data source (stb|overpass|gtfs)")
		gtfsURL       = fs.String("gtfs-url", "", "GTFS static feed URL or path")
		staticDir     = fs.String("static-dir", "", "directory of the browser map client")
		verbose       = fs.Bool("verbose", false, "log at debug level")
	)
	if err := fs.Parse(args); err != nil {
		return appconf.Config{}, err
	}

	if lookup == nil {
		if err := appconf.LoadDotEnv(*envFile); err != nil {
			return appconf.Config{}, err
		}
	}

	cfg, err := appconf.FromEnv(appconf.Defaults(), lookup)
	if err != nil {
		return appconf.Config{}, err
	}

	if *configFile != "" {
		jsonConfig, err := appconf.LoadFromFile(*configFile)
		if err != nil {
			return appconf.Config{}, err
		}
		if cfg, err = jsonConfig.Apply(cfg); err != nil {
			return appconf.Config{}, fmt.Errorf("invalid configuration: %w", err)
		}
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Port = *port
		case "env":
			cfg.Env = appconf.EnvFlagToEnvironment(*env)
		case "api-keys":
			cfg.ApiKeys = appconf.ParseList(*apiKeys)
		case "exempt-api-keys":
			cfg.ExemptApiKeys = appconf.ParseList(*exemptAPIKeys)
		case "rate-limit":
			cfg.RateLimit = *rateLimit
		case "data-source":
			cfg.DataSource = *dataSource
		case "gtfs-url":
			cfg.GTFSURL = *gtfsURL
		case "static-dir":
			cfg.StaticDir = *staticDir
		case "verbose":
			cfg.Verbose = *verbose
		}
	})

	return cfg, nil
}

func main() {
	cfg, err := loadConfig(os.Args[1:], nil, os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	coreApp, err := BuildApplication(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	srv, api := CreateServer(coreApp, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := Run(ctx, srv, coreApp, api); err != nil {
		coreApp.Logger.Error("server exited with error", "error", err)
		stop()
		os.Exit(1)
	}
}
