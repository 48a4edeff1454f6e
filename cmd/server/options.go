package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"home-services-api/internal/config"
)

type options struct {
	configPath string
	addr       string
	dbPath     string
	logLevel   string
	help       bool
}

var errHelp = errors.New("help requested")

func parseOptions(args []string, stderr io.Writer) (options, error) {
	var opts options
	flagSet := pflag.NewFlagSet("home-services-api", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVar(&opts.configPath, "config", "", "path to a YAML config file")
	flagSet.StringVar(&opts.addr, "addr", "", "listen address, overrides server.addr")
	flagSet.StringVar(&opts.dbPath, "db", "", "SQLite database path, overrides database.path")
	flagSet.StringVar(&opts.logLevel, "log-level", "", "log level, overrides log.level")
	flagSet.BoolVarP(&opts.help, "help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return opts, errHelp
		}
		return opts, err
	}
	if opts.help {
		fmt.Fprintf(stderr, "Usage of home-services-api:\n%s", flagSet.FlagUsages())
		return opts, errHelp
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return opts, fmt.Errorf("unexpected argument: %s", rest[0])
	}
	return opts, nil
}

// apply lets command-line flags win over file and environment values.
func (o options) apply(cfg *config.Config) error {
	if o.addr != "" {
		cfg.Server.Addr = o.addr
	}
	if o.dbPath != "" {
		cfg.Database.Path = o.dbPath
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	return cfg.Validate()
}
