package main

import (
	"fmt"

	"github.com/cyberinferno/go-tcpsession/config"
	"github.com/spf13/cobra"
)

// options holds the global flags and the configuration they resolve to.
type options struct {
	cfgFile  string
	addr     string
	logLevel string

	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "sessiond",
		Short:         "Framed TCP session server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load()
		},
	}

	root.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "config file (default is ./"+config.DefaultPath+")")
	root.PersistentFlags().StringVar(&opts.addr, "addr", "", "listen address, overrides server.addr")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level, overrides log.level")

	root.AddCommand(newServeCmd(opts), newConfigCmd(opts), newVersionCmd())
	return root
}

// load reads the config file and applies flag overrides.
func (o *options) load() error {
	path := o.cfgFile
	if path == "" {
		path = config.DefaultPath
	}

	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if o.addr != "" {
		cfg.Server.Addr = o.addr
	}

	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	o.cfg = cfg
	return nil
}
