package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/cyberinferno/go-tcpsession/dispatcher"
	"github.com/cyberinferno/go-tcpsession/echoproto"
	"github.com/cyberinferno/go-tcpsession/logger"
	"github.com/cyberinferno/go-tcpsession/session"
	"github.com/cyberinferno/go-tcpsession/tcpserver"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newServeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the server until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return serve(ctx, opts, cmd)
		},
	}
}

func serve(ctx context.Context, opts *options, cmd *cobra.Command) error {
	log, err := opts.cfg.Log.NewLogger(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer func() { _ = log.Close() }()

	d := dispatcher.New(log)
	srv := tcpserver.NewTCPServer(opts.cfg.Server.Name, opts.cfg.Server.Addr, d, log)
	srv.Config = opts.cfg.Server.Config

	echoproto.NewServer(srv.Sessions, log).Register(d)

	srv.OnSession = func(s *session.Session) {
		log.Debug("session ready", logger.Field{Key: "session_id", Value: s.ID()}, logger.Field{Key: "online", Value: srv.Sessions.Len()})
	}

	return srv.Run(ctx)
}

func newConfigCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(opts.cfg); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}
