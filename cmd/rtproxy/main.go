package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/codewandler/rtconsole-go/proxy"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		addr      string
		searchURL string
		debug     bool
	)

	cmd := &cobra.Command{
		Use:          "rtproxy",
		Short:        "Scrape and instant-answer proxy for the realtime console",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelInfo
			if debug {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := proxy.NewServer(proxy.Config{
				Addr:      addr,
				SearchURL: searchURL,
				Logger:    logger,
			})
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8081", "listen address")
	cmd.Flags().StringVar(&searchURL, "search-url", "", "instant-answer API base URL")
	cmd.Flags().BoolVar(&debug, "debug", false, "enable debug logs")

	return cmd
}
