package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/appforge/internal/server"
)

var (
	serveAddr  string
	serveAsync bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the task endpoint over HTTP",
	Long: `Start the HTTP server.

Endpoints:
  POST /task        run a task request
  GET  /health      liveness and version
  GET  /runs        recent runs in this process
  GET  /runs/{id}   one run

By default POST /task answers once the repository is published and the
evaluation URL has been notified. With --async it answers 202 as soon as
the request is accepted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, secrets, err := loadValidConfig()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("addr") {
			cfg.Server.Addr = serveAddr
		}
		if cmd.Flags().Changed("async") {
			cfg.Server.Async = serveAsync
		}

		st, err := buildStack(cfg, secrets, nil)
		if err != nil {
			return err
		}
		defer st.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		srv := server.New(server.Config{
			Runner:  st.orch,
			Runs:    st.journal,
			Async:   cfg.Server.Async,
			Version: Version(),
		})
		log.Printf("[server] appforge %s (async=%t, commit_mode=%s)", Version(), cfg.Server.Async, cfg.Publish.CommitMode)
		return srv.ListenAndServe(ctx, cfg.Server.Addr)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address")
	serveCmd.Flags().BoolVar(&serveAsync, "async", false, "Acknowledge with 202 before the pipeline runs")
}
