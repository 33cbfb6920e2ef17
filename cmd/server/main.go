package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/andy6609/bookstore-streaming-server/internal/api"
	"github.com/andy6609/bookstore-streaming-server/internal/catalog"
	"github.com/andy6609/bookstore-streaming-server/internal/chat"
	"github.com/andy6609/bookstore-streaming-server/internal/config"
	"github.com/andy6609/bookstore-streaming-server/internal/feed"
)

func main() {
	var cfgPath string

	root := &cobra.Command{Use: "bookstored", Short: "Bookstore catalog and streaming server"}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (yaml)")
	root.AddCommand(serveCmd(&cfgPath))

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and streaming server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}

			logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level: slog.LevelInfo,
			}))

			hub := feed.NewHub(cfg.Feed.QueueSize, logger)
			store := catalog.New(func(b catalog.Book) {
				hub.Publish(feed.BookEvent{BookID: b.ID, Title: b.Title, Author: b.Author})
			}, logger)

			reg := chat.NewRegistry(cfg.Chat.EventBuffer, logger)
			go reg.Run()

			a := api.New(cfg, store, hub, reg.Events(), logger)
			srv := &http.Server{Addr: cfg.Listen, Handler: a.Router()}

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.ListenAndServe()
			}()

			logger.Info("server started", "addr", cfg.Listen)

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

			select {
			case err := <-errCh:
				return err
			case <-sigCh:
			}

			logger.Info("shutting down")

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)

			reg.Stop()
			reg.Wait()

			logger.Info("shutdown complete")
			return nil
		},
	}
}
