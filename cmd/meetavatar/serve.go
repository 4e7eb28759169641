package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/normanking/meetavatar/internal/audio"
	"github.com/normanking/meetavatar/internal/bus"
	"github.com/normanking/meetavatar/internal/config"
	"github.com/normanking/meetavatar/internal/identity"
	"github.com/normanking/meetavatar/internal/scene"
	"github.com/normanking/meetavatar/internal/server"
	"github.com/normanking/meetavatar/internal/tween"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the avatar HTTP and WebSocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			loader := config.NewLoader(configPath)
			cfg, err := loader.Load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			logger, err := newLogger(cfg, cfg.Log.Console)
			if err != nil {
				return err
			}
			defer logger.Close()
			log := logger.Component("cmd")
			log.Info().Str("version", version).Str("config", loader.File()).Msg("Starting meetavatar")

			base := logger.Zerolog()
			tracks := audio.NewRegistry(&audio.MeterConfig{
				BitDepth:        cfg.Avatar.BitDepth,
				SmoothingFrames: cfg.Avatar.SmoothingFrames,
			}, logger.Component("audio"))
			graph := scene.NewGraph(base)
			engine := tween.NewEngine(graph, base)

			srv := server.New(cfg, server.Deps{
				Logger:   base,
				History:  logger.History,
				Tracks:   tracks,
				Graph:    graph,
				Engine:   engine,
				Bus:      bus.NewEventBus(),
				Resolver: identity.NewResolver(),
			})

			if loader.File() != "" {
				loader.Watch(func(next *config.Config) {
					if addr != "" {
						next.Server.Addr = addr
					}
					srv.UpdateConfig(next)
				}, func(err error) {
					log.Warn().Err(err).Msg("Config reload rejected")
				})
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			go func() {
				if err := engine.Run(ctx, cfg.Server.FrameRate); err != nil && !errors.Is(err, context.Canceled) {
					log.Error().Err(err).Msg("Animation engine stopped")
				}
			}()

			if err := srv.Start(ctx); err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			log.Info().Msg("Shutdown complete")
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}
