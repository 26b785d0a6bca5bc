// Command chanctl publishes to and listens on channels over Valkey.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/valkey-io/valkey-go"
	"go.uber.org/zap"

	channels "github.com/TheAlpha16/channels-go"
	"github.com/TheAlpha16/channels-go/internal/config"
	"github.com/TheAlpha16/channels-go/internal/observability"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "chanctl",
		Short:         "Publish and listen on Valkey pub/sub channels",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to chanctl.yaml")

	root.AddCommand(newPublishCmd(), newListenCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "chanctl:", err)
		os.Exit(1)
	}
}

func newPublishCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "publish <channel> <message>",
		Short: "Publish one text message",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			bus, logger, err := connect(ctx)
			if err != nil {
				return err
			}
			defer logger.Sync()
			defer bus.Shutdown()

			ch, err := channels.OpenChannel(bus, args[0], channels.String())
			if err != nil {
				return err
			}
			return ch.Publish(ctx, args[1])
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "time allowed to connect and publish")
	return cmd
}

func newListenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "listen <channel>...",
		Short: "Print text messages until interrupted",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			bus, logger, err := connect(ctx)
			if err != nil {
				return err
			}
			defer logger.Sync()
			defer bus.Shutdown()

			out := cmd.OutOrStdout()
			for _, name := range args {
				ch, err := channels.OpenChannel(bus, name, channels.String())
				if err != nil {
					return err
				}
				_, err = ch.Subscribe(ctx, func(ctx context.Context, msg string) error {
					_, err := fmt.Fprintf(out, "%s: %s\n", name, msg)
					return err
				})
				if err != nil {
					return err
				}
			}

			<-ctx.Done()
			return nil
		},
	}
}

// connect loads configuration, starts a bus and waits until the pub/sub
// connection is up or ctx is done.
func connect(ctx context.Context) (*channels.Bus, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	logger, err := observability.SetupLogger(cfg.Log)
	if err != nil {
		return nil, nil, err
	}

	client, err := channels.NewValkeyClient(cfg.Valkey.Addresses[0], valkey.ClientOption{
		InitAddress: cfg.Valkey.Addresses,
		Username:    cfg.Valkey.Username,
		Password:    cfg.Valkey.Password,
		SelectDB:    cfg.Valkey.DB,
		ClientName:  cfg.Valkey.ClientName,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connect valkey: %w", err)
	}

	bus := channels.NewWithValkey(client,
		channels.WithLogger(logger),
		channels.WithWorkers(cfg.Bus.Workers),
		channels.WithMsgBufferSize(cfg.Bus.BufferSize),
		channels.WithReconnectBackoff(cfg.Bus.ReconnectMin, cfg.Bus.ReconnectMax),
		channels.WithOnError(func(ctx context.Context, channel string, err error) {
			logger.Error("delivery failed", zap.String("channel", channel), zap.Error(err))
		}),
	)
	if err := bus.Start(ctx); err != nil {
		client.Close()
		return nil, nil, err
	}

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for bus.State() != channels.Connected {
		select {
		case <-ctx.Done():
			bus.Shutdown()
			return nil, nil, fmt.Errorf("waiting for connection: %w", ctx.Err())
		case <-ticker.C:
		}
	}
	return bus, logger, nil
}
