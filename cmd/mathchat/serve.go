package main

import (
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mhpenta/mathchat"
	"github.com/mhpenta/mathchat/config"
	"github.com/mhpenta/mathchat/server"
)

const serveLongDesc string = `Serve the chat page and its API.

Examples:
  mathchat serve
  mathchat serve --listen 127.0.0.1:9000 --debug
  mathchat serve --config mathchat.yaml`

type serveCommander struct {
	root   *rootFlags
	listen string
}

func newServeCmd(root *rootFlags) *cobra.Command {
	cmder := &serveCommander{root: root}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat over HTTP",
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd)
		},
	}

	cmd.Flags().StringVarP(&cmder.listen, "listen", "l", "", "Address to listen on (default from config, :8080)")

	return cmd
}

func (c *serveCommander) run(cmd *cobra.Command) error {
	cfg, err := c.root.load(cmd, func(cfg *config.Config) {
		if c.listen != "" {
			cfg.Server.Listen = c.listen
		}
		if cfg.Debug && cmd.Flags().Changed("debug") {
			cfg.Server.Mode = gin.DebugMode
		}
	})
	if err != nil {
		return err
	}

	log := newLogger(cfg)
	defer log.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gw, err := newGateway(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer gw.Close()

	storage := server.NewMemoryStorage()
	metrics := server.NewMetrics()
	store := mathchat.NewStore(gw,
		mathchat.WithStoreLogger(log.Named("store")),
		mathchat.WithAttachmentStorage(storage),
		mathchat.WithObserver(metrics),
		mathchat.WithGreeting(cfg.Chat.Greeting),
	)

	srv := server.New(store, cfg,
		server.WithLogger(log.Named("http")),
		server.WithStorage(storage),
		server.WithMetrics(metrics),
	)

	log.Info("mathchat starting",
		zap.String("listen", cfg.Server.Listen),
		zap.String("model", gw.Model()),
		zap.Bool("debug", cfg.Debug),
	)

	return srv.Run(ctx)
}
