package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mhpenta/mathchat"
	"github.com/mhpenta/mathchat/config"
	"github.com/mhpenta/mathchat/logger"
	"github.com/mhpenta/mathchat/provider/gemini"
	"github.com/mhpenta/mathchat/ratelimiter"
)

const rootLongDesc string = `mathchat solves math problems as rendered images.

Submit a typed problem, a photo of one, or both. The answer is a single
black-and-white image with the restated problem, the steps and the boxed
result, produced by a Gemini image model.

The API key is read from API_KEY (or GEMINI_API_KEY), a .env file or the
config file.`

// rootFlags are shared by every subcommand.
type rootFlags struct {
	configPath string
	envFile    string
	debug      bool
	model      string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:           "mathchat",
		Short:         "Solve math problems as rendered images",
		Long:          rootLongDesc,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Path to a YAML config file")
	cmd.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "Path to a .env file")
	cmd.PersistentFlags().BoolVar(&flags.debug, "debug", false, "Enable debug logging")
	cmd.PersistentFlags().StringVar(&flags.model, "model", "", "Model to use (nano-banana-1, nano-banana-2 or an API model name)")

	cmd.AddCommand(newServeCmd(flags))
	cmd.AddCommand(newSolveCmd(flags))

	return cmd
}

// load reads the config and applies the flags that were set explicitly.
func (f *rootFlags) load(cmd *cobra.Command, apply func(*config.Config)) (*config.Config, error) {
	cfg, err := config.Load(f.configPath, f.envFile)
	if err != nil {
		return nil, err
	}

	if cmd.Flags().Changed("debug") {
		cfg.Debug = f.debug
	}
	if cmd.Flags().Changed("model") {
		cfg.Gemini.Model = f.model
	}
	if apply != nil {
		apply(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newGateway builds the provider and the gateway in front of it.
func newGateway(ctx context.Context, cfg *config.Config, log *zap.Logger) (*mathchat.Gateway, error) {
	provider, err := gemini.New(ctx, cfg.ProviderConfig())
	if err != nil {
		return nil, fmt.Errorf("creating provider: %w", err)
	}

	opts := []mathchat.GatewayOption{
		mathchat.WithLogger(log.Named("gateway")),
		mathchat.WithModel(mathchat.Model(cfg.Gemini.Model)),
		mathchat.WithGenerateConfig(cfg.GenerateConfig()),
		mathchat.WithPromptTemplate(cfg.Chat.PromptTemplate),
	}

	switch rl := cfg.RateLimit; {
	case rl.Disabled:
		opts = append(opts, mathchat.WithRateLimiter(nil))
	case rl.TokensPerMinute > 0 || rl.RequestsPerMinute > 0:
		opts = append(opts, mathchat.WithRateLimiter(ratelimiter.New(rl.TokensPerMinute, rl.RequestsPerMinute)))
	}

	gw := mathchat.NewGateway(provider, opts...)
	if err := gw.Validate(); err != nil {
		return nil, err
	}
	log.Debug("gateway ready", zap.String("model", gw.Model()))
	return gw, nil
}

func newLogger(cfg *config.Config) *zap.Logger {
	return logger.New(cfg.Debug)
}
