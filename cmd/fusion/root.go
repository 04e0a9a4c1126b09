package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/buildbuildio/fusion"
	"github.com/buildbuildio/fusion/config"
	"github.com/buildbuildio/fusion/metadata"
	"github.com/buildbuildio/fusion/queryer"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
}

// NewRootCommand creates the root command of the fusion CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "fusion",
		Short: "fusion - distributed GraphQL gateway",
		Long:  "Plans GraphQL operations over a composed schema and executes them against the source services.",
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "fusion.yaml", "path to the configuration file")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewPlanCommand(opts))

	return cmd
}

// newGateway builds the gateway described by cfg.
func newGateway(cfg *config.Config, logger *zap.Logger, options ...fusion.GatewayOption) (*fusion.Gateway, error) {
	sdl, err := os.ReadFile(cfg.Schema)
	if err != nil {
		return nil, fmt.Errorf("unable to read schema: %w", err)
	}

	schema, err := metadata.LoadSchema(string(sdl))
	if err != nil {
		return nil, fmt.Errorf("unable to load schema %s: %w", cfg.Schema, err)
	}

	queryers := lo.Map(cfg.Sources, func(s config.Source, _ int) queryer.Queryer {
		return queryer.NewMultiOpQueryer(s.Name, s.URL, s.MaxBatchSize).
			WithHTTPClient(&http.Client{Timeout: s.Timeout}).
			WithLogger(logger)
	})

	options = append([]fusion.GatewayOption{
		fusion.WithLogger(logger),
		fusion.WithPlanCache(cfg.Cache.CacheSize(), cfg.Cache.TTL),
	}, options...)

	return fusion.NewGateway(schema, queryers, options...)
}
