package main

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"pixora/internal/catalog"
	"pixora/internal/config"
)

const defaultConfigPath = "pixora.yml"

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "pixora",
		Short: "Compose image transformation descriptors and confirm their readiness",
		Long: `Pixora layers named transformations onto a base image reference, asks the
remote image service for the composite and polls until it is ready.

Run "pixora serve" for the HTTP API, or use the compose, tools and probe
subcommands to work with descriptors directly.`,
		SilenceUsage: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			// .env is optional
			_ = godotenv.Load()
		},
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", defaultConfigPath, "Path to YAML config")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newToolsCmd(opts))
	cmd.AddCommand(newComposeCmd(opts))
	cmd.AddCommand(newProbeCmd(opts))
	cmd.AddCommand(newUsageCmd(opts))
	return cmd
}

func (o *rootOptions) load() (config.Config, *catalog.Catalog, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return cfg, nil, err
	}
	setupLogging(cfg.Log)
	cat, err := catalog.LoadFile(cfg.CatalogFile)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, cat, nil
}

func setupLogging(lc config.LogConfig) {
	if lc.JSON {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	level, err := zerolog.ParseLevel(strings.ToLower(lc.Level))
	if err != nil || lc.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}
