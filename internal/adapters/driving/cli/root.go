// Package cli provides the sercha-ingest command line interface.
package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/banner"

	"github.com/custodia-labs/sercha-ingest/internal/config"
	"github.com/custodia-labs/sercha-ingest/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-ingest/internal/logger"
)

// annotationNoServices marks commands that run without wiring.
const annotationNoServices = "no-services"

// Services are the driving ports the commands operate on.
type Services struct {
	Consumer driving.ConsumerService
	Upload   driving.UploadService
	Search   driving.SearchService

	// Close releases the adapters behind the services.
	Close func() error
}

// Builder wires Services from configuration.
type Builder func(ctx context.Context, cfg *config.Config, log arbor.ILogger) (*Services, error)

var (
	version = "dev"

	cfgFile string
	verbose bool

	builder Builder

	cfg *config.Config
	log arbor.ILogger = logger.NoOp()

	consumerService driving.ConsumerService
	uploadService   driving.UploadService
	searchService   driving.SearchService
	closeServices   func() error
)

var rootCmd = &cobra.Command{
	Use:   "sercha-ingest",
	Short: "Streaming ingestion pipeline for semantic book search",
	Long: `sercha-ingest keeps a vector index in sync with change events from
Kafka and with uploaded documents. Text is chunked, embedded and
upserted so downstream consumers can search passages by meaning.`,
	SilenceUsage:       true,
	PersistentPreRunE:  setup,
	PersistentPostRunE: teardown,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default ~/.sercha/ingest.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// SetVersion sets the version reported by the version command.
func SetVersion(v string) {
	version = v
}

// SetBuilder installs the function that wires services.
func SetBuilder(b Builder) {
	builder = b
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func servicesReady() bool {
	return consumerService != nil && uploadService != nil && searchService != nil
}

// setup loads configuration, builds the logger and wires services unless
// they were already provided.
func setup(cmd *cobra.Command, _ []string) error {
	if cmd.Annotations[annotationNoServices] == "true" || servicesReady() || builder == nil {
		return nil
	}

	loaded, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	cfg = loaded
	log = logger.Init(cfg.Logging, verbose)

	if cmd.Annotations["banner"] == "true" {
		printBanner(cmd.Name())
	}

	svc, err := builder(commandContext(cmd), cfg, log)
	if err != nil {
		return fmt.Errorf("initialise services: %w", err)
	}

	consumerService = svc.Consumer
	uploadService = svc.Upload
	searchService = svc.Search
	closeServices = svc.Close
	return nil
}

func printBanner(command string) {
	b := banner.New().SetStyle(banner.StyleDouble).SetWidth(60)
	b.PrintTopLine()
	b.PrintCenteredText("SERCHA INGEST")
	b.PrintSeparatorLine()
	b.PrintKeyValue("Version", version, 10)
	b.PrintKeyValue("Command", command, 10)
	b.PrintBottomLine()
}

func teardown(_ *cobra.Command, _ []string) error {
	if closeServices == nil {
		return nil
	}
	err := closeServices()
	closeServices = nil
	return err
}

// commandContext returns the context handed to ExecuteContext. Cobra copies
// the root context into a subcommand only when the subcommand has none, so
// after one execution a subcommand would keep a stale context.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Root().Context(); ctx != nil {
		return ctx
	}
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

var errNotConfigured = errors.New("service not configured")
