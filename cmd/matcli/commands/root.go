// Package commands implements the matcli subcommands.
package commands

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/annoframe/materialize-go/auth"
	"github.com/annoframe/materialize-go/config"
	"github.com/annoframe/materialize-go/endpoints"
	"github.com/annoframe/materialize-go/errors"
	"github.com/annoframe/materialize-go/logger"
	"github.com/annoframe/materialize-go/materialize"
)

// RootCmd is the matcli entry point
var RootCmd = &cobra.Command{
	Use:   "matcli",
	Short: "matcli - Query a materialization service",
	Long: `matcli - Query versioned annotation tables from a materialization service.

Examples:
  matcli tables                          # List tables in the default datastack
  matcli versions                        # List materialization versions
  matcli count cells                     # Count annotations in a table
  matcli metadata cells                  # Show table metadata
  matcli annotations cells 10,20,30      # Fetch annotations by ID
  matcli query cells --in cell_type=pyramidal,basket
  matcli query cells,segments --join cell_id,seg_id`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonOutput, _ := cmd.Flags().GetBool("json")
		if err := logger.Initialize(verbosity, jsonOutput); err != nil {
			return errors.Wrap(err, "failed to initialize logger")
		}
		return nil
	},
}

func init() {
	RootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv)")
	RootCmd.PersistentFlags().Bool("json", false, "Emit results as JSON")
	RootCmd.PersistentFlags().String("config", "", "Config file (default: materialize.toml, ~/.materialize/config.toml)")
	RootCmd.PersistentFlags().String("server", "", "Materialization server address (overrides config)")
	RootCmd.PersistentFlags().String("datastack", "", "Datastack name (overrides config)")
	RootCmd.PersistentFlags().Uint64("materialization-version", 0, "Materialization version (default: most recent)")

	RootCmd.AddCommand(TablesCmd)
	RootCmd.AddCommand(VersionsCmd)
	RootCmd.AddCommand(CountCmd)
	RootCmd.AddCommand(MetadataCmd)
	RootCmd.AddCommand(AnnotationsCmd)
	RootCmd.AddCommand(QueryCmd)
	RootCmd.AddCommand(VersionCmd)
}

// loadConfig reads the config file (explicit --config path or the default
// search) and applies the server/datastack flag overrides
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFromFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if server, _ := cmd.Flags().GetString("server"); server != "" {
		cfg.Server.Address = server
	}
	if datastack, _ := cmd.Flags().GetString("datastack"); datastack != "" {
		cfg.Datastack = datastack
	}
	return cfg, nil
}

// newClient builds a materialize client from config and flags
func newClient(ctx context.Context, cmd *cobra.Command) (*materialize.Client, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	apiVersion, err := endpoints.ParseAPIVersion(cfg.Server.APIVersion)
	if err != nil {
		return nil, err
	}

	verbosity, _ := cmd.Flags().GetCount("verbose")

	return materialize.NewClient(ctx, materialize.Config{
		ServerAddress: cfg.Server.Address,
		Datastack:     cfg.Datastack,
		APIVersion:    apiVersion,
		Auth:          authProvider(cfg),
		Logger:        logger.Logger,
		Timeout:       time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
		AllowLocal:    cfg.Server.AllowLocal,
		TraceBody:     logger.ShouldLogTrace(verbosity),
	})
}

// authProvider picks the credential source: explicit token first, then
// token file. The default token-file path is a convention, not a
// requirement — when nothing was configured and no file exists there,
// access is anonymous. An explicitly configured token file must exist.
func authProvider(cfg *config.Config) auth.Provider {
	switch {
	case cfg.Auth.Token != "":
		return auth.NewTokenProvider(cfg.Auth.Token)
	case cfg.Auth.TokenFile == "":
		return nil
	case cfg.Auth.TokenFile != config.DefaultTokenFile():
		return auth.NewFileProvider(cfg.Auth.TokenFile)
	default:
		if _, err := os.Stat(cfg.Auth.TokenFile); err != nil {
			return nil
		}
		return auth.NewFileProvider(cfg.Auth.TokenFile)
	}
}

// callOptions builds per-call overrides from flags. The datastack override
// is already applied via config, so only the version matters here.
func callOptions(cmd *cobra.Command) *materialize.CallOptions {
	version, _ := cmd.Flags().GetUint64("materialization-version")
	if version == 0 {
		return nil
	}
	return &materialize.CallOptions{Version: version}
}
