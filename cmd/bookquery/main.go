// bookquery runs the bookstore query catalog against a SQLite document
// collection, from the command line or as a gRPC service.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nainya/bookquery/internal/config"
	"github.com/nainya/bookquery/internal/logger"
	"github.com/nainya/bookquery/pkg/sqlstore"
)

var (
	cfgFile string
	cfg     *config.Config
	appLog  *logger.Logger
)

var rootCmd = &cobra.Command{
	Use:           "bookquery",
	Short:         "Named queries over a books collection",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(config.Options{File: cfgFile, Flags: cmd.Flags()})
		if err != nil {
			return err
		}
		cfg = loaded

		logger.InitGlobalLogger(logger.Config{
			Level:  cfg.Log.Level,
			Pretty: cfg.Log.Pretty,
			Output: os.Stderr,
		})
		appLog = logger.GetGlobalLogger()
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Config file (default ./bookquery.yaml if present)")
	pf.String("db", "", "SQLite database path, or :memory:")
	pf.String("collection", "", "Collection (table) name")
	pf.String("log-level", "", "Log level: debug, info, warn, error")
	pf.Bool("log-pretty", false, "Human-readable console logs")
	pf.String("seed-file", "", "YAML book list used by seed and serve --seed (default built-in dataset)")

	rootCmd.AddCommand(serveCmd, listCmd, runCmd, explainCmd, seedCmd)
}

func openStore(ctx context.Context) (*sqlstore.Store, error) {
	st, err := sqlstore.Open(ctx, sqlstore.Options{
		Path:       cfg.DB.Path,
		Collection: cfg.DB.Collection,
	})
	if err != nil {
		return nil, err
	}
	appLog.Debug("Opened document store").
		Str("database", cfg.DB.Path).
		Str("collection", st.Collection()).
		Send()
	return st, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
