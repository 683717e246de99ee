// merma es la CLI por lotes: importa movimientos, calibra, pronostica y emite informes
// contra el mismo almacenamiento que la API.
package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/jhoicas/merma-api/internal/bootstrap"
	"github.com/jhoicas/merma-api/pkg/config"
	"github.com/jhoicas/merma-api/pkg/logger"
)

var (
	storageDriver string
	boltPath      string
	logLevel      string

	cfg  *config.Config
	log  *logger.Logger
	deps *bootstrap.App
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "merma",
		Short:         "Estimación de merma por lote",
		Long:          "Ledger de lotes FIFO, calibración de la curva de merma y pronóstico por lote.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initApp(cmd.Context())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if deps != nil {
				deps.Close()
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&storageDriver, "storage", "", "postgres | bolt | memory (por defecto STORAGE_DRIVER)")
	rootCmd.PersistentFlags().StringVar(&boltPath, "bolt-path", "", "archivo bolt (por defecto BOLT_PATH)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "trace, debug, info, warn, error")

	rootCmd.AddCommand(newImportCommand())
	rootCmd.AddCommand(newLedgerCommand())
	rootCmd.AddCommand(newMovementsCommand())
	rootCmd.AddCommand(newAuditCommand())
	rootCmd.AddCommand(newCalibrateCommand())
	rootCmd.AddCommand(newForecastCommand())
	rootCmd.AddCommand(newReportCommand())
	rootCmd.AddCommand(newTokenCommand())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		if log != nil {
			log.Error().Err(err).Msg("comando fallido")
		} else {
			os.Stderr.WriteString(err.Error() + "\n")
		}
		os.Exit(1)
	}
}

func initApp(ctx context.Context) error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return err
	}
	if storageDriver != "" {
		cfg.Storage.Driver = storageDriver
	}
	if boltPath != "" {
		cfg.Storage.BoltPath = boltPath
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	log = logger.New(logger.Config{Env: cfg.App.Env, Level: cfg.Log.Level, Output: os.Stderr})

	deps, err = bootstrap.New(ctx, cfg, log)
	return err
}
