package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"pdf-rag/internal/config"
	"pdf-rag/internal/logging"
)

var (
	configPath string
	corpusDir  string
	logLevel   string

	appConfig *config.AppConfig
)

var rootCmd = &cobra.Command{
	Use:   "pdfqa",
	Short: "Ask questions about a folder of PDF documents",
	Long: `pdfqa indexes the PDF files in a directory and answers questions about them
with a local language model, citing the passages each answer is based on.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML config file")
	rootCmd.PersistentFlags().StringVarP(&corpusDir, "corpus", "d", "", "directory containing the PDF documents (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error (overrides config)")
}

// Execute runs the root command, cancelling its context on SIGINT or SIGTERM
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	_ = godotenv.Load() // silently ignore if .env doesn't exist

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if corpusDir != "" {
		cfg.Corpus.Dir = corpusDir
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	if err := logging.Setup(cfg.Logging.Level, cfg.Logging.Format, cmd.ErrOrStderr()); err != nil {
		return err
	}

	appConfig = cfg
	return nil
}
