package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"content-server/internal/config"
	"content-server/internal/logger"
	"content-server/internal/vectorstore"
)

var (
	indexName       string
	namespacePrefix string
	dryRun          bool
)

var rootCmd = &cobra.Command{
	Use:   "delete-index",
	Short: "Delete vector index namespaces by prefix",
	Long: `Deletes every namespace of the configured vector index whose name starts
with --namespace. The backend is selected with VECTOR_BACKEND.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runDeleteIndex,
}

func init() {
	rootCmd.Flags().StringVar(&indexName, "index", "", "index, collection or table name (default VECTOR_INDEX)")
	rootCmd.Flags().StringVar(&namespacePrefix, "namespace", "", "namespace prefix to delete, e.g. users/5")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "list matching namespaces without deleting them")
	_ = rootCmd.MarkFlagRequired("namespace")
}

func runDeleteIndex(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger.Init(cfg.AppName, cfg.LogLevel)
	if indexName != "" {
		cfg.VectorIndex = indexName
		// A named index is looked up on the control plane rather than
		// addressed through the configured host.
		cfg.PineconeIndexHost = ""
	}
	if err := cfg.Validate(config.RoleAdmin); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := vectorstore.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	matched, err := vectorstore.DeleteNamespacesWithPrefix(ctx, store, namespacePrefix, dryRun)
	if err != nil {
		return err
	}

	verb := "Deleted"
	if dryRun {
		verb = "Would delete"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %d namespace(s) with prefix %q in %s\n", verb, len(matched), namespacePrefix, cfg.VectorIndex)
	return nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		log.Error().Err(err).Msg("delete-index failed")
		os.Exit(1)
	}
}
