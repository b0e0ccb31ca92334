package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/continue-ai-company/aa-rag/internal/engine"
	"github.com/continue-ai-company/aa-rag/internal/errors"
	"github.com/continue-ai-company/aa-rag/internal/ui"
)

func newRetrieveCmd() *cobra.Command {
	var (
		knowledge    string
		identifier   string
		topK         int
		retrieveType string
		denseWeight  float64
		sparseWeight float64
	)

	cmd := &cobra.Command{
		Use:   "retrieve <query...>",
		Short: "Query a knowledge base",
		Long: `Runs dense (embedding) and sparse (BM25) retrieval concurrently and
fuses the rankings. --type dense and --type bm25 zero the other side's
weight; --type hybrid uses --dense-weight/--sparse-weight.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if knowledge == "" {
				return errors.ValidationError("--knowledge is required", nil)
			}
			query := strings.Join(args, " ")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			dense, sparse := denseWeight, sparseWeight
			switch retrieveType {
			case "dense":
				dense, sparse = 1, 0
			case "bm25":
				dense, sparse = 0, 1
			case "hybrid":
				if !cmd.Flags().Changed("dense-weight") {
					dense = cfg.Engine.DenseWeight
				}
				if !cmd.Flags().Changed("sparse-weight") {
					sparse = cfg.Engine.SparseWeight
				}
			default:
				return errors.ValidationError(
					fmt.Sprintf("unknown --type %q (want dense, bm25, or hybrid)", retrieveType), nil)
			}
			if topK == 0 {
				topK = cfg.Engine.TopK
			}

			rt, err := newRuntime(cfg)
			if err != nil {
				return err
			}
			defer rt.cleanup()

			results, err := rt.engine.Retrieve(cmd.Context(), engine.RetrieveRequest{
				Knowledge:    knowledge,
				Identifier:   identifier,
				Query:        query,
				TopK:         topK,
				DenseWeight:  dense,
				SparseWeight: sparse,
			})
			if err != nil {
				return err
			}

			ui.NewRenderer(os.Stdout).Results(results)
			return nil
		},
	}

	cmd.Flags().StringVarP(&knowledge, "knowledge", "k", "", "Knowledge base name (required)")
	cmd.Flags().StringVar(&identifier, "identifier", "", "Optional partition identifier")
	cmd.Flags().IntVarP(&topK, "top-k", "n", 0, "Number of results (default from config)")
	cmd.Flags().StringVarP(&retrieveType, "type", "t", "hybrid", "Retrieval type: dense, bm25, hybrid")
	cmd.Flags().Float64Var(&denseWeight, "dense-weight", 0.5, "Dense ranking weight for hybrid retrieval")
	cmd.Flags().Float64Var(&sparseWeight, "sparse-weight", 0.5, "Sparse ranking weight for hybrid retrieval")
	return cmd
}
