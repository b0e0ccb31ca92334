package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/continue-ai-company/aa-rag/internal/document"
	"github.com/continue-ai-company/aa-rag/internal/engine"
	"github.com/continue-ai-company/aa-rag/internal/errors"
	"github.com/continue-ai-company/aa-rag/internal/parse"
	"github.com/continue-ai-company/aa-rag/internal/ui"
)

func newIndexCmd() *cobra.Command {
	var (
		knowledge    string
		identifier   string
		mode         string
		text         string
		chunkSize    int
		chunkOverlap int
	)

	cmd := &cobra.Command{
		Use:   "index [files...]",
		Short: "Index files or text into a knowledge base",
		Long: `Splits input into overlapping chunks, assigns content-derived ids, and
reconciles them against the knowledge base under the chosen mode:

  insert     write everything, duplicates allowed
  deinsert   write only chunks whose id is new
  overwrite  clear the table, then write everything
  upsert     replace records matching the incoming ids`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if knowledge == "" {
				return errors.ValidationError("--knowledge is required", nil)
			}
			if text == "" && len(args) == 0 {
				return errors.ValidationError("provide files to index or --text", nil)
			}

			parsedMode, err := engine.ParseMode(mode)
			if err != nil {
				return err
			}

			var docs []*document.Document
			if text != "" {
				doc, err := parse.Text(text, nil)
				if err != nil {
					return err
				}
				docs = append(docs, doc)
			}
			for _, path := range args {
				doc, err := parse.File(path)
				if err != nil {
					return err
				}
				docs = append(docs, doc)
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if chunkSize == 0 {
				chunkSize = cfg.Engine.ChunkSize
			}
			if chunkOverlap == 0 {
				chunkOverlap = cfg.Engine.ChunkOverlap
			}

			rt, err := newRuntime(cfg)
			if err != nil {
				return err
			}
			defer rt.cleanup()

			written, err := rt.engine.Index(cmd.Context(), engine.IndexRequest{
				Knowledge:    knowledge,
				Identifier:   identifier,
				Documents:    docs,
				ChunkSize:    chunkSize,
				ChunkOverlap: chunkOverlap,
				Mode:         parsedMode,
			})
			if err != nil {
				return err
			}

			ui.NewRenderer(os.Stdout).Indexed(knowledge, written)
			return nil
		},
	}

	cmd.Flags().StringVarP(&knowledge, "knowledge", "k", "", "Knowledge base name (required)")
	cmd.Flags().StringVar(&identifier, "identifier", "", "Optional partition identifier")
	cmd.Flags().StringVarP(&mode, "mode", "m", "insert", "Index mode: insert, deinsert, overwrite, upsert")
	cmd.Flags().StringVar(&text, "text", "", "Index literal text instead of files")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "Chunk size in runes (default from config)")
	cmd.Flags().IntVar(&chunkOverlap, "chunk-overlap", 0, "Chunk overlap in runes (default from config)")
	return cmd
}
