package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"secrag/internal/domain"
	"secrag/internal/finance"
	"secrag/internal/ingest"
	"secrag/internal/mcpserver"
	"secrag/internal/metadata"
	"secrag/internal/summarizer"
	"secrag/internal/tui"
)

var ingestClear bool

var ingestCmd = &cobra.Command{
	Use:   "ingest <file|glob>...",
	Short: "Chunk, embed and upload filings",
	Example: `  secrag ingest 'data/*_10K_*.htm'
  secrag ingest --clear data/AAPL_10Q_2024-05-03.txt`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

var chunkCmd = &cobra.Command{
	Use:   "chunk <file|glob>...",
	Short: "Print chunk records as JSON lines without embedding",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runChunk,
}

var (
	searchTopK   int
	searchJSON   bool
	searchFilter domain.Filters
	searchForm   string
	searchType   string
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Semantic search with optional metadata filters",
	Example: `  secrag search "supply chain risk" --ticker AAPL --year 2024 --item "risk factors"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

var tuiCmd = &cobra.Command{
	Use:   "tui [file|glob]...",
	Short: "Browse search results interactively",
	Long:  "Opens the result browser. Arguments are ingested first, like --preload.",
	RunE:  runTUI,
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve search and calculator tools over MCP stdio",
	RunE:  runMCP,
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestClear, "clear", false, "remove every stored chunk before ingesting")

	searchCmd.Flags().IntVarP(&searchTopK, "top-k", "k", 0, "number of results (default retrieval.default_top_k)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	searchCmd.Flags().StringVar(&searchFilter.Ticker, "ticker", "", "exact ticker")
	searchCmd.Flags().StringVar(&searchForm, "form", "", "10K or 10Q")
	searchCmd.Flags().IntVar(&searchFilter.FiscalYear, "year", 0, "fiscal year")
	searchCmd.Flags().StringVar(&searchType, "type", "", "narrative or table")
	searchCmd.Flags().StringVar(&searchFilter.ItemLabel, "item", "", "case-insensitive substring of the item label")

	rootCmd.AddCommand(ingestCmd, chunkCmd, searchCmd, tuiCmd, mcpCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer a.Close()
	if ingestClear {
		if err := a.ingester.Clear(cmd.Context()); err != nil {
			return fmt.Errorf("clear vector store: %w", err)
		}
	}
	sum, err := a.ingest(cmd.Context(), args)
	for _, r := range sum.Reports {
		if r.Err != nil {
			cmd.Printf("FAIL  %s: %v\n", r.Path, r.Err)
			continue
		}
		cmd.Printf("ok    %s  %d chunks\n", r.Filing.Key(), r.Chunks)
	}
	for _, p := range sum.Skipped {
		cmd.Printf("skip  %s\n", p)
	}
	cmd.Printf("%d filings, %d chunks uploaded, %d failed, %d skipped\n",
		len(sum.Reports)-sum.Failed(), sum.Chunks(), sum.Failed(), len(sum.Skipped))
	return err
}

func runChunk(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	paths := ingest.Expand(args)
	if len(paths) == 0 {
		return fmt.Errorf("no filings matched %v", args)
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	for _, path := range paths {
		_, chunks, err := a.pipeline.ChunkFile(path)
		if errors.Is(err, metadata.ErrBadFilename) || errors.Is(err, metadata.ErrBadDate) {
			a.log.Warn().Err(err).Str("path", path).Msg("skipping file")
			continue
		}
		if err != nil {
			return err
		}
		for _, c := range chunks {
			rec := struct {
				ID       string               `json:"id"`
				Metadata domain.ChunkMetadata `json:"metadata"`
			}{c.ID, c.Metadata()}
			if err := enc.Encode(rec); err != nil {
				return err
			}
		}
	}
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	f := searchFilter
	f.Ticker = strings.ToUpper(f.Ticker)
	if searchForm != "" {
		ft, err := domain.ParseFormType(searchForm)
		if err != nil {
			return err
		}
		f.FormType = ft
	}
	if searchType != "" {
		f.ChunkType = domain.ChunkType(strings.ToLower(searchType))
	}

	a, err := newApp(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer a.Close()
	results, err := a.engine.Search(cmd.Context(), strings.Join(args, " "), searchTopK, f)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	if searchJSON {
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal results: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}
	if len(results) == 0 {
		cmd.Println("No results found.")
		return nil
	}
	for i, r := range results {
		cmd.Printf("  [%d] %s (%.4f)\n", i+1, r.ChunkID, r.Score)
		cmd.Printf("      %s %s FY%d Q%d  %s  [%s]\n", r.Ticker, r.FormType,
			r.Fiscal.FiscalYear, r.Fiscal.FiscalQuarter, r.ItemLabel, r.ChunkType)
		cmd.Printf("      %s\n\n", mcpserver.Truncate(strings.Join(strings.Fields(r.Text), " "), 240))
	}
	return nil
}

func runTUI(cmd *cobra.Command, args []string) error {
	preload = append(preload, args...)
	a, err := newApp(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer a.Close()
	summary := fmt.Sprintf("%s embeddings, %s store", a.embedder.Name(), a.cfg.VectorStore.Type)
	m := tui.New(cmd.Context(), a.engine, a.cfg.Retrieval.DefaultTopK, summary)
	_, err = tea.NewProgram(m, tea.WithContext(cmd.Context()), tea.WithAltScreen()).Run()
	return err
}

func runMCP(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer a.Close()
	tools := mcpserver.NewTools(a.engine, finance.NewCalculator(a.engine, a.log), summarizer.NewFrequency(), a.log)
	a.log.Info().Str("version", version).Msg("mcp server on stdio")
	return mcpserver.Run(cmd.Context(), tools, version)
}
