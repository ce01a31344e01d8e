package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/advocadabra/scr/internal/api"
	"github.com/advocadabra/scr/internal/bootstrap"
	"github.com/advocadabra/scr/internal/config"
	"github.com/advocadabra/scr/internal/corpus"
	"github.com/advocadabra/scr/internal/index"
	"github.com/advocadabra/scr/internal/ingest"
	"github.com/advocadabra/scr/internal/retrieval"
)

// --- search ---

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Find the cases most similar to a description",
	Long: `Find the cases most similar to a description.

Examples:
  scr search "employee dismissed after reporting safety violations"
  scr search --k 3 --json "breach of software license"
  scr search --server "patent dispute over charging hardware"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		query := strings.Join(args, " ")
		k := cfg.Retrieval.TopK
		if cmd.Flags().Changed("k") {
			k, _ = cmd.Flags().GetInt("k")
		}
		exhaustive, _ := cmd.Flags().GetBool("exhaustive")
		rounds, _ := cmd.Flags().GetInt("max-rounds")
		asJSON, _ := cmd.Flags().GetBool("json")
		remote, _ := cmd.Flags().GetBool("server")

		ctx := cmd.Context()
		var results []retrieval.Result
		if remote {
			results, err = newAPIClient(cfg).retrieve(ctx, api.RetrieveRequest{
				Query:      query,
				K:          &k,
				Exhaustive: exhaustive,
				MaxRounds:  rounds,
			})
		} else {
			var r *retrieval.Retriever
			r, err = openRetriever(ctx, cfg)
			if err != nil {
				return err
			}
			defer r.Close()
			results, err = search(ctx, r, query, k, exhaustive, rounds)
		}
		if err != nil {
			return err
		}
		return writeResults(cmd.OutOrStdout(), results, asJSON)
	},
}

func init() {
	searchCmd.Flags().Int("k", 10, "maximum number of cases to return (default from retrieval.top_k)")
	searchCmd.Flags().Bool("exhaustive", false, "widen the candidate pool until k cases are found")
	searchCmd.Flags().Int("max-rounds", 0, "pool doublings allowed with --exhaustive (0 = until the corpus is scanned)")
	searchCmd.Flags().Bool("json", false, "print results as JSON")
	searchCmd.Flags().Bool("server", false, "query a running `scr serve` instead of loading artifacts")
}

func search(ctx context.Context, s api.Searcher, query string, k int, exhaustive bool, rounds int) ([]retrieval.Result, error) {
	if exhaustive {
		return s.RetrieveExhaustive(ctx, query, k, rounds)
	}
	return s.Retrieve(ctx, query, k)
}

func writeResults(w io.Writer, results []retrieval.Result, asJSON bool) error {
	if !asJSON {
		printResults(w, results)
		return nil
	}
	if results == nil {
		results = []retrieval.Result{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

// --- bootstrap ---

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Write a small placeholder corpus",
	Long: `Write five mock cases with seeded random embeddings so the rest of the
tool can run before a real dataset exists. With --embed the cases are
embedded with the configured encoder instead, so rankings are meaningful.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		dir, _ := cmd.Flags().GetString("dir")
		paths, err := writablePaths(cfg, dir)
		if err != nil {
			return err
		}

		opts := bootstrap.Options{Dimension: cfg.Encoder.Dimension}
		opts.Force, _ = cmd.Flags().GetBool("force")
		opts.Seed, _ = cmd.Flags().GetUint64("seed")
		if cmd.Flags().Changed("dim") {
			opts.Dimension, _ = cmd.Flags().GetInt("dim")
		}

		ctx := cmd.Context()
		if embed, _ := cmd.Flags().GetBool("embed"); embed {
			eng, err := newEngine(ctx, cfg)
			if err != nil {
				return err
			}
			emb := retrieval.NewEmbedder(eng, cfg.Encoder.Model)
			defer emb.Close()
			opts.Embedder = emb
		}

		return runBootstrap(ctx, paths, opts)
	},
}

func init() {
	bootstrapCmd.Flags().Bool("force", false, "overwrite existing artifacts")
	bootstrapCmd.Flags().Int("dim", bootstrap.DefaultDimension, "embedding dimension for random vectors (default from encoder.dimension)")
	bootstrapCmd.Flags().Uint64("seed", bootstrap.DefaultSeed, "random seed")
	bootstrapCmd.Flags().Bool("embed", false, "embed the mock cases with the configured encoder")
	bootstrapCmd.Flags().String("dir", "", "local artifacts directory (default artifacts.dir)")
}

func runBootstrap(ctx context.Context, paths corpus.Paths, opts bootstrap.Options) error {
	res, err := bootstrap.Run(ctx, paths, opts)
	if err != nil {
		return err
	}
	if res.Exists {
		printWarning("Artifacts already exist in %s; use --force to overwrite", dirOf(paths))
		return nil
	}
	for _, p := range res.Removed {
		printStep("Removed %s", p)
	}
	printSuccess("Wrote %d mock cases (%d rows, dim %d) to %s", res.Cases, res.Build.Rows, res.Build.Dimension, dirOf(paths))
	return nil
}

// --- build ---

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Embed the dataset and write the index and metadata",
	Long: `Embed every record in the dataset with the configured encoder and write
the embeddings, flat index and metadata next to it.

Examples:
  scr build
  scr build --dir ./corpus --publish s3://legal-corpora/cases/v3`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		dir, _ := cmd.Flags().GetString("dir")
		paths, err := writablePaths(cfg, dir)
		if err != nil {
			return err
		}
		metric, err := index.ParseMetric(cfg.Retrieval.Metric)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		eng, err := newEngine(ctx, cfg)
		if err != nil {
			return err
		}
		emb := retrieval.NewEmbedder(eng, cfg.Encoder.Model)
		defer emb.Close()

		printStep("Embedding %s with %s/%s", paths.Dataset, emb.Name(), emb.Model())
		build, err := ingest.NewBuilder(emb, metric).Build(ctx, paths, progressPrinter("embedding"))
		if err != nil {
			return err
		}
		printSuccess("Built %d rows for %d cases (dim %d, %s); build %s", build.Rows, build.Cases, build.Dimension, build.Metric, build.ID)
		if build.Skipped > 0 {
			printWarning("Skipped %d malformed dataset records", build.Skipped)
		}

		if dst, _ := cmd.Flags().GetString("publish"); dst != "" {
			if err := newFetcher(cfg).Publish(ctx, dst, paths); err != nil {
				return fmt.Errorf("publishing artifacts: %w", err)
			}
			printSuccess("Published artifacts to %s", dst)
		}
		return nil
	},
}

func init() {
	buildCmd.Flags().String("dir", "", "local artifacts directory (default artifacts.dir)")
	buildCmd.Flags().String("publish", "", "upload the artifacts to s3://bucket/prefix after building")
}

// --- ingest ---

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Convert documents into dataset records",
	Long: `Convert PDF, HTML or plain text documents into case records and append
them to the dataset. Run ` + "`scr build`" + ` afterwards to index them.

Examples:
  scr ingest ./opinions/*.pdf --court "Ninth Circuit" --legal-area "Employment Law"
  scr ingest decision.html --case-id case_042`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		dir, _ := cmd.Flags().GetString("dir")
		paths, err := writablePaths(cfg, dir)
		if err != nil {
			return err
		}

		var opts ingest.ConvertOptions
		opts.CaseID, _ = cmd.Flags().GetString("case-id")
		opts.ChunkSize, _ = cmd.Flags().GetInt("chunk-size")
		opts.Court, _ = cmd.Flags().GetString("court")
		opts.Year, _ = cmd.Flags().GetInt("year")
		opts.LegalArea, _ = cmd.Flags().GetString("legal-area")
		if opts.CaseID != "" && len(args) > 1 {
			return fmt.Errorf("--case-id applies to a single file, got %d", len(args))
		}

		n, err := ingestFiles(paths.Dataset, args, opts)
		if err != nil {
			return err
		}
		printSuccess("Appended %d records from %d files to %s", n, len(args), paths.Dataset)
		return nil
	},
}

func init() {
	ingestCmd.Flags().String("dir", "", "local artifacts directory (default artifacts.dir)")
	ingestCmd.Flags().String("case-id", "", "case ID for the document (default derived from the file name)")
	ingestCmd.Flags().Int("chunk-size", ingest.DefaultChunkSize, "maximum characters per record")
	ingestCmd.Flags().String("court", "", "court that decided the case")
	ingestCmd.Flags().Int("year", 0, "year of the decision")
	ingestCmd.Flags().String("legal-area", "", "area of law")
}

// ingestFiles converts every file before appending anything, so a bad
// file leaves the dataset untouched.
func ingestFiles(dataset string, files []string, opts ingest.ConvertOptions) (int, error) {
	var all []corpus.CaseRecord
	for _, f := range files {
		recs, err := ingest.Convert(f, opts)
		if err != nil {
			return 0, err
		}
		printStep("%s: %d records as %s", f, len(recs), recs[0].CaseID)
		all = append(all, recs...)
	}
	if err := corpus.AppendDataset(dataset, all); err != nil {
		return 0, fmt.Errorf("appending to dataset: %w", err)
	}
	return len(all), nil
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "# %s\n", config.FilePath())
		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s  %s\n", colorize(colorBold, k.Key), k.Value, colorize(colorCyan, "$"+k.EnvVar))
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:               "set <key> <value>",
	Short:             "Set a configuration value",
	Args:              cobra.ExactArgs(2),
	ValidArgsFunction: completeConfigKey,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]
		if err := config.SetKey(key, value); err != nil {
			return err
		}
		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:               "unset <key>",
	Short:             "Remove a configuration value, restoring its default",
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeConfigKey,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}
		printSuccess("Unset %s", args[0])
		return nil
	},
}

func completeConfigKey(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return config.ValidKeys(), cobra.ShellCompDirectiveNoFileComp
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
}

func dirOf(p corpus.Paths) string {
	return filepath.Dir(p.Dataset)
}
