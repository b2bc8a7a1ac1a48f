package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"py2md/internal/config"
	"py2md/internal/crawler"
	perrors "py2md/internal/errors"
	"py2md/internal/logging"
	"py2md/internal/navigation"
	"py2md/internal/pipeline"
	"py2md/internal/storage"
	"py2md/internal/verify"
	"py2md/internal/watch"
)

var (
	rootCmd = &cobra.Command{
		Use:           "py2md",
		Short:         "Generate Markdown API docs from Python sources and wire them into mkdocs.yml",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.SetupLogger(verbosity)
		},
	}
	configPath string
	verbosity  int
)

// exitError carries the process exit code for a failed command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("✗ "+err.Error()))
		os.Exit(exitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultConfigFile, "Path to the py2md YAML config")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase log verbosity (-v, -vv)")

	addRunFlags(generateCmd)
	addRunFlags(watchCmd)
	addNavFlags(checkCmd)
	checkCmd.Flags().Bool("strict", false, "Treat orphaned documents as failures")
	historyCmd.Flags().String("db", "", "History database (overrides config)")
	historyCmd.Flags().Int("limit", 20, "Number of runs to show")
	historyCmd.Flags().String("run", "", "Show the documents recorded for one run ID")

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(historyCmd)
}

// exitCode maps an error to the process status: 2 for invalid configuration
// or usage, 1 for everything else.
func exitCode(err error) int {
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	switch perrors.GetCode(err) {
	case perrors.ErrConfigInvalid:
		return 2
	default:
		return 1
	}
}

func addNavFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("out", "", "Output root for generated Markdown")
	f.String("mkdocs", "", "Path to mkdocs.yml")
	f.String("section", "", "Top-level nav section to manage")
	f.String("group", "", "Subgroup under the section (empty string disables subgrouping)")
	f.String("nav-root", "", "Directory nav paths are relative to (defaults to --out)")
}

func addRunFlags(cmd *cobra.Command) {
	addNavFlags(cmd)
	f := cmd.Flags()
	f.String("src", "", "Python source root to scan")
	f.Bool("include-comments", false, "Add a comment index to each document")
	f.String("layout", "", "Output layout: mirror or flat")
	f.Bool("no-mirror", false, "Shorthand for --layout flat")
	f.String("on-parse-error", "", "What a file that fails to parse does: abort or skip")
	f.Bool("notebooks", false, "Convert .ipynb files with jupyter nbconvert")
	f.String("report", "", "Write a JSON pipeline report to this path")
	f.String("model", "", "Write the JSON module model to this path")
	f.String("db", "", "Record run history in this SQLite database")
}

// loadConfig reads the config file and lays explicitly set flags over it.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	f := cmd.Flags()
	str := func(name string, dst *string) {
		if f.Lookup(name) != nil && f.Changed(name) {
			*dst, _ = f.GetString(name)
		}
	}
	str("src", &cfg.SourceRoot)
	str("out", &cfg.OutputRoot)
	str("mkdocs", &cfg.MkDocsPath)
	str("section", &cfg.Section)
	str("nav-root", &cfg.NavRoot)
	str("report", &cfg.ReportPath)
	str("model", &cfg.ModelPath)
	str("db", &cfg.HistoryDB)

	if f.Lookup("group") != nil && f.Changed("group") {
		g, _ := f.GetString("group")
		cfg.SetSubgroup(g)
	}
	if f.Lookup("layout") != nil && f.Changed("layout") {
		l, _ := f.GetString("layout")
		cfg.Layout = config.Layout(strings.ToLower(l))
	}
	if f.Lookup("no-mirror") != nil && f.Changed("no-mirror") {
		if flat, _ := f.GetBool("no-mirror"); flat {
			cfg.Layout = config.LayoutFlat
		}
	}
	if f.Lookup("on-parse-error") != nil && f.Changed("on-parse-error") {
		p, _ := f.GetString("on-parse-error")
		cfg.OnParseError = config.ParseErrorPolicy(strings.ToLower(p))
	}
	if f.Lookup("include-comments") != nil && f.Changed("include-comments") {
		cfg.IncludeComments, _ = f.GetBool("include-comments")
	}
	if f.Lookup("notebooks") != nil && f.Changed("notebooks") {
		cfg.Notebooks.Enabled, _ = f.GetBool("notebooks")
	}
	return cfg, nil
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Scan the source root, write Markdown, and update the mkdocs nav",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		return generateOnce(cmd.Context(), cfg)
	},
}

func generateOnce(ctx context.Context, cfg *config.Config) error {
	fmt.Println(mutedStyle.Render(fmt.Sprintf("📂 Scanning %s", cfg.SourceRoot)))

	summary, err := pipeline.NewGenerate(cfg).Run(ctx)
	if err != nil {
		return err
	}
	printSummary(cfg, summary)

	if err := summary.Err(); err != nil {
		return &exitError{code: 1, err: fmt.Errorf("%d document(s) failed", len(summary.Failed))}
	}
	return nil
}

func printSummary(cfg *config.Config, s *pipeline.Summary) {
	for _, skipped := range s.Skipped {
		fmt.Println(warningStyle.Render("⚠ skipped: " + skipped.Error()))
	}
	for _, failed := range s.Failed {
		fmt.Println(errorStyle.Render("✗ " + failed.Error()))
	}

	fmt.Println(successStyle.Render(fmt.Sprintf("✅ Generated %d markdown files into %s", len(s.Documents), cfg.OutputRoot)))
	fmt.Println(mutedStyle.Render(fmt.Sprintf("   %d written, %d unchanged", s.Written, s.Unchanged)))
	fmt.Println(successStyle.Render(fmt.Sprintf("✅ %s updated under section %s", cfg.MkDocsPath, s.Label)))
	if s.Dropped > 0 {
		fmt.Println(mutedStyle.Render(fmt.Sprintf("   removed %d stale nav entries", s.Dropped)))
	}
	if len(s.APIChanged) > 0 {
		fmt.Println(warningStyle.Render("API changed since the last recorded run:"))
		for _, m := range s.APIChanged {
			fmt.Println(itemStyle.Render("- " + m))
		}
	}
	if s.Revision != nil {
		rev := s.Revision.Short()
		if s.Revision.Dirty {
			rev += " (dirty)"
		}
		fmt.Println(mutedStyle.Render("   source revision " + rev))
	}
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Regenerate whenever Python sources or notebooks change",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		extensions := []string{".py"}
		if cfg.Notebooks.Enabled {
			extensions = append(extensions, crawler.NotebookExtension)
		}
		skip := func(name string) bool { return slices.Contains(crawler.IgnoredDirs, name) }

		fmt.Println(mutedStyle.Render(fmt.Sprintf("👀 Watching %s (Ctrl-C to stop)", cfg.SourceRoot)))
		w := watch.New(cfg.SourceRoot, cfg.Watch.Debounce, extensions, skip, func(ctx context.Context) error {
			return generateOnce(ctx, cfg)
		})
		return w.Run(ctx)
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify that every managed nav entry points at a generated document",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cfg.NavBase() == "" {
			return perrors.New(perrors.ErrConfigInvalid, "", "output root is required (--out or --nav-root)")
		}
		strict, _ := cmd.Flags().GetBool("strict")

		nav, err := navigation.Load(cfg.MkDocsPath)
		if err != nil {
			return err
		}
		if !nav.Exists() {
			return perrors.New(perrors.ErrIO, cfg.MkDocsPath, "site configuration does not exist")
		}

		res, err := verify.Check(nav, cfg.NavBase(), cfg.OutputRoot, cfg.Section, cfg.SubgroupName())
		if err != nil {
			return err
		}

		for _, p := range res.Problems {
			fmt.Println(errorStyle.Render("✗ " + p.String()))
		}
		for _, o := range res.Orphans {
			fmt.Println(warningStyle.Render("⚠ not in nav: " + o))
		}

		if !res.OK() || (strict && len(res.Orphans) > 0) {
			return &exitError{code: 1, err: fmt.Errorf("%d of %d entries under %s failed", len(res.Problems), res.Checked, cfg.Label())}
		}
		fmt.Println(successStyle.Render(fmt.Sprintf("✅ %d entries under %s are valid", res.Checked, cfg.Label())))
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded generation runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cfg.HistoryDB == "" {
			return perrors.New(perrors.ErrConfigInvalid, "", "no history database configured (--db or history_db)")
		}
		if _, err := os.Stat(cfg.HistoryDB); err != nil {
			return perrors.Wrap(err, perrors.ErrIO, cfg.HistoryDB, "history database is not readable")
		}

		store, err := storage.NewSQLiteStore(cfg.HistoryDB)
		if err != nil {
			return err
		}
		defer store.Close()

		if runID, _ := cmd.Flags().GetString("run"); runID != "" {
			docs, err := store.RunDocuments(cmd.Context(), runID)
			if err != nil {
				return err
			}
			fmt.Println(headerStyle.Render("Run " + runID))
			for _, d := range docs {
				name := d.Module
				if name == "" {
					name = d.SourcePath
				}
				fmt.Println(itemStyle.Render(fmt.Sprintf("%-40s %s %s", name, d.DocPath, mutedStyle.Render(d.Kind))))
			}
			return nil
		}

		limit, _ := cmd.Flags().GetInt("limit")
		runs, err := store.ListRuns(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println(mutedStyle.Render("No runs recorded."))
			return nil
		}
		fmt.Println(headerStyle.Render("Recent runs"))
		for _, r := range runs {
			status := successStyle.Render(r.Status)
			if r.Status != "ok" {
				status = warningStyle.Render(r.Status)
			}
			commit := r.Commit
			if len(commit) > 12 {
				commit = commit[:12]
			}
			fmt.Println(itemStyle.Render(fmt.Sprintf("%s  %s  %-8s docs=%d failed=%d %s",
				r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.ID, status, r.Documents, r.Failed,
				mutedStyle.Render(commit))))
		}
		return nil
	},
}
