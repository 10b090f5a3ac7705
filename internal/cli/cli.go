// Package cli implements the covrs command-line surface: flag parsing and
// dispatch, following the teacher's cli.Run(args, stdout, stderr, svc)
// entrypoint shape and per-subcommand flag.FlagSet style.
package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/covrs/covrs/internal/config"
	"github.com/covrs/covrs/internal/diffcoverage"
	"github.com/covrs/covrs/internal/diffparser"
	"github.com/covrs/covrs/internal/ingest"
	"github.com/covrs/covrs/internal/model"
	"github.com/covrs/covrs/internal/parser"
	"github.com/covrs/covrs/internal/report"
	"github.com/covrs/covrs/internal/store"
	"github.com/covrs/covrs/internal/vcsdiff"
)

// defaultDBPath matches the config package's default so a bare `covrs`
// invocation with no config file and no --db flag still works.
const defaultDBPath = "./.covrs.db"

// App bundles the collaborators a command needs. main() constructs one
// against a real store and registry; tests construct one against a
// temporary database.
type App struct {
	Store    *store.Store
	Registry *parser.Registry
	Logger   *zap.Logger
	Stdin    io.Reader
	Config   config.Config
}

// GlobalOptions holds CLI-wide flags parsed ahead of the command name.
type GlobalOptions struct {
	DBPath string
}

// DBPath extracts the --db flag's value from args (the full os.Args,
// including argv[0]), or the default if absent. It is ResolveDBPath with
// an empty config.
func DBPath(args []string) string {
	return ResolveDBPath(args, config.Config{})
}

// ResolveDBPath extracts the database path from args (the full os.Args,
// including argv[0]), preferring an explicit --db flag, then cfg's DBPath,
// then the built-in default. main() calls this before constructing the
// App, since the store must exist before Run dispatches.
func ResolveDBPath(args []string, cfg config.Config) string {
	var explicit string
	if len(args) >= 2 {
		global, _, _ := parseGlobalFlags(args[1:])
		explicit = global.DBPath
	}
	switch {
	case explicit != "":
		return explicit
	case cfg.DBPath != "":
		return cfg.DBPath
	default:
		return defaultDBPath
	}
}

// LoadConfig locates and loads the project config file, returning a zero
// value when none is found or it fails to parse — configuration is
// ambient, not a precondition for running the CLI.
func LoadConfig() config.Config {
	path, err := config.FindConfig()
	if err != nil {
		return config.Config{}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}
	}
	return cfg
}

// parseGlobalFlags extracts --db PATH (if present) ahead of the first
// non-flag argument, which is taken as the command name.
func parseGlobalFlags(args []string) (GlobalOptions, string, []string) {
	var global GlobalOptions

	i := 0
	for i < len(args) {
		arg := args[i]
		switch {
		case arg == "--db":
			if i+1 < len(args) {
				global.DBPath = args[i+1]
				i += 2
				continue
			}
			i++
		case strings.HasPrefix(arg, "--db="):
			global.DBPath = strings.TrimPrefix(arg, "--db=")
			i++
		default:
			return global, arg, args[i+1:]
		}
	}
	return global, "", nil
}

// Run dispatches args[1:] to a subcommand against app and returns the
// process exit code: 0 on success, non-zero on any fatal error.
func Run(args []string, stdout, stderr io.Writer, app *App) int {
	if len(args) < 2 {
		usage(stderr)
		return 2
	}

	_, cmd, cmdArgs := parseGlobalFlags(args[1:])

	if cmd == "--version" || cmd == "-v" {
		printVersion(stdout)
		return 0
	}
	if cmd == "--help" || cmd == "-h" || cmd == "" {
		usage(stderr)
		if cmd == "" {
			return 2
		}
		return 0
	}

	ctx := context.Background()

	switch cmd {
	case "version":
		printVersion(stdout)
		return 0
	case "ingest":
		return runIngest(ctx, cmdArgs, stdout, stderr, app)
	case "summary":
		return runSummary(ctx, cmdArgs, stdout, stderr, app)
	case "reports":
		return runReports(ctx, cmdArgs, stdout, stderr, app)
	case "files":
		return runFiles(ctx, cmdArgs, stdout, stderr, app)
	case "lines":
		return runLines(ctx, cmdArgs, stdout, stderr, app)
	case "diff-coverage":
		return runDiffCoverage(ctx, cmdArgs, stdout, stderr, app)
	case "help":
		usage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "covrs: unknown command %q\n", cmd)
		usage(stderr)
		return 2
	}
}

func runIngest(ctx context.Context, args []string, stdout, stderr io.Writer, app *App) int {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	fs.SetOutput(stderr)
	format := fs.String("format", "", "coverage format override (lcov, cobertura, jacoco, clover, istanbul, gocover)")
	name := fs.String("name", "", "report name (defaults to the input path)")
	overwrite := fs.Bool("overwrite", false, "replace any existing report with the same name")
	root := fs.String("root", "", "project root to strip from absolute source paths")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(stderr, "covrs: ingest requires a file argument")
		return 2
	}
	file := fs.Arg(0)
	// Flags may also follow the file argument.
	if err := fs.Parse(fs.Args()[1:]); err != nil {
		return 2
	}

	effectiveRoot := *root
	if effectiveRoot == "" {
		effectiveRoot = app.Config.ProjectRoot
	}

	opts := ingest.Options{
		Path:           file,
		FormatOverride: model.Format(*format),
		ReportName:     *name,
		Overwrite:      *overwrite,
		ProjectRoot:    effectiveRoot,
	}
	if opts.FormatOverride == "" {
		opts.FormatOverride = model.Format(app.Config.DefaultFormat)
	}
	if opts.FormatOverride == "" {
		opts.FormatOverride = model.FormatAuto
	}

	if err := ingest.Run(ctx, app.Registry, app.Store, opts, app.Logger); err != nil {
		fmt.Fprintf(stderr, "covrs: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "ingested %s as %q\n", opts.Path, reportNameOrPath(opts))
	return 0
}

func reportNameOrPath(opts ingest.Options) string {
	if opts.ReportName != "" {
		return opts.ReportName
	}
	return opts.Path
}

func runSummary(ctx context.Context, args []string, stdout, stderr io.Writer, app *App) int {
	fs := flag.NewFlagSet("summary", flag.ContinueOnError)
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	s, err := app.Store.GetSummary(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "covrs: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "Lines:     %d/%d (%.1f%%)\n", s.CoveredLines, s.TotalLines, s.LineRate()*100)
	fmt.Fprintf(stdout, "Branches:  %d/%d\n", s.CoveredBranches, s.TotalBranches)
	fmt.Fprintf(stdout, "Functions: %d/%d\n", s.CoveredFunctions, s.TotalFunctions)
	return 0
}

func runReports(ctx context.Context, args []string, stdout, stderr io.Writer, app *App) int {
	fs := flag.NewFlagSet("reports", flag.ContinueOnError)
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	reports, err := app.Store.ListReports(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "covrs: %v\n", err)
		return 1
	}
	for _, r := range reports {
		fmt.Fprintf(stdout, "%s\t%s\t%s\t%s\n", r.Name, r.SourceFormat, r.SourceFile, r.CreatedAt)
	}
	return 0
}

func runFiles(ctx context.Context, args []string, stdout, stderr io.Writer, app *App) int {
	fs := flag.NewFlagSet("files", flag.ContinueOnError)
	fs.SetOutput(stderr)
	sortByCoverage := fs.Bool("sort-by-coverage", false, "sort ascending by line rate instead of by path")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	files, err := app.Store.GetFileSummaries(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "covrs: %v\n", err)
		return 1
	}
	if *sortByCoverage {
		sort.SliceStable(files, func(i, j int) bool {
			return files[i].LineRate() < files[j].LineRate()
		})
	}
	for _, f := range files {
		fmt.Fprintf(stdout, "%s\t%.1f%%\t%d/%d\n", f.Path, f.LineRate()*100, f.CoveredLines, f.TotalLines)
	}
	return 0
}

func runLines(ctx context.Context, args []string, stdout, stderr io.Writer, app *App) int {
	fs := flag.NewFlagSet("lines", flag.ContinueOnError)
	fs.SetOutput(stderr)
	uncoveredOnly := fs.Bool("uncovered", false, "show only lines with zero hit count")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(stderr, "covrs: lines requires a file argument")
		return 2
	}
	file := fs.Arg(0)
	// Flags may also follow the file argument.
	if err := fs.Parse(fs.Args()[1:]); err != nil {
		return 2
	}

	lines, err := app.Store.GetLines(ctx, file)
	if err != nil {
		fmt.Fprintf(stderr, "covrs: %v\n", err)
		return 1
	}
	for _, l := range lines {
		if *uncoveredOnly && l.HitCount > 0 {
			continue
		}
		fmt.Fprintf(stdout, "%d\t%d\n", l.LineNumber, l.HitCount)
	}
	return 0
}

func runDiffCoverage(ctx context.Context, args []string, stdout, stderr io.Writer, app *App) int {
	fs := flag.NewFlagSet("diff-coverage", flag.ContinueOnError)
	fs.SetOutput(stderr)
	gitDiffArgs := fs.String("git-diff", "", "git diff arguments, e.g. \"origin/main...HEAD\" (reads stdin if absent)")
	pathPrefix := fs.String("path-prefix", "", "prefix to add to every diffed path before lookup")
	style := fs.String("style", "text", "output style: text or markdown")
	_ = fs.Bool("comment", false, "accepted but ignored: this command prints the report and posts no PR comment")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	diffText, err := readDiffText(ctx, *gitDiffArgs, app.Stdin)
	if err != nil {
		fmt.Fprintf(stderr, "covrs: %v\n", err)
		return 1
	}

	added, err := diffparser.Parse(diffText)
	if err != nil {
		fmt.Fprintf(stderr, "covrs: %v\n", err)
		return 1
	}
	effectivePrefix := *pathPrefix
	if effectivePrefix == "" {
		effectivePrefix = app.Config.Diff.PathPrefix
	}
	if effectivePrefix != "" {
		added = diffparser.ApplyPathPrefix(added, effectivePrefix)
	}

	result, err := diffcoverage.Compute(ctx, app.Store, added)
	if err != nil {
		fmt.Fprintf(stderr, "covrs: %v\n", err)
		return 1
	}

	rpt := toReport(result, len(added))

	switch *style {
	case "markdown":
		err = report.WriteMarkdown(stdout, rpt)
	default:
		err = report.WriteText(stdout, rpt)
	}
	if err != nil {
		fmt.Fprintf(stderr, "covrs: %v\n", err)
		return 1
	}
	return 0
}

func readDiffText(ctx context.Context, gitDiffArgs string, stdin io.Reader) (string, error) {
	if gitDiffArgs != "" {
		g := vcsdiff.Git{Dir: "."}
		return g.Diff(ctx, strings.Fields(gitDiffArgs))
	}
	raw, err := io.ReadAll(stdin)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func toReport(result diffcoverage.Result, diffFileCount int) report.DiffCoverageReport {
	files := make([]report.FileDetail, len(result.Files))
	for i, f := range result.Files {
		files[i] = report.FileDetail{FileDiffCoverage: f}
	}
	return report.DiffCoverageReport{
		Files:               files,
		TotalCovered:        result.TotalCovered,
		TotalInstrumentable: result.TotalInstrumentable,
		DiffFileCount:       diffFileCount,
	}
}

func usage(w io.Writer) {
	fmt.Fprintf(w, `covrs - coverage ingestion, storage, and diff-coverage reporting

Usage:
  covrs [--db PATH] <command> [flags]
  covrs [--version | --help]

Global Flags:
  --db PATH   database file (default %s)

Commands:
  ingest <file>    Parse and store a coverage report
  summary          Show project-wide coverage totals
  reports          List stored reports
  files            List per-file coverage
  lines <file>     Show per-line hit counts for a file
  diff-coverage    Compute coverage over a diff's added lines

Other:
  help       Show this help
  version    Show version information

Run 'covrs <command> -h' to list a command's flags.
`, defaultDBPath)
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "covrs version %s (commit %s, built %s)\n", Version, Commit, Date)
}
