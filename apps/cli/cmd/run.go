package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/abdul-hamid-achik/hitcall/packages/core/descriptor"
	"github.com/abdul-hamid-achik/hitcall/packages/core/runner"
	"github.com/abdul-hamid-achik/hitcall/packages/http"
	"github.com/abdul-hamid-achik/hitcall/packages/output"
	"github.com/abdul-hamid-achik/hitcall/packages/store"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one request from a descriptor",
	Long: `Execute one request from a descriptor, selected by tag or by its
zero-based position in the requests list.

Examples:
  hitcall run --file api.json --tag login
  hitcall run -f api.yaml -i 0 --output json
  hitcall run -f api.json -t me --dry-run -v
  hitcall run -f api.json -t create --watch`,
	Args: cobra.NoArgs,
	RunE: runCommand,
}

const (
	// WatchDebounceDelay is the debounce delay for file watch events
	WatchDebounceDelay = 300 * time.Millisecond
)

var (
	fileFlag       string
	tagFlag        string
	indexFlag      int
	timeoutFlag    string
	noColorFlag    bool
	strictAuthFlag bool
	dryRunFlag     bool
	outputFlag     string
	watchFlag      bool
)

func init() {
	addFileFlag(runCmd)
	runCmd.Flags().StringVarP(&tagFlag, "tag", "t", "", "Tag of the request to execute")
	runCmd.Flags().IntVarP(&indexFlag, "index", "i", 0, "Zero-based index of the request to execute")
	runCmd.MarkFlagsMutuallyExclusive("tag", "index")
	runCmd.MarkFlagsOneRequired("tag", "index")

	runCmd.Flags().StringVarP(&outputFlag, "output", "o", "console", "Output format: console, json")
	runCmd.Flags().BoolVar(&noColorFlag, "no-color", false, "Disable colored output")
	runCmd.Flags().StringVar(&timeoutFlag, "timeout", "", "Request timeout (e.g., 30s, 1m)")
	runCmd.Flags().BoolVar(&strictAuthFlag, "strict-auth", false, "Fail when the configured token file is missing or empty")
	runCmd.Flags().BoolVar(&dryRunFlag, "dry-run", false, "Print the assembled request without sending it")
	runCmd.Flags().BoolVarP(&watchFlag, "watch", "w", false, "Watch the descriptor and body file and re-run on changes")
}

func addFileFlag(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&fileFlag, "file", "f", "", "Path to the request descriptor (JSON or YAML)")
	_ = cmd.MarkFlagRequired("file")
}

// Formatter interface for all output formatters
type Formatter interface {
	FormatResult(result *runner.Result)
	FormatRequest(req *http.Request)
	FormatError(err error)
	FormatNotFound()
}

func newFormatter(cmd *cobra.Command, w io.Writer) (Formatter, error) {
	format := appConfig.Output
	if cmd.Flags().Changed("output") {
		format = outputFlag
	}
	verbose := verboseFlag || appConfig.Verbose

	switch strings.ToLower(format) {
	case "json":
		return output.NewJSONFormatter(output.JSONWithWriter(w), output.JSONWithVerbose(verbose)), nil
	case "console", "":
		return output.NewConsoleFormatter(
			output.WithWriter(w),
			output.WithVerbose(verbose),
			output.WithNoColor(noColorFlag || appConfig.NoColor),
		), nil
	default:
		return nil, fmt.Errorf("unknown output format %q (use console or json)", format)
	}
}

func buildRunnerConfig() (*runner.Config, error) {
	timeout := appConfig.Timeout
	if timeoutFlag != "" {
		d, err := time.ParseDuration(timeoutFlag)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout value %q: %w (use format like 30s, 1m, 500ms)", timeoutFlag, err)
		}
		timeout = d
	}

	return &runner.Config{
		Timeout:           timeout,
		FollowRedirect:    appConfig.FollowRedirects,
		MaxRedirects:      appConfig.MaxRedirects,
		DefaultHeaders:    appConfig.Headers,
		StrictCredentials: strictAuthFlag || appConfig.StrictAuth,
		Logger:            logger,
	}, nil
}

// selectEntry picks the entry named by --tag or --index.
func selectEntry(cmd *cobra.Command, d *descriptor.Descriptor) (*descriptor.Entry, bool) {
	if cmd.Flags().Changed("index") {
		return d.ByIndex(indexFlag)
	}
	return d.ByTag(tagFlag)
}

func runCommand(cmd *cobra.Command, args []string) error {
	formatter, err := newFormatter(cmd, cmd.OutOrStdout())
	if err != nil {
		return withExitCode(ExitUsageError, err)
	}

	cfg, err := buildRunnerConfig()
	if err != nil {
		return withExitCode(ExitUsageError, err)
	}

	s := newStore()
	r := runner.NewRunner(cfg, runner.WithStore(s))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = runOnce(ctx, cmd, r, formatter)
	if !watchFlag || dryRunFlag {
		return err
	}
	return watch(ctx, cmd, r, s, formatter)
}

// runOnce loads the descriptor, selects the entry and executes it.
func runOnce(ctx context.Context, cmd *cobra.Command, r *runner.Runner, formatter Formatter) error {
	d, err := descriptor.Load(fileFlag)
	if err != nil {
		formatter.FormatError(err)
		return reported(ExitParseError, err)
	}

	entry, ok := selectEntry(cmd, d)
	if !ok {
		formatter.FormatNotFound()
		return nil
	}

	if dryRunFlag {
		req, err := r.Prepare(d, entry)
		if err != nil {
			formatter.FormatError(err)
			return reported(ExitFailure, err)
		}
		formatter.FormatRequest(req)
		return nil
	}

	result, err := r.Execute(ctx, d, entry)
	if result.Response != nil {
		formatter.FormatResult(result)
	}
	if err != nil {
		formatter.FormatError(err)
		return reported(callExitCode(err), err)
	}
	return nil
}

// watchedFiles returns the descriptor and, for entries with a body, the body
// file, as absolute paths.
func watchedFiles(cmd *cobra.Command, path string, s *store.Store) []string {
	files := []string{absPath(path)}

	d, err := descriptor.Load(path)
	if err != nil {
		return files
	}
	entry, ok := selectEntry(cmd, d)
	if ok && entry.Body != nil {
		files = append(files, absPath(s.Expand(d.Resolve(entry.Body.File))))
	}
	return files
}

func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

func watch(ctx context.Context, cmd *cobra.Command, r *runner.Runner, s *store.Store, formatter Formatter) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	// Directories are watched so that editors replacing files by rename
	// keep triggering events.
	watchedDirs := make(map[string]bool)
	tracked := make(map[string]bool)
	track := func() {
		for _, f := range watchedFiles(cmd, fileFlag, s) {
			tracked[f] = true
			dir := filepath.Dir(f)
			if watchedDirs[dir] {
				continue
			}
			if err := watcher.Add(dir); err != nil {
				formatter.FormatError(fmt.Errorf("failed to watch %s: %w", dir, err))
				continue
			}
			watchedDirs[dir] = true
		}
	}
	track()

	fmt.Fprintf(cmd.ErrOrStderr(), "\nWatching for changes... (press Ctrl+C to stop)\n\n")

	// Debounce timer for rapid file changes
	var debounceTimer *time.Timer
	rerun := make(chan string, 1)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if !tracked[absPath(event.Name)] {
				continue
			}

			// Debounce: reset timer on each event
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			name := event.Name
			debounceTimer = time.AfterFunc(WatchDebounceDelay, func() {
				select {
				case rerun <- name:
				default:
				}
			})

		case name := <-rerun:
			fmt.Fprintf(cmd.ErrOrStderr(), "\nFile changed: %s\nRe-running...\n\n", name)
			// A failed call is already printed; keep watching.
			_ = runOnce(ctx, cmd, r, formatter)
			track()
			fmt.Fprintf(cmd.ErrOrStderr(), "\nWatching for changes... (press Ctrl+C to stop)\n")

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			formatter.FormatError(fmt.Errorf("watcher error: %w", err))
		}
	}
}
