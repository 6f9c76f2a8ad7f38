package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charlievieth/fastwalk"
	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/playground/internal/domain/workspace"
	"github.com/GriffinCanCode/playground/internal/sandbox/host"
	"github.com/GriffinCanCode/playground/internal/sandbox/mode"
	"github.com/GriffinCanCode/playground/internal/sandbox/runtime"
	"github.com/GriffinCanCode/playground/internal/sandbox/template"
)

var (
	batchGlob    string
	batchMode    string
	batchExclude []string
	batchSettle  time.Duration
)

var batchCmd = &cobra.Command{
	Use:   "batch DIR",
	Short: "Run every matching snippet under a directory",
	Long: `Walks DIR, runs each file matching --glob headlessly and reports the ones
that logged errors. The mode comes from --mode, or from the extension:
.js headless-js, .ts headless-ts, .jsx react, .tsx react-ts.`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	batchCmd.Flags().StringVarP(&batchGlob, "glob", "g", "**/*.{js,ts,jsx,tsx}", "files to run, relative to DIR")
	batchCmd.Flags().StringVarP(&batchMode, "mode", "m", "", "run every file in this mode")
	batchCmd.Flags().StringArrayVarP(&batchExclude, "exclude", "x", []string{"**/node_modules/**"}, "glob of files to skip")
	batchCmd.Flags().DurationVar(&batchSettle, "settle", 200*time.Millisecond, "time to let each file's timers run")
	rootCmd.AddCommand(batchCmd)
}

// modeByExtension picks the mode used when --mode is not set
var modeByExtension = map[string]mode.Mode{
	".js":  mode.HeadlessJS,
	".ts":  mode.HeadlessTS,
	".jsx": mode.React,
	".tsx": mode.ReactTS,
}

// collect lists files under root whose relative path matches glob and none
// of exclude, sorted
func collect(ctx context.Context, root, glob string, exclude []string) ([]string, error) {
	if !doublestar.ValidatePattern(glob) {
		return nil, fmt.Errorf("invalid glob %q", glob)
	}
	for _, pattern := range exclude {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid exclude glob %q", pattern)
		}
	}

	var (
		mu    sync.Mutex
		files []string
	)
	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, root, func(p string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err != nil || d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if ok, _ := doublestar.Match(glob, rel); !ok {
			return nil
		}
		for _, pattern := range exclude {
			if skip, _ := doublestar.Match(pattern, rel); skip {
				return nil
			}
		}
		mu.Lock()
		files = append(files, rel)
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}
	sort.Strings(files)
	return files, nil
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := cliLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	var forced mode.Mode
	if batchMode != "" {
		if forced, err = mode.Parse(batchMode); err != nil {
			return err
		}
	}

	root := args[0]
	files, err := collect(cmd.Context(), root, batchGlob, batchExclude)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(files) == 0 {
		fmt.Fprintln(out, "No files matched.")
		return nil
	}

	deps := workspace.Deps{
		Generator: template.New(),
		Factory: host.RuntimeFactory{
			Config: runtime.Config{
				ExecTimeout:   cfg.Sandbox.ExecTimeout.Duration,
				FrameInterval: cfg.Sandbox.FrameInterval.Duration,
				Snapshots:     true,
			},
			Logger: logger.Named("sandbox"),
		},
		Documents: host.NewDocumentStore(),
		Logger:    logger.Named("workspace"),
	}

	failed := 0
	for _, rel := range files {
		m := forced
		if m == "" {
			var ok bool
			if m, ok = modeByExtension[strings.ToLower(filepath.Ext(rel))]; !ok {
				fmt.Fprintf(out, "SKIP %s (no mode for extension)\n", rel)
				continue
			}
		}
		code, err := os.ReadFile(filepath.Join(root, rel))
		if err != nil {
			return fmt.Errorf("reading %s: %w", rel, err)
		}

		res, err := workspace.Execute(cmd.Context(), deps, workspace.Config{
			RequestTimeout: cfg.Sandbox.RequestTimeout.Duration,
			MaxLogEntries:  cfg.Sandbox.MaxLogEntries,
		}, workspace.Script{Mode: m, Code: string(code), Settle: batchSettle})
		if err != nil {
			return fmt.Errorf("running %s: %w", rel, err)
		}

		errs := 0
		for _, entry := range res.Logs {
			if entry.Kind == workspace.LogError {
				errs++
			}
		}
		if errs > 0 || res.Server.Faulted() {
			failed++
			fmt.Fprintf(out, "FAIL %s [%s] %d error(s)\n", rel, m, errs)
			for _, entry := range res.Logs {
				if entry.Kind == workspace.LogError {
					fmt.Fprintf(out, "     %s\n", entry.Text)
				}
			}
			continue
		}
		fmt.Fprintf(out, "ok   %s [%s] %d log(s)\n", rel, m, len(res.Logs))
	}

	fmt.Fprintf(out, "%d file(s), %d failed\n", len(files), failed)
	if failed > 0 {
		return fmt.Errorf("%d snippet(s) failed", failed)
	}
	return nil
}
