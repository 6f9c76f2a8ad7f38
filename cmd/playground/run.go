package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/playground/internal/domain/starter"
	"github.com/GriffinCanCode/playground/internal/domain/workspace"
	"github.com/GriffinCanCode/playground/internal/sandbox/host"
	"github.com/GriffinCanCode/playground/internal/sandbox/mode"
	"github.com/GriffinCanCode/playground/internal/sandbox/runtime"
	"github.com/GriffinCanCode/playground/internal/sandbox/template"
)

var (
	runMode     string
	runFile     string
	runRequests []string
	runSettle   time.Duration
	runTimeout  time.Duration
	runJSON     bool
	runDOM      bool
	runXPath    string
)

var runCmd = &cobra.Command{
	Use:   "run [--mode MODE] [--file FILE | -]",
	Short: "Run code headlessly and print its output",
	Long: `Executes code in an isolated context of the given mode and prints the
log panel. Server modes accept --request "METHOD /path" (repeatable); each is
sent once the mock server is listening. Without --file the mode's starter
code runs; "-" reads from stdin.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runMode, "mode", "m", string(mode.DOM), "environment mode")
	runCmd.Flags().StringVarP(&runFile, "file", "f", "", "source file, - for stdin")
	runCmd.Flags().StringArrayVarP(&runRequests, "request", "r", nil, `mock server request, e.g. "GET /api/users"`)
	runCmd.Flags().DurationVar(&runSettle, "settle", 500*time.Millisecond, "time to let timers run after execution")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 30*time.Second, "overall deadline")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "print the result as JSON")
	runCmd.Flags().BoolVar(&runDOM, "dom", false, "print the final DOM snapshot")
	runCmd.Flags().StringVar(&runXPath, "xpath", "", "print the DOM nodes this XPath selects")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := cliLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	m, err := mode.Parse(runMode)
	if err != nil {
		return err
	}
	file := runFile
	if len(args) == 1 && file == "" {
		file = args[0]
	}
	code, err := readSource(cmd.InOrStdin(), file, m)
	if err != nil {
		return err
	}

	requests := make([]starter.Request, 0, len(runRequests))
	for _, line := range runRequests {
		req, err := starter.ParseRequest(line)
		if err != nil {
			return err
		}
		requests = append(requests, req)
	}
	if len(requests) == 0 && file == "" {
		if st, err := starter.For(m); err == nil {
			requests = st.SuggestedRequests()
		}
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), runTimeout)
	defer cancel()

	res, err := workspace.Execute(ctx, workspace.Deps{
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
	}, workspace.Config{
		RequestTimeout: cfg.Sandbox.RequestTimeout.Duration,
		MaxLogEntries:  cfg.Sandbox.MaxLogEntries,
	}, workspace.Script{
		Mode:     m,
		Code:     code,
		Requests: requests,
		Settle:   runSettle,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if runJSON {
		data, err := sonic.ConfigStd.MarshalIndent(res, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, string(data))
		return err
	}
	printResult(out, res)
	if runXPath != "" {
		matches, err := workspace.QueryDOM(res.DOM, runXPath)
		if err != nil {
			return err
		}
		for _, match := range matches {
			fmt.Fprintln(out, match.HTML)
		}
	}
	return nil
}

func readSource(stdin io.Reader, file string, m mode.Mode) (string, error) {
	switch file {
	case "":
		return starter.Code(m), nil
	case "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	default:
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("reading source: %w", err)
		}
		return string(data), nil
	}
}

func printResult(out io.Writer, res workspace.Result) {
	for _, entry := range res.Logs {
		fmt.Fprintf(out, "[%s] %s\n", entry.Kind, entry.Text)
	}
	if res.Server.Faulted() {
		fmt.Fprintf(out, "server faulted: %s\n", res.Server.LastError)
	}
	for _, ex := range res.Exchanges {
		fmt.Fprintf(out, "%s %s -> ", ex.Request.Method, ex.Request.Path)
		if ex.Response == nil {
			fmt.Fprintf(out, "error: %s\n", ex.Error)
			continue
		}
		body, err := sonic.MarshalString(ex.Response.Data)
		if err != nil {
			body = fmt.Sprint(ex.Response.Data)
		}
		fmt.Fprintf(out, "%d %s\n", ex.Response.Status, body)
	}
	if runDOM && res.DOM != "" {
		fmt.Fprintln(out, res.DOM)
	}
}
