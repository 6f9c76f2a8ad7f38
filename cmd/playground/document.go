package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/playground/internal/sandbox/mode"
	"github.com/GriffinCanCode/playground/internal/sandbox/template"
)

var (
	docPlaceholder bool
	docAssetBase   string
	docOutput      string
)

var documentCmd = &cobra.Command{
	Use:   "document MODE",
	Short: "Render the sandbox document of a mode",
	Long:  `Writes the self-contained HTML document an isolated context of MODE loads.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runDocument,
}

func init() {
	documentCmd.Flags().BoolVar(&docPlaceholder, "placeholder", false, "show the headless placeholder text")
	documentCmd.Flags().StringVar(&docAssetBase, "asset-base", "", "load proxyable capabilities from this base URL")
	documentCmd.Flags().StringVarP(&docOutput, "output", "o", "", "write to a file instead of stdout")
	rootCmd.AddCommand(documentCmd)
}

func runDocument(cmd *cobra.Command, args []string) error {
	m, err := mode.Parse(args[0])
	if err != nil {
		return err
	}

	var opts []template.Option
	if docAssetBase != "" {
		opts = append(opts, template.WithAssetBase(docAssetBase))
	}
	html, err := template.New(opts...).Generate(m, docPlaceholder)
	if err != nil {
		return fmt.Errorf("generating document: %w", err)
	}

	if docOutput == "" {
		_, err = fmt.Fprint(cmd.OutOrStdout(), html)
		return err
	}
	if err := os.WriteFile(docOutput, []byte(html), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", docOutput, err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s document to %s\n", m, docOutput)
	return nil
}
