package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/playground/internal/domain/starter"
	"github.com/GriffinCanCode/playground/internal/sandbox/mode"
)

var modesCmd = &cobra.Command{
	Use:   "modes",
	Short: "List the supported environment modes",
	RunE:  runModes,
}

var starterCmd = &cobra.Command{
	Use:   "starter MODE",
	Short: "Print the starter code of a mode",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := mode.Parse(args[0])
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), starter.Code(m))
		return err
	},
}

func init() {
	rootCmd.AddCommand(modesCmd, starterCmd)
}

func runModes(cmd *cobra.Command, args []string) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MODE\tKIND\tLANGUAGE\tCAPABILITIES")
	for _, spec := range mode.All() {
		names := make([]string, 0, len(spec.Capabilities))
		for _, c := range spec.Capabilities {
			names = append(names, c.Name)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", spec.Mode, spec.Kind, spec.Language, strings.Join(names, ","))
	}
	return tw.Flush()
}
