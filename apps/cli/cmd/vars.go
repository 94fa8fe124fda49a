package cmd

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/abdul-hamid-achik/hitcall/packages/core/descriptor"
	"github.com/spf13/cobra"
)

var showValuesFlag bool

var varsCmd = &cobra.Command{
	Use:   "vars",
	Short: "List saved variables in the descriptor's variable_dir",
	Long: `List the variable files available for {{NAME}} placeholders.
Values are hidden unless --show is given.

Examples:
  hitcall vars --file api.json
  hitcall vars --file api.json --show`,
	Args: cobra.NoArgs,
	RunE: varsCommand,
}

func init() {
	addFileFlag(varsCmd)
	varsCmd.Flags().BoolVar(&showValuesFlag, "show", false, "Print variable values")
}

func varsCommand(cmd *cobra.Command, args []string) error {
	d, err := descriptor.Load(fileFlag)
	if err != nil {
		return withExitCode(ExitParseError, err)
	}
	if d.VariableDir == "" {
		return withExitCode(ExitFailure, fmt.Errorf("%s has no variable_dir", fileFlag))
	}

	files, err := newStore().ReadDir(d.Resolve(d.VariableDir))
	if err != nil {
		return withExitCode(ExitFailure, err)
	}

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	for _, name := range names {
		value := strings.TrimRight(files[name], " \t\r\n")
		if showValuesFlag {
			fmt.Fprintf(w, "%s\t%s\n", name, value)
		} else {
			fmt.Fprintf(w, "%s\t%d bytes\n", name, len(value))
		}
	}
	return w.Flush()
}
