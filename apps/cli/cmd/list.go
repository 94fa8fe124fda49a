package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/abdul-hamid-achik/hitcall/packages/core/descriptor"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the requests in a descriptor",
	Long: `List the requests defined in a descriptor with the index and tag
used to select them.

Examples:
  hitcall list --file api.json`,
	Args: cobra.NoArgs,
	RunE: listCommand,
}

func init() {
	addFileFlag(listCmd)
}

func listCommand(cmd *cobra.Command, args []string) error {
	d, err := descriptor.Load(fileFlag)
	if err != nil {
		return withExitCode(ExitParseError, err)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "INDEX\tTAG\tMETHOD\tENDPOINT\tTITLE")
	for i, e := range d.Requests {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", i, e.Tag, e.Method, e.Endpoint+e.Params, e.Title)
	}
	return w.Flush()
}
