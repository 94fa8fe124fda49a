package cmd

import (
	"errors"
	"fmt"

	"github.com/abdul-hamid-achik/hitcall/packages/core/descriptor"
	"github.com/abdul-hamid-achik/hitcall/packages/core/env"
	"github.com/abdul-hamid-achik/hitcall/packages/core/runner"
	"github.com/abdul-hamid-achik/hitcall/packages/store"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a descriptor without sending requests",
	Long: `Validate a descriptor without sending any request. Body files are
checked for valid JSON, and every {{NAME}} placeholder must have a variable
file in the descriptor's variable_dir.

Examples:
  hitcall validate --file api.json`,
	Args: cobra.NoArgs,
	RunE: validateCommand,
}

func init() {
	addFileFlag(validateCmd)
}

func validateCommand(cmd *cobra.Command, args []string) error {
	d, err := descriptor.Load(fileFlag)
	if err != nil {
		var vErr *descriptor.ValidationError
		if errors.As(err, &vErr) {
			for _, p := range vErr.Problems {
				fmt.Fprintf(cmd.ErrOrStderr(), "Error in %s: %s\n", fileFlag, p)
			}
			return reported(ExitParseError, err)
		}
		return withExitCode(ExitParseError, err)
	}

	problems := checkEntries(d, newStore())
	for _, p := range problems {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error in %s: %s\n", fileFlag, p)
	}
	if len(problems) > 0 {
		return reported(ExitFailure, fmt.Errorf("validation failed"))
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Valid: %s (%d requests)\n", fileFlag, len(d.Requests))
	return nil
}

// checkEntries reports unreadable body files and placeholders without a
// variable file.
func checkEntries(d *descriptor.Descriptor, s *store.Store) []string {
	var problems []string
	for _, e := range d.Requests {
		if e.Body == nil || !e.Method.HasBody() {
			continue
		}

		path := d.Resolve(e.Body.File)
		content, err := s.Read(path)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: body file: %v", e.Tag, err))
			continue
		}
		body := []byte(content)
		if !gjson.ValidBytes(body) {
			problems = append(problems, fmt.Sprintf("%s: %v: %s", e.Tag, runner.ErrInvalidBody, path))
			continue
		}

		// Substitute leaves bodies that are not objects untouched.
		if !runner.CapabilitiesOf(d, e).Placeholders || !gjson.ParseBytes(body).IsObject() {
			continue
		}
		resolver := env.NewResolver(s, d.Resolve(d.VariableDir))
		for _, name := range env.Placeholders(body) {
			varPath, err := resolver.VariablePath(name)
			if err != nil {
				problems = append(problems, fmt.Sprintf("%s: {{%s}}: %v", e.Tag, name, err))
				continue
			}
			if _, err := s.Read(varPath); err != nil {
				problems = append(problems, fmt.Sprintf("%s: {{%s}}: missing variable file %s", e.Tag, name, s.Expand(varPath)))
			}
		}
	}
	return problems
}
