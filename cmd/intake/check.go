package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/gabrielmiguelok/liveintake/pkg/wizard"
)

var checkFormCmd = &cobra.Command{
	Use:   "check-form [file]",
	Short: "Validate a form definition and print its layout",
	Long: `Validate a form definition and print its steps.

Without a file the built-in project intake form is checked.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCheckForm,
}

func runCheckForm(cmd *cobra.Command, args []string) error {
	def := wizard.DefaultDefinition()
	if len(args) == 1 {
		var err error
		if def, err = wizard.LoadDefinition(args[0]); err != nil {
			return err
		}
	}
	printDefinition(cmd.OutOrStdout(), def)
	return nil
}

func printDefinition(w io.Writer, def *wizard.Definition) {
	fmt.Fprintf(w, "%s (%d steps, storage key %q)\n", def.Title, def.TotalSteps(), def.StorageKey)
	for i, step := range def.Steps {
		required := 0
		for _, f := range step.Fields {
			if f.Required {
				required++
			}
		}
		fmt.Fprintf(w, "  %d. %-20s %2d fields, %d required", i+1, step.Title, len(step.Fields), required)
		if step.Repeatable != nil {
			fmt.Fprintf(w, ", repeatable %s[]", step.Repeatable.Name)
		}
		if step.RequireChoice != nil {
			fmt.Fprintf(w, ", requires a %s choice", step.RequireChoice.Field)
		}
		fmt.Fprintln(w)
	}
	for _, r := range def.Reveals {
		fmt.Fprintf(w, "  reveal %s when %s=%s\n", r.Show, r.When, r.Value)
	}
}
