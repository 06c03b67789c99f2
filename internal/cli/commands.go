package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harun/tradebrain/pkg/command"
	"github.com/harun/tradebrain/pkg/prompt"
)

var commandsCmd = &cobra.Command{
	Use:   "commands [name]",
	Short: "List the command vocabulary",
	Long: `List every command the agent accepts from the model, grouped by
category. Optional parameters are marked with a trailing "?".

With a name, show the parameters of that command. Aliases resolve to
their canonical command.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCommands,
}

func init() {
	rootCmd.AddCommand(commandsCmd)
}

func runCommands(cmd *cobra.Command, args []string) error {
	registry, err := command.NewRegistry()
	if err != nil {
		return fmt.Errorf("failed to build command registry: %w", err)
	}
	if len(args) == 0 {
		fmt.Fprint(cmd.OutOrStdout(), prompt.Vocabulary(registry.Specs()))
		return nil
	}

	name := command.Name(command.Normalize(command.Raw{Name: args[0]}).Name)
	spec, ok := registry.Lookup(name)
	if !ok {
		return fmt.Errorf("unknown command %q", args[0])
	}
	printSpec(cmd, spec)
	return nil
}

func printSpec(cmd *cobra.Command, spec command.Spec) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s (%s): %s\n", spec.Name, spec.Category, spec.Description)
	if len(spec.Params) == 0 {
		fmt.Fprintln(out, "  no parameters")
		return
	}
	for _, p := range spec.Params {
		required := "optional"
		if p.Required {
			required = "required"
		}
		fmt.Fprintf(out, "  %-12s %-16s %-8s %s\n", p.Name, strings.Join(p.Types, "|"), required, p.Description)
	}
}
