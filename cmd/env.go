package cmd

import (
	"fmt"

	"jeev/pkg/config"
	"jeev/pkg/option"
	"jeev/pkg/units"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
)

var envCmd = &cobra.Command{
	Use:   "env <unit>",
	Short: "Show a unit's options and their environment variables",
	Long: `Lists every option the unit declares, the environment variable that can
supply it, and where the current value comes from. Problems that would stop
the unit from loading are listed below the table.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		name := args[0]
		entry, _ := cfg.Units.Lookup(name)
		env := config.OSEnviron()

		set, err := units.Catalog().Inspect(name, entry.Options, env)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		rows := optionRows(set, entry.Options, env)
		if len(rows) == 0 {
			fmt.Fprintf(out, "unit %s declares no options\n", name)
			return nil
		}

		fmt.Fprintln(out, table.New().
			Border(lipgloss.NormalBorder()).
			Headers("OPTION", "ENV", "SOURCE", "DEFAULT", "DESCRIPTION").
			Rows(rows...))

		if problems := option.Describe(set, set.Validate()); len(problems) > 0 {
			fmt.Fprintln(out, "problems:")
			for _, line := range problems {
				fmt.Fprintln(out, "  "+line)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(envCmd)
}

// optionRows describes each declared option in declaration order.
func optionRows(set *option.Set, raw map[string]any, env config.Environ) [][]string {
	rows := make([][]string, 0, len(set.Names()))
	for _, name := range set.Names() {
		opt, _ := set.Opt(name)

		_, source := config.Resolve(set.Unit(), name, raw, env)
		sourceText := source.String()
		if source == config.SourceNone {
			sourceText = "missing"
			if opt.HasDefault {
				sourceText = "default"
			}
		}

		defaultText := ""
		if opt.HasDefault {
			defaultText = fmt.Sprint(opt.Default)
		}

		rows = append(rows, []string{name, set.EnvKey(name), sourceText, defaultText, opt.Description})
	}
	return rows
}
