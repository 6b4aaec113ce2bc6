package cmd

import (
	"fmt"

	"jeev/pkg/unit"
	"jeev/pkg/units"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
)

var unitsCmd = &cobra.Command{
	Use:   "units",
	Short: "List the compiled-in units",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args
		fmt.Fprintln(cmd.OutOrStdout(), catalogTable(units.Catalog()))
	},
}

func init() {
	rootCmd.AddCommand(unitsCmd)
}

func catalogTable(catalog *unit.Catalog) *table.Table {
	rows := make([][]string, 0)
	for _, name := range catalog.Names() {
		def, _ := catalog.Lookup(name)
		rows = append(rows, []string{def.Name, def.Author, def.Description})
	}

	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers("UNIT", "AUTHOR", "DESCRIPTION").
		Rows(rows...)
}
