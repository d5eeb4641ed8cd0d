package commands

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(postCmd)
}

var postCmd = &cobra.Command{
	Use:   "post <id>",
	Short: "Prints the magnet links of a single post, thanking the author first if needed.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		postUrl, err := mircrew.Service.PostUrl(args[0])
		if err != nil {
			return err
		}
		magnets, err := mircrew.Service.GetMagnets(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		fmt.Println(postUrl)
		t := newTable()
		t.AppendHeader(table.Row{"Title", "Magnet"})
		for _, m := range magnets {
			t.AppendRow(table.Row{m.Title, m.Url})
		}
		t.Render()
		return nil
	},
}
