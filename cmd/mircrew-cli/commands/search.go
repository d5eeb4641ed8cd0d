package commands

import (
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(magnetsCmd)
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Lists the posts matching a query that carry a quality marker.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		posts, err := mircrew.Service.SearchPosts(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return err
		}

		t := newTable()
		t.AppendHeader(table.Row{"Id", "Title", "Url"})
		for _, p := range posts {
			t.AppendRow(table.Row{p.Id, p.Title, p.Url})
		}
		t.AppendFooter(table.Row{"", "Total", len(posts)})
		t.Render()
		return nil
	},
}

var magnetsCmd = &cobra.Command{
	Use:   "magnets <query>",
	Short: "Searches posts and prints every magnet link found in them.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		magnets, err := mircrew.Service.Search(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return err
		}

		t := newTable()
		t.AppendHeader(table.Row{"Title", "Magnet"})
		for _, m := range magnets {
			t.AppendRow(table.Row{m.Title, m.Url})
		}
		t.AppendFooter(table.Row{"Total", len(magnets)})
		t.Render()
		return nil
	},
}
