package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(statusCmd)
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Logs in (or verifies the stored session) and persists the session.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		before := mircrew.Client.Status()
		err := mircrew.Client.Login(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("%s -> %s\n", before, mircrew.Client.Status())
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Prints the session state restored from disk without contacting the forum.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(mircrew.Client.Status())
	},
}
