package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

const version = "1.0.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  `Display the current version of the niftybot CLI.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("niftybot version %s\n", version)
		fmt.Println("A unit-allocated NIFTY options paper-trading bot")
		fmt.Println("https://github.com/kppillai/niftybot")
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
