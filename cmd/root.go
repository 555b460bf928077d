package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "catalog",
	Short: "multi-tenant product and content catalog tool",
	Example: `catalog db migrate
catalog products list -o <owner-id> --active exclusive --order name --page 1 --page-size 20
catalog products resolve -o <owner-id> -i <product-id>
catalog content active -o <owner-id>
catalog orphans list
catalog orphans reclaim --schedule "@every 1h"`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(productsCmd)
	rootCmd.AddCommand(contentCmd)
	rootCmd.AddCommand(orphansCmd)
	rootCmd.SetHelpCommand(&cobra.Command{Use: "no-help", Hidden: true})

	rootCmd.CompletionOptions.HiddenDefaultCmd = true
	cobra.EnableCommandSorting = false
}
