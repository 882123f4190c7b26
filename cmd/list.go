package cmd

import (
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tunnels to an IoT thing",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var (
	listThing string
	listOpen  bool
)

func init() {
	listCmd.Flags().StringVarP(&listThing, "thing", "i", "", "IoT thing name")
	listCmd.Flags().BoolVar(&listOpen, "open", false, "Only show open tunnels")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	if err := requireThing(listThing); err != nil {
		return err
	}
	return printTunnels(cmd.Context(), cmd.OutOrStdout(), getApp(), listThing, listOpen)
}
