package cmd

import (
	"fmt"
	"os"

	"github.com/cbergmann/permafrost/cmd/kv"
	"github.com/cbergmann/permafrost/cmd/serve"
	"github.com/cbergmann/permafrost/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.1"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "permafrost",
		Short: "disk-backed spillover key-value store",
		Long: fmt.Sprintf(`permafrost (v%s)

A key-value server whose working set may exceed RAM: hot keys live in
memory, a persistent on-disk freezer tier holds the rest. Dirty keys
are flushed to the freezer in the background.`, Version),
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of permafrost",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("permafrost v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(kv.KeyValueCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "serializer"
	RootCmd.PersistentFlags().String(key, "json", util.WrapString("serializer to use (json, gob, binary)"))
	key = "transport"
	RootCmd.PersistentFlags().String(key, "tcp", util.WrapString("transport to use (http, tcp, unix)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
