package main

import (
	"fmt"
	"os"

	"github.com/distlab/maelstrom/internal/viewer"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve an HTTP viewer over a directory of test results",
	Run: func(cmd *cobra.Command, args []string) {
		logger := orFatal(newLogger(cmd.Flags()))
		flags := cmd.Flags()

		dir := orFatal(flags.GetString("results"))
		addr := orFatal(flags.GetString("addr"))

		v := viewer.New(viewer.Config{ResultsDir: dir})
		logger.Info("serving results viewer", "addr", addr, "results", dir)
		if err := v.ListenAndServe(addr); err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("results", ".", "directory containing test run result subdirectories")
	serveCmd.Flags().String("addr", ":8080", "address to serve the HTTP viewer on")
}
