package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/distlab/maelstrom/internal/workload"
	"github.com/spf13/cobra"
)

var docCmd = &cobra.Command{
	Use:   "doc",
	Short: "Print the registered workload reference",
	Run: func(cmd *cobra.Command, args []string) {
		names := workload.Names()
		sort.Strings(names)

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tINITIAL STATE")
		for _, name := range names {
			w, _ := workload.Lookup(name)
			fmt.Fprintf(tw, "%s\t%v\n", w.Name, w.InitState != nil)
		}
		tw.Flush()

		fmt.Println()
		fmt.Println("The workload catalog (echo, broadcast, g-set, pn-counter, lin-kv,")
		fmt.Println("txn-list-append, ...) is a separate library; this binary only ships the")
		fmt.Println("workloads registered above. See spec.md §1.")
	},
}

func init() {
	rootCmd.AddCommand(docCmd)
}
