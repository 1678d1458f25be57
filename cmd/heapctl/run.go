package main

import (
	"github.com/spf13/cobra"
)

var runWork = defaultWorkload()

func init() {
	cmd := newRunCmd()
	addWorkloadFlags(cmd, &runWork)
	rootCmd.AddCommand(cmd)
}

func addWorkloadFlags(cmd *cobra.Command, w *workload) {
	cmd.Flags().IntVar(&w.Lists, "lists", w.Lists, "Number of lists to allocate")
	cmd.Flags().IntVar(&w.ListLen, "list-len", w.ListLen, "Length of each list")
	cmd.Flags().IntVar(&w.Strings, "strings", w.Strings, "Number of strings to allocate")
	cmd.Flags().IntVar(&w.Vectors, "vectors", w.Vectors, "Number of small vectors to allocate")
	cmd.Flags().IntVar(&w.Large, "large", w.Large, "Number of large vectors to allocate")
	cmd.Flags().IntVar(&w.Finalizers, "finalizers", w.Finalizers, "Number of finalized objects to allocate")
	cmd.Flags().IntVar(&w.Constants, "constants", w.Constants, "Number of constants to copy into the pure arena")
	cmd.Flags().IntVar(&w.Keep, "keep", w.Keep, "Keep every Nth object reachable")
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a synthetic workload and report collector statistics",
		Long: `The run command allocates lists, strings, vectors, finalized objects
and pure constants, keeping a fraction of them reachable, then forces a
final collection and prints the heap statistics.

Example:
  heapctl run
  heapctl run --lists 10000 --keep 3
  heapctl run --cons-threshold 4096 --json
  heapctl run --limit 1048576`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(runWork)
		},
	}
	return cmd
}

func runRun(w workload) error {
	h, err := newHeap()
	if err != nil {
		return err
	}
	defer h.Close()

	res, err := runWorkload(h, w)
	if err != nil {
		return err
	}

	if jsonOut {
		return printJSON(res)
	}

	printInfo("%s\n", renderResult(res))
	return nil
}
