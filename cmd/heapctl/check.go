package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joshuapare/heapkit/heap"
)

var (
	checkWork   = defaultWorkload()
	checkRounds int
)

func init() {
	cmd := newCheckCmd()
	addWorkloadFlags(cmd, &checkWork)
	cmd.Flags().IntVar(&checkRounds, "rounds", 3, "Number of workload rounds to verify after")
	rootCmd.AddCommand(cmd)
}

func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run workloads and verify heap invariants after each",
		Long: `The check command repeats the synthetic workload on one heap and runs
the heap-wide invariant check after every round: region index balance and
coverage, free lists, mark bits, string payload back pointers and the
finalizer lists.

Example:
  heapctl check
  heapctl check --rounds 10 --check-refs`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(checkWork, checkRounds)
		},
	}
	return cmd
}

type checkResult struct {
	Rounds int    `json:"rounds"`
	Valid  bool   `json:"valid"`
	Error  string `json:"error,omitempty"`
	Type   string `json:"type,omitempty"`
	Addr   uint64 `json:"addr,omitempty"`
}

func runCheck(w workload, rounds int) error {
	h, err := newHeap()
	if err != nil {
		return err
	}
	defer h.Close()

	result := checkResult{Valid: true}
	for i := 0; i < rounds; i++ {
		printVerbose("Round %d\n", i+1)
		if _, err := runWorkload(h, w); err != nil {
			return err
		}
		result.Rounds++
		if err := h.Verify(); err != nil {
			result.Valid = false
			result.Error = err.Error()
			var ve *heap.ValidationError
			if errors.As(err, &ve) {
				result.Type = ve.Type
				result.Addr = ve.Addr
			}
			break
		}
	}

	if jsonOut {
		if err := printJSON(result); err != nil {
			return err
		}
	} else if result.Valid {
		printInfo("Heap is valid after %d round(s)\n", result.Rounds)
	} else {
		printError("%s\n", result.Error)
	}

	if !result.Valid {
		return fmt.Errorf("heap verification failed after round %d", result.Rounds)
	}
	return nil
}
