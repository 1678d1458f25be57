package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/joshuapare/heapkit/heap"
	"github.com/joshuapare/heapkit/internal/logger"
	"github.com/joshuapare/heapkit/internal/sysmem"
)

var (
	// Global flags
	verbose bool
	quiet   bool
	jsonOut bool
	noColor bool

	// Heap tuning
	consThreshold  int64
	consPercentage float64
	pureSize       int
	memLimit       int64
	checkRefs      bool
)

var rootCmd = &cobra.Command{
	Use:   "heapctl",
	Short: "Exercise and inspect the heapkit garbage collector",
	Long: `heapctl drives a heapkit heap through synthetic interpreter workloads
and reports what the collector did: per-kind statistics, the region index,
finalizer activity and heap-wide invariant checks.`,
	Version: "0.1.0",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose && !quiet {
			return logger.Init(logger.Options{Enabled: true, Level: slog.LevelDebug})
		}
		return nil
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output and GC debug logging")
	rootCmd.PersistentFlags().
		BoolVarP(&quiet, "quiet", "q", false, "Suppress all output except errors")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	rootCmd.PersistentFlags().Int64Var(&consThreshold, "cons-threshold", heap.DefaultConsThreshold,
		"Bytes allocated between automatic collections")
	rootCmd.PersistentFlags().Float64Var(&consPercentage, "cons-percentage", heap.DefaultConsPercentage,
		"Fraction of the live heap allocated between automatic collections")
	rootCmd.PersistentFlags().IntVar(&pureSize, "pure-size", heap.DefaultPureSize, "Size of the pure arena in bytes")
	rootCmd.PersistentFlags().Int64Var(&memLimit, "limit", 0, "Cap on system memory drawn by the heap (0 = unlimited)")
	rootCmd.PersistentFlags().BoolVar(&checkRefs, "check-refs", false, "Validate every traced reference against the region index")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newHeap builds a heap from the global flags.
func newHeap() (*heap.Heap, error) {
	opts := heap.DefaultOptions()
	opts.ConsThreshold = consThreshold
	opts.ConsPercentage = consPercentage
	opts.PureSize = pureSize
	opts.CheckReferences = checkRefs
	if memLimit > 0 {
		opts.Allocator = sysmem.NewLimited(nil, memLimit)
	}
	h, err := heap.New(&opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create heap: %w", err)
	}
	// Zero is a valid setting here, not "use the default".
	if err := h.SetConsThreshold(consThreshold); err != nil {
		_ = h.Close()
		return nil, err
	}
	h.SetConsPercentage(consPercentage)
	return h, nil
}

// Helper functions for output

// printInfo prints an info message if not in quiet mode
func printInfo(format string, args ...interface{}) {
	if !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

// printError prints an error message
func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format, args...)
}

// printVerbose prints a verbose message if verbose mode is enabled
func printVerbose(format string, args ...interface{}) {
	if verbose && !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

// printJSON outputs data as JSON
func printJSON(v interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
