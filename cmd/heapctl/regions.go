package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var (
	regionsWork   = defaultWorkload()
	regionsType   string
	regionsLookup []string
)

func init() {
	cmd := newRegionsCmd()
	addWorkloadFlags(cmd, &regionsWork)
	cmd.Flags().StringVar(&regionsType, "type", "", "Only list regions of this type (cons, string, vector-block, ...)")
	cmd.Flags().StringSliceVar(&regionsLookup, "lookup", nil, "Addresses to resolve against the region index (hex or decimal)")
	rootCmd.AddCommand(cmd)
}

func newRegionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "regions",
		Short: "List the heap region index after a workload",
		Long: `The regions command runs the synthetic workload and prints every range
in the region index with the kind of storage it holds.

Example:
  heapctl regions
  heapctl regions --type vectorlike
  heapctl regions --lookup 0x100000010 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRegions(regionsWork)
		},
	}
	return cmd
}

type regionRow struct {
	Start uint64 `json:"start"`
	End   uint64 `json:"end"`
	Size  uint64 `json:"size"`
	Type  string `json:"type"`
}

type lookupRow struct {
	Addr  uint64 `json:"addr"`
	Found bool   `json:"found"`
	Type  string `json:"type,omitempty"`
}

type regionsResult struct {
	Regions []regionRow    `json:"regions"`
	Counts  map[string]int `json:"counts"`
	Lookups []lookupRow    `json:"lookups,omitempty"`
}

func runRegions(w workload) error {
	h, err := newHeap()
	if err != nil {
		return err
	}
	defer h.Close()

	if _, err := runWorkload(h, w); err != nil {
		return err
	}

	result := regionsResult{Counts: make(map[string]int)}
	for _, r := range h.Regions() {
		result.Counts[r.Type]++
		if regionsType != "" && r.Type != regionsType {
			continue
		}
		result.Regions = append(result.Regions, regionRow{
			Start: r.Start,
			End:   r.End,
			Size:  r.End - r.Start,
			Type:  r.Type,
		})
	}
	for _, s := range regionsLookup {
		addr, err := strconv.ParseUint(s, 0, 64)
		if err != nil {
			return fmt.Errorf("invalid address %q: %w", s, err)
		}
		row := lookupRow{Addr: addr}
		if r, ok := h.RegionAt(addr); ok {
			row.Found = true
			row.Type = r.Type
		}
		result.Lookups = append(result.Lookups, row)
	}

	if jsonOut {
		return printJSON(result)
	}

	printInfo("%s\n", renderRegions(result))
	return nil
}
