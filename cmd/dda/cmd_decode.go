package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"ddaharness/cmd/dda/ui"
	"ddaharness/internal/decoder"
	"ddaharness/internal/variants"
)

var decodeVariants []string

// decodeCmd decodes output files left by an earlier run
var decodeCmd = &cobra.Command{
	Use:   "decode [output-path]",
	Short: "Decode existing DDA output files",
	Long: `Looks up the variant files written next to the given -OUT_FN path and
prints their channel x window shapes. With --json the matrices are printed.

Example:
  dda decode /tmp/dda-runs/run1/run1 --variants ST,CD`,
	Args: cobra.ExactArgs(1),
	RunE: runDecode,
}

func init() {
	decodeCmd.Flags().StringSliceVar(&decodeVariants, "variants", []string{variants.Default}, "Variants to decode")
}

func runDecode(cmd *cobra.Command, args []string) error {
	results, err := decoder.Decode(args[0], decodeVariants)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if jsonOutput {
		return writeJSON(w, results)
	}

	table := ui.NewSimpleTable("Decoded "+args[0], []string{"Variant", "Rows", "Windows", "Source", "Warnings"})
	descriptors, _ := variants.Resolve(decodeVariants)
	for _, d := range descriptors {
		res := results[d.Abbreviation]
		table.AddRow(d.Abbreviation, strconv.Itoa(res.Rows()), strconv.Itoa(res.Cols()),
			res.SourcePath, strconv.Itoa(len(res.Warnings)))
	}
	fmt.Fprint(w, table.View(styles))
	for _, d := range descriptors {
		for _, warning := range results[d.Abbreviation].Warnings {
			fmt.Fprintln(w, styles.Warning.Render("warning: ")+warning)
		}
	}
	return nil
}
