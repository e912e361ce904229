package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"ddaharness/cmd/dda/ui"
	"ddaharness/internal/edf"
	"ddaharness/internal/variants"
)

// variantsCmd lists the variant catalogue
var variantsCmd = &cobra.Command{
	Use:   "variants",
	Short: "List the DDA variants, their mask slots and output suffixes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w := cmd.OutOrStdout()
		if jsonOutput {
			return writeJSON(w, variants.All())
		}
		table := ui.NewSimpleTable("DDA variants", []string{"ID", "Name", "Bit", "Suffix", "Stride", "Pairs"})
		for _, d := range variants.All() {
			pairs := ""
			if d.NeedsAuxiliary {
				pairs = "yes"
			}
			table.AddRow(d.Abbreviation, d.Name, strconv.Itoa(d.Bit), "_"+d.Suffix, strconv.Itoa(d.Stride), pairs)
		}
		fmt.Fprint(w, table.View(styles))
		fmt.Fprintln(w, styles.Muted.Render(fmt.Sprintf("%d slots; slot %d is reserved", variants.MaskWidth, variants.ReservedBit)))
		return nil
	},
}

// maskCmd converts between variant sets and SELECT masks
var maskCmd = &cobra.Command{
	Use:   "mask",
	Short: "Encode or decode SELECT masks",
}

var maskEncodeCmd = &cobra.Command{
	Use:   "encode [variant...]",
	Short: "Print the SELECT mask for a set of variants",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mask, err := variants.EncodeMask(splitList(args))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), mask.String())
		return nil
	},
}

var maskDecodeCmd = &cobra.Command{
	Use:   "decode [mask]",
	Short: `Print the variants enabled by a mask such as "1 0 1 0 0 0"`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mask, err := variants.ParseMask(strings.Join(args, " "))
		if err != nil {
			return err
		}
		ids, err := variants.DecodeMask(mask)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), strings.Join(ids, " "))
		return nil
	},
}

// edfCmd prints an EDF header
var edfCmd = &cobra.Command{
	Use:   "edf [file]",
	Short: "Show an EDF file's header and channels",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		header, err := edf.ReadHeader(args[0])
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if jsonOutput {
			return writeJSON(w, header)
		}

		fmt.Fprintln(w, styles.Title.Render(args[0]))
		fmt.Fprintf(w, "patient:   %s\nrecording: %s\nstart:     %s %s\nduration:  %gs (%d records x %gs)\n\n",
			header.PatientID, header.RecordingID, header.StartDate, header.StartTime,
			header.Duration(), header.NumRecords, header.RecordDuration)

		table := ui.NewSimpleTable("Channels", []string{"#", "Label", "Rate (Hz)", "Samples", "Unit"})
		for i, s := range header.Signals {
			rate := "?"
			if r, err := header.SampleRate(i); err == nil {
				rate = strconv.FormatFloat(r, 'g', -1, 64)
			}
			table.AddRow(strconv.Itoa(i), s.Label, rate, strconv.FormatInt(header.TotalSamples(i), 10), s.PhysicalDimension)
		}
		fmt.Fprint(w, table.View(styles))
		return nil
	},
}

func init() {
	maskCmd.AddCommand(maskEncodeCmd)
	maskCmd.AddCommand(maskDecodeCmd)
}

// splitList accepts both "ST DE" and "ST,DE".
func splitList(args []string) []string {
	var out []string
	for _, a := range args {
		for _, part := range strings.Split(a, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
