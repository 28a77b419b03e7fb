package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// parseHexBytes turns "90 90" or "9090" into raw bytes.
func parseHexBytes(s string) ([]byte, error) {
	fields := strings.Fields(s)
	if len(fields) == 1 && len(fields[0])%2 == 0 && len(fields[0]) > 2 {
		f := fields[0]
		fields = nil
		for i := 0; i < len(f); i += 2 {
			fields = append(fields, f[i:i+2])
		}
	}
	out := make([]byte, 0, len(fields))
	for _, f := range fields {
		var b byte
		if len(f) != 2 {
			return nil, fmt.Errorf("bad hex byte %q", f)
		}
		if _, err := fmt.Sscanf(f, "%02x", &b); err != nil {
			return nil, fmt.Errorf("bad hex byte %q", f)
		}
		out = append(out, b)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty patch bytes")
	}
	return out, nil
}

var patchCmd = &cobra.Command{
	Use:   "patch [file]",
	Short: "Apply a byte patch and report the re-decode it triggered",
	Example: `
# Overwrite two bytes at file offset 0x1234 with NOPs
zre patch ./a.out --off 0x1234 --bytes "90 90" --out patched.bin
  `,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		offStr, _ := cmd.Flags().GetString("off")
		off, err := parseAddr(offStr)
		if err != nil {
			return err
		}
		bytesStr, _ := cmd.Flags().GetString("bytes")
		b, err := parseHexBytes(bytesStr)
		if err != nil {
			return err
		}

		e, err := openEngine(cmd, args[0])
		if err != nil {
			return err
		}
		desc, _ := cmd.Flags().GetString("desc")
		res, err := e.ApplyPatch(off, b, desc)
		if err != nil {
			return err
		}

		fmt.Printf("patched [0x%x, 0x%x), re-decoded %d instruction(s) from 0x%x\n",
			res.Written.Start, res.Written.End, res.Redecode.Decoded, res.Redecode.From)
		if res.FullReanalysisRecommended() {
			fmt.Println("note: re-decode ran to end of section; full re-analysis recommended")
		}
		if _, err := e.Analyze(cmd.Context()); err != nil {
			return err
		}

		for _, r := range e.Store().ModifiedRanges() {
			fmt.Printf("modified: [0x%x, 0x%x)\n", r.Start, r.End)
		}

		if out, _ := cmd.Flags().GetString("out"); out != "" {
			if err := os.WriteFile(out, e.Store().Bytes(), 0o644); err != nil {
				return fmt.Errorf("write patched image: %w", err)
			}
			fmt.Printf("wrote %s\n", out)
		}
		return nil
	},
}

func init() {
	patchCmd.Flags().String("off", "", "File offset to patch (required)")
	patchCmd.Flags().String("bytes", "", "Replacement bytes as hex (required)")
	patchCmd.Flags().String("desc", "", "Description recorded in the undo history")
	patchCmd.Flags().String("out", "", "Write the patched image to this path")
	_ = patchCmd.MarkFlagRequired("off")
	_ = patchCmd.MarkFlagRequired("bytes")
	rootCmd.AddCommand(patchCmd)
}
