package cmd

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search [file] [pattern]",
	Short: "Search the image for a wildcard byte pattern",
	Long: `Search scans the raw bytes for a fixed-length pattern of
whitespace-separated hex bytes, where ?? matches any single byte.`,
	Example: `
# Find classic 32-bit prologues ending in ret
zre search /path/to/binary "55 8B ?? C3"
  `,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine(cmd, args[0])
		if err != nil {
			return err
		}
		matches, err := e.SearchBytes(args[1])
		if err != nil {
			return err
		}
		if len(matches) == 0 {
			fmt.Println("no matches")
			return nil
		}
		for _, m := range matches {
			fmt.Printf("0x%-12x off=0x%-8x %s\n", m.Addr, m.Off, hex.EncodeToString(m.Bytes))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(searchCmd)
}
