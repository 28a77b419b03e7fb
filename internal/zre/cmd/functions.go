package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var functionsCmd = &cobra.Command{
	Use:   "functions [file]",
	Short: "List discovered functions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine(cmd, args[0])
		if err != nil {
			return err
		}

		if s, _ := cmd.Flags().GetString("cfg"); s != "" {
			addr, err := parseAddr(s)
			if err != nil {
				return err
			}
			f, ok := e.Functions().At(addr)
			if !ok {
				return fmt.Errorf("no function at %#x", addr)
			}
			name := e.SymbolName(f.Addr)
			fmt.Printf("%s (0x%x): %d blocks, %d instructions\n", name, f.Addr, f.Blocks, f.Insts)
			for _, start := range f.CFG.SortedStarts() {
				b := f.CFG.Blocks[start]
				fmt.Printf("  block [0x%x, 0x%x)", b.Start, b.End)
				for _, s := range b.Succs {
					fmt.Printf(" -> 0x%x", s)
				}
				fmt.Println()
			}
			return nil
		}

		for _, f := range e.Functions().All() {
			fmt.Printf("0x%-12x %-12s blocks=%-4d insts=%-5d %s\n",
				f.Addr, f.Source, f.Blocks, f.Insts, e.SymbolName(f.Addr))
		}
		return nil
	},
}

func init() {
	functionsCmd.Flags().String("cfg", "", "Print the CFG of the function at this address")
	rootCmd.AddCommand(functionsCmd)
}
