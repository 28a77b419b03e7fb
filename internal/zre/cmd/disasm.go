package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wrharper/ZizzysReverseEngineering-sub000/internal/engine"
	"github.com/wrharper/ZizzysReverseEngineering-sub000/internal/ui/colorize"
)

// formatInst renders one listing line: address, instruction text, then
// accumulated comments (symbolized target, user note, patch marker).
func formatInst(e *engine.Engine, in *engine.Instruction) string {
	var comments []string
	if in.HasTarget {
		if name := e.SymbolName(in.Target); name != "" {
			comments = append(comments, name)
		}
	}
	if in.HasMemTarget {
		if name := e.SymbolName(in.MemTarget); name != "" {
			comments = append(comments, name)
		}
	}
	if in.Note != "" {
		comments = append(comments, in.Note)
	}
	if in.Patched {
		comments = append(comments, "patched")
	}

	base := fmt.Sprintf("%-10x %-40s", in.Addr, in.Text)
	if len(comments) > 0 {
		return fmt.Sprintf("%s ; %s", base, strings.Join(comments, ", "))
	}
	return base
}

var disasmCmd = &cobra.Command{
	Use:   "disasm [file]",
	Short: "Print an annotated disassembly listing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine(cmd, args[0])
		if err != nil {
			return err
		}

		insts := e.Index().Instructions()
		start := 0
		if s, _ := cmd.Flags().GetString("at"); s != "" {
			addr, err := parseAddr(s)
			if err != nil {
				return err
			}
			in, ok := e.InstructionAt(addr)
			if !ok {
				return fmt.Errorf("no instruction at %#x", addr)
			}
			for start = 0; start < len(insts); start++ {
				if insts[start].Addr == in.Addr {
					break
				}
			}
		}
		count, _ := cmd.Flags().GetInt("count")
		if count <= 0 || start+count > len(insts) {
			count = len(insts) - start
		}

		for i := start; i < start+count; i++ {
			in := &insts[i]
			switch {
			case in.Symbol != "":
				fmt.Println(colorize.InstructionLine(fmt.Sprintf("%x  %s:", in.Addr, in.Symbol)))
			case in.Block == in.Addr && in.Func != in.Addr && in.Func != 0:
				// Unnamed block leader inside a function.
				fmt.Println(colorize.InstructionLine(fmt.Sprintf("%x  loc_%x:", in.Addr, in.Addr)))
			}
			fmt.Println(colorize.InstructionLine(formatInst(e, in)))
		}
		return nil
	},
}

func init() {
	disasmCmd.Flags().String("at", "", "Start address (default: beginning of code)")
	disasmCmd.Flags().IntP("count", "n", 0, "Number of instructions (default: all)")
	rootCmd.AddCommand(disasmCmd)
}
