package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var symbolsCmd = &cobra.Command{
	Use:   "symbols [file]",
	Short: "List resolved symbols",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine(cmd, args[0])
		if err != nil {
			return err
		}

		if name, _ := cmd.Flags().GetString("name"); name != "" {
			addrs := e.Symbols().AddrsOf(name)
			if len(addrs) == 0 {
				return fmt.Errorf("no symbol named %q", name)
			}
			for _, a := range addrs {
				fmt.Printf("0x%x  %s\n", a, name)
			}
			return nil
		}

		for _, s := range e.Symbols().All() {
			mod := ""
			if s.Module != "" {
				mod = " (" + s.Module + ")"
			}
			fmt.Printf("0x%-12x %-8s %s%s\n", s.Addr, s.Kind, s.Name, mod)
		}
		return nil
	},
}

func init() {
	symbolsCmd.Flags().String("name", "", "Look up addresses by exact symbol name")
	rootCmd.AddCommand(symbolsCmd)
}
