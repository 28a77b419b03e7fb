package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var xrefsCmd = &cobra.Command{
	Use:   "xrefs [file] [address]",
	Short: "Show incoming and outgoing cross-references for an address",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine(cmd, args[0])
		if err != nil {
			return err
		}
		addr, err := parseAddr(args[1])
		if err != nil {
			return err
		}

		out := e.RefsFrom(addr)
		in := e.RefsTo(addr)
		if len(out) == 0 && len(in) == 0 {
			fmt.Printf("no cross-references at 0x%x\n", addr)
			return nil
		}
		for _, r := range out {
			fmt.Printf("0x%x -> 0x%x  %-5s %s\n", r.From, r.To, r.Kind, r.Desc)
		}
		for _, r := range in {
			fmt.Printf("0x%x <- 0x%x  %-5s %s\n", r.To, r.From, r.Kind, r.Desc)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(xrefsCmd)
}
