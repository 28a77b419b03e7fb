// Package cmd implements the zre command line interface: the engine's query
// surface (disassembly, functions, cross-references, symbols, pattern
// search) plus patch application, one subcommand each.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"runtime/pprof"
	"strconv"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"github.com/wrharper/ZizzysReverseEngineering-sub000/internal/disasm"
	"github.com/wrharper/ZizzysReverseEngineering-sub000/internal/elfx"
	"github.com/wrharper/ZizzysReverseEngineering-sub000/internal/engine"
	"github.com/wrharper/ZizzysReverseEngineering-sub000/internal/logging"
	zrelog "github.com/wrharper/ZizzysReverseEngineering-sub000/internal/zre/log"
)

// parseAddr accepts decimal or 0x-prefixed hex.
func parseAddr(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("bad address %q: %w", s, err)
	}
	return v, nil
}

// loadImage opens path as ELF, or as a flat blob when --raw is set.
func loadImage(cmd *cobra.Command, path string) (*elfx.Image, error) {
	raw, _ := cmd.Flags().GetBool("raw")
	if !raw {
		return elfx.Open(path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read raw image: %w", err)
	}
	baseStr, _ := cmd.Flags().GetString("base")
	base, err := parseAddr(baseStr)
	if err != nil {
		return nil, err
	}
	bits, _ := cmd.Flags().GetInt("bits")
	entry := base
	if s, _ := cmd.Flags().GetString("entry"); s != "" {
		if entry, err = parseAddr(s); err != nil {
			return nil, err
		}
	}
	return elfx.NewRaw(data, base, bits, entry), nil
}

// openEngine loads the image, builds the engine and runs a full analysis.
func openEngine(cmd *cobra.Command, path string) (*engine.Engine, error) {
	img, err := loadImage(cmd, path)
	if err != nil {
		return nil, err
	}
	lg := logging.NewLogger()
	e, err := engine.New(img.Info(), disasm.X86{}, engine.WithLogger(lg.Logger))
	if err != nil {
		return nil, err
	}
	if _, err := e.Analyze(cmd.Context()); err != nil {
		return nil, err
	}
	return e, nil
}

var rootCmd = &cobra.Command{
	Use:   "zre [file]",
	Short: "Binary analysis and patching engine",
	Long: `zre reconstructs program structure from executable images: basic
blocks, control-flow graphs, functions, cross-references and symbols, and
keeps that structure consistent while you patch bytes.`,
	Example: `
# Summarize the analysis of a binary
zre /path/to/binary

# Disassemble a function
zre disasm /path/to/binary --at 0x401000

# Analyze a flat code blob
zre --raw --base 0x1000 --bits 64 disasm blob.bin
  `,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cpuprofile, _ := cmd.Flags().GetString("cpuprofile"); cpuprofile != "" {
			f, err := os.Create(cpuprofile)
			if err != nil {
				return fmt.Errorf("could not create CPU profile: %w", err)
			}
			defer f.Close()
			if err := pprof.StartCPUProfile(f); err != nil {
				return fmt.Errorf("could not start CPU profile: %w", err)
			}
			defer pprof.StopCPUProfile()
		}

		img, err := loadImage(cmd, args[0])
		if err != nil {
			return err
		}
		lg := logging.NewLogger()
		defer lg.Close()
		e, err := engine.New(img.Info(), disasm.X86{}, engine.WithLogger(lg.Logger))
		if err != nil {
			return err
		}
		rep, err := e.Analyze(cmd.Context())
		if err != nil {
			return err
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			bts, err := json.MarshalIndent(rep, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(bts))
			return nil
		}

		fmt.Printf("%s: %d-bit, entry 0x%x\n", args[0], img.Bitness, rep.Entry)
		fmt.Printf("  instructions: %d\n", rep.Instructions)
		fmt.Printf("  functions:    %d\n", rep.Functions)
		for src, n := range rep.BySource {
			fmt.Printf("    %-12s %d\n", src, n)
		}
		fmt.Printf("  blocks:       %d\n", rep.Blocks)
		fmt.Printf("  xrefs:        %d\n", rep.XRefs)
		fmt.Printf("  symbols:      %d\n", rep.Symbols)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Debug logging")
	rootCmd.PersistentFlags().Bool("raw", false, "Treat input as a flat code blob")
	rootCmd.PersistentFlags().String("base", "0x1000", "Base address for --raw images")
	rootCmd.PersistentFlags().Int("bits", 64, "Bitness for --raw images (32 or 64)")
	rootCmd.PersistentFlags().String("entry", "", "Entry point for --raw images (default: base)")

	rootCmd.Flags().BoolP("json", "j", false, "Output the analysis report as JSON")
	rootCmd.Flags().String("cpuprofile", "", "Write CPU profile to file")

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		debug, _ := cmd.Flags().GetBool("debug")
		zrelog.Setup("", debug)
	}
}

func Execute() {
	// Bypass fang's rendering when piped or explicitly requested; colors
	// stay user-controlled via ZRE_NO_COLOR.
	plain := os.Getenv("ZRE_PLAIN") != "" || !term.IsTerminal(os.Stdout.Fd())

	if plain {
		if err := rootCmd.Execute(); err != nil {
			os.Exit(1)
		}
		return
	}
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		os.Exit(1)
	}
}
