package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kunitoki/etch"
	"github.com/kunitoki/etch/ascii"
)

var (
	flagVerbose    string
	flagRelease    bool
	flagForce      bool
	flagGCInterval int
	flagProfile    bool
)

var log = logrus.New()

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "etch",
	Short: "Compiler and VM for the Etch scripting language",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagVerbose, "verbose", "", "trace subsystems: any of c (compiler), v (vm), o (optimizer)")
	rootCmd.PersistentFlags().BoolVar(&flagRelease, "release", false, "disable the optimizer's debug-friendly passes")
	rootCmd.PersistentFlags().BoolVar(&flagForce, "force", false, "ignore the bytecode cache and recompile")
	rootCmd.PersistentFlags().IntVar(&flagGCInterval, "gc-interval", 256, "allocations between cycle-collector passes")
	rootCmd.PersistentFlags().BoolVar(&flagProfile, "profile", false, "log compile/run timings")

	rootCmd.AddCommand(genCmd, runCmd, testCmd, dumpCmd)
}

func applyVerbosity() {
	log.SetLevel(logrus.WarnLevel)
	for _, c := range flagVerbose {
		switch c {
		case 'c', 'v', 'o':
			log.SetLevel(logrus.DebugLevel)
		}
	}
}

func newEmbed() *etch.Embed {
	applyVerbosity()
	return etch.ContextNew(etch.EmbedOptions{
		Verbose:         flagVerbose != "",
		Debug:           strings.ContainsRune(flagVerbose, 'v'),
		Optimize:        !flagRelease,
		Force:           flagForce,
		GCCycleInterval: flagGCInterval,
	})
}

var genCmd = &cobra.Command{
	Use:   "gen {vm} file.etch",
	Short: "produce cached bytecode for file.etch",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if args[0] != "vm" {
			return fmt.Errorf("etch: unsupported --gen target %q (only \"vm\" bytecode generation is implemented)", args[0])
		}
		ctx := newEmbed()
		defer ctx.Close()
		if err := ctx.CompileFile(args[1]); err != nil {
			return err
		}
		fmt.Printf("compiled %s\n", args[1])
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run [vm] file.etch",
	Short: "execute file.etch",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		if len(args) == 2 {
			if args[0] != "vm" {
				return fmt.Errorf("etch: unsupported --run target %q (only \"vm\" execution is implemented)", args[0])
			}
			path = args[1]
		}
		ctx := newEmbed()
		defer ctx.Close()
		if err := ctx.CompileFile(path); err != nil {
			return err
		}
		code, err := ctx.Execute()
		if err != nil {
			return err
		}
		os.Exit(code)
		return nil
	},
}

var testCmd = &cobra.Command{
	Use:   "test [path]",
	Short: "compile and run every *.etch under path (default: cwd); a .fail sibling expects a compile failure",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root := "."
		if len(args) == 1 {
			root = args[0]
		}
		return runTestSuite(root)
	},
}

var dumpCmd = &cobra.Command{
	Use:   "dump file.etch",
	Short: "print disassembly for file.etch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := etch.NewContext(etch.WithLogger(log), etch.WithOptimizer(!flagRelease), etch.WithForceRecompile(true))
		if err := ctx.CompileFile(args[0]); err != nil {
			return err
		}
		prog := ctx.Program()
		if isTerminal(os.Stdout) {
			fmt.Println(etch.DisassembleHighlighted(prog, &ascii.DefaultTheme))
		} else {
			fmt.Println(etch.Disassemble(prog))
		}
		return nil
	},
}

// runTestSuite walks root for `<name>.etch` files. A file with a sibling
// `<name>.fail` passes when it fails to compile; any other file passes
// when it compiles and its main runs without error. A `<name>.pass`
// sibling is not read, so the program's printed output is not compared
// against anything.
func runTestSuite(root string) error {
	pass, fail := 0, 0
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() || !strings.HasSuffix(path, ".etch") {
			return err
		}
		base := strings.TrimSuffix(path, ".etch")
		ctx := newEmbed()
		defer ctx.Close()

		compErr := ctx.CompileFile(path)
		if _, statErr := os.Stat(base + ".fail"); statErr == nil {
			if compErr == nil {
				fail++
				fmt.Printf("FAIL %s: expected compile failure, got none\n", path)
			} else {
				pass++
			}
			return nil
		}
		if compErr != nil {
			fail++
			fmt.Printf("FAIL %s: %s\n", path, compErr)
			return nil
		}
		if _, err := ctx.Execute(); err != nil {
			fail++
			fmt.Printf("FAIL %s: %s\n", path, err)
			return nil
		}
		pass++
		return nil
	})
	fmt.Printf("%d passed, %d failed\n", pass, fail)
	if fail > 0 {
		return fmt.Errorf("etch test: %d failure(s)", fail)
	}
	return err
}

func isTerminal(f *os.File) bool {
	stat, err := f.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}
