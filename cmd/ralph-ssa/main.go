package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/raymyers/ralph-ssa/pkg/interp"
	"github.com/raymyers/ralph-ssa/pkg/ir"
	"github.com/raymyers/ralph-ssa/pkg/irload"
	"github.com/raymyers/ralph-ssa/pkg/mach"
	"github.com/raymyers/ralph-ssa/pkg/pipeline"
	"github.com/spf13/cobra"
)

var version = "0.1.0"

// Debug flags for dumping intermediate representations
var (
	dIR    bool
	dSSA   bool
	dCSSA  bool
	dMach  bool
	dAlloc bool
)

// Run options
var (
	configFile string
	stopAfter  = pipeline.StageAlloc
	runFunc    string
	runArgs    []int64
	checkCases bool
	verbose    bool
)

// dumpFlags maps each stage to the flag that dumps it
var dumpFlags = map[pipeline.Stage]*bool{
	pipeline.StageIR:    &dIR,
	pipeline.StageSSA:   &dSSA,
	pipeline.StageCSSA:  &dCSSA,
	pipeline.StageMach:  &dMach,
	pipeline.StageAlloc: &dAlloc,
}

func main() {
	os.Exit(run())
}

func run() int {
	rootCmd := newRootCmd(os.Stdout, os.Stderr)
	// Accept single-dash dump flags like -dssa
	rootCmd.SetArgs(normalizeFlags(os.Args[1:]))
	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return 0
}

// debugFlagNames lists the dump flags that accept the single-dash style
var debugFlagNames = []string{"dir", "dssa", "dcssa", "dmach", "dalloc"}

// normalizeFlags converts single-dash flags like -dssa to --dssa
func normalizeFlags(args []string) []string {
	result := make([]string, len(args))
	for i, arg := range args {
		for _, flagName := range debugFlagNames {
			if arg == "-"+flagName {
				result[i] = "--" + flagName
				break
			}
		}
		if result[i] == "" {
			result[i] = arg
		}
	}
	return result
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ralph-ssa [file.yaml]",
		Short: "ralph-ssa is an SSA back-end for testing compilation passes",
		Long: `ralph-ssa reads a program in the YAML IR format and runs it
through Mem2Reg, PHI elimination, instruction selection and linear scan
register allocation for 32-bit ARM. Each stage can be dumped.`,
		Version:       version,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				cmd.Help()
				return nil
			}
			err := compile(args[0], cmd.Flags().Changed("stop-after"), out, errOut)
			if err != nil {
				fmt.Fprintf(errOut, "ralph-ssa: %v\n", err)
			}
			return err
		},
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	// Add debug flags
	rootCmd.Flags().BoolVarP(&dIR, "dir", "", false, "Dump the IR as loaded")
	rootCmd.Flags().BoolVarP(&dSSA, "dssa", "", false, "Dump the IR after Mem2Reg")
	rootCmd.Flags().BoolVarP(&dCSSA, "dcssa", "", false, "Dump the IR after PHI elimination")
	rootCmd.Flags().BoolVarP(&dMach, "dmach", "", false, "Dump machine code after instruction selection")
	rootCmd.Flags().BoolVarP(&dAlloc, "dalloc", "", false, "Dump machine code after register allocation")

	// Add run flags
	rootCmd.Flags().StringVar(&configFile, "config", "", "Read settings from a YAML file")
	rootCmd.Flags().Var(&stopAfter, "stop-after", "Last stage to run: ir, ssa, cssa, mach or alloc")
	rootCmd.Flags().StringVar(&runFunc, "run", "", "Interpret the named function after the last IR stage")
	rootCmd.Flags().Int64SliceVar(&runArgs, "args", nil, "Arguments for --run")
	rootCmd.Flags().BoolVar(&checkCases, "check", false, "Check the file's cases on the transformed IR")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log pass statistics")

	return rootCmd
}

// loadConfig builds the pipeline settings from the config file, the
// environment and the flags, in that order
func loadConfig(stopChanged bool, errOut io.Writer) (pipeline.Config, error) {
	cfg := pipeline.DefaultConfig()
	if configFile != "" {
		var err error
		if cfg, err = pipeline.LoadConfig(configFile); err != nil {
			return cfg, err
		}
	}
	if err := cfg.FromEnv(); err != nil {
		return cfg, err
	}
	if stopChanged {
		cfg.StopAfter = stopAfter
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	level, err := pipeline.ParseLevel(cfg.LogLevel)
	if err != nil {
		return cfg, err
	}
	cfg.Logger = pipeline.NewLogger(errOut, level)
	return cfg, nil
}

// compile runs the pipeline on filename and handles the dump, run and
// check requests
func compile(filename string, stopChanged bool, out, errOut io.Writer) error {
	cfg, err := loadConfig(stopChanged, errOut)
	if err != nil {
		return err
	}
	u, err := irload.LoadFile(filename)
	if err != nil {
		return err
	}

	dumped := false
	hooks := pipeline.Hooks{
		IR: func(s pipeline.Stage, u *ir.Unit) error {
			if !*dumpFlags[s] {
				return nil
			}
			dumped = true
			return dump(filename, s, out, func(w io.Writer) { ir.NewPrinter(w).PrintUnit(u) })
		},
		Mach: func(s pipeline.Stage, mu *mach.Unit) error {
			if !*dumpFlags[s] {
				return nil
			}
			dumped = true
			return dump(filename, s, out, func(w io.Writer) { mach.NewPrinter(w).PrintUnit(mu) })
		},
	}
	res, err := pipeline.Run(u, cfg, hooks)
	if err != nil {
		return err
	}

	if checkCases {
		cases, err := interp.LoadCases(filename)
		if err != nil {
			return err
		}
		if err := interp.Check(res.IR, cases); err != nil {
			return err
		}
		fmt.Fprintf(out, "%d cases passed\n", len(cases))
	}
	if runFunc != "" {
		return runFunction(res.IR, out)
	}

	// Without a request print the last stage
	if !dumped && !checkCases {
		if res.Mach != nil {
			mach.NewPrinter(out).PrintUnit(res.Mach)
		} else {
			ir.NewPrinter(out).PrintUnit(res.IR)
		}
	}
	return nil
}

// runFunction interprets --run with --args and prints the result and the
// external calls made
func runFunction(u *ir.Unit, out io.Writer) error {
	res, err := interp.New(u).Run(runFunc, runArgs...)
	if err != nil {
		return err
	}
	for _, call := range res.Trace {
		fmt.Fprintf(out, "call %s\n", call)
	}
	fmt.Fprintf(out, "%s = %s\n", interp.Case{Func: runFunc, Args: runArgs}, res.Value)
	return nil
}

// dump writes one stage to its output file and to out
func dump(filename string, s pipeline.Stage, out io.Writer, write func(io.Writer)) error {
	outputFilename := stageOutputFilename(filename, s)

	outFile, err := os.Create(outputFilename)
	if err != nil {
		return fmt.Errorf("error creating %s: %w", outputFilename, err)
	}
	defer outFile.Close()

	write(outFile)
	// Also print to stdout for convenience
	write(out)
	return nil
}

// stageOutputFilename returns the dump file of a stage:
// input.yaml -> input.ssa
func stageOutputFilename(filename string, s pipeline.Stage) string {
	for _, ext := range []string{".yaml", ".yml"} {
		if strings.HasSuffix(filename, ext) {
			return filename[:len(filename)-len(ext)] + "." + s.String()
		}
	}
	return filename + "." + s.String()
}
