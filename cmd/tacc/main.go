package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/iley/tacc/internal/ast"
	"github.com/iley/tacc/internal/codegen"
	"github.com/iley/tacc/internal/compiler"
	"github.com/iley/tacc/internal/config"
	"github.com/iley/tacc/internal/interp"
)

var version = "dev"

var (
	configFile string
	verbose    string
	optLevel   int
	target     string
	debug      bool
	outputFile string
	entry      string
	runArgs    []int64
	printValue bool

	exitCode int
)

var rootCmd = &cobra.Command{
	Use:           "tacc",
	Short:         "Three-address code compiler back end",
	Long:          "Compiles typed program trees to x86-64 assembly through a three-address intermediate representation.",
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		l := tlog.New(tlog.NewConsoleWriter(os.Stderr, tlog.LstdFlags))
		if verbose != "" {
			l.SetVerbosity(verbose)
		}
		tlog.DefaultLogger = l
	},
}

var compileCmd = &cobra.Command{
	Use:   "compile <tree.yaml>",
	Short: "Compile a typed tree to assembly",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		tree, err := ast.LoadFile(args[0])
		if err != nil {
			return err
		}

		cmd.SilenceUsage = true

		res, err := compiler.Compile(newContext(), tree, cfg)
		if err != nil {
			return errors.Wrap(err, "compile %v", args[0])
		}

		path := outputFile
		if path == "" {
			path = strings.TrimSuffix(args[0], filepath.Ext(args[0])) + ".s"
		}

		if path == "-" {
			_, err = io.WriteString(os.Stdout, res.Assembly)
			return err
		}

		err = os.WriteFile(path, []byte(res.Assembly), 0o644)
		if err != nil {
			return errors.Wrap(err, "write output")
		}

		tlog.Printw("written", "file", path, "functions", res.Stats.Functions, "ir_before", res.Stats.IRBefore, "ir_after", res.Stats.IRAfter)

		return nil
	},
}

var irCmd = &cobra.Command{
	Use:   "ir <tree.yaml>",
	Short: "Print the optimized intermediate representation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		tree, err := ast.LoadFile(args[0])
		if err != nil {
			return err
		}

		cmd.SilenceUsage = true

		irp, _, err := compiler.Lower(newContext(), tree, cfg)
		if err != nil {
			return errors.Wrap(err, "lower %v", args[0])
		}

		irp.Print(cmd.OutOrStdout())

		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run <tree.yaml>",
	Short: "Interpret the optimized intermediate representation",
	Long:  "Runs a function of the program in the IR interpreter. The exit status is the low byte of its result.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		tree, err := ast.LoadFile(args[0])
		if err != nil {
			return err
		}

		cmd.SilenceUsage = true

		ctx := newContext()

		irp, _, err := compiler.Lower(ctx, tree, cfg)
		if err != nil {
			return errors.Wrap(err, "lower %v", args[0])
		}

		res, err := interp.Run(ctx, irp, entry, runArgs, interp.Options{Stdout: cmd.OutOrStdout()})

		var exit *interp.ExitError
		switch {
		case errors.As(err, &exit):
			exitCode = int(exit.Code & 0xff)
			return nil
		case err != nil:
			return errors.Wrap(err, "run %v", entry)
		}

		if printValue {
			fmt.Fprintln(cmd.OutOrStdout(), res)
		}

		if res.Type.IsInteger() {
			exitCode = int(res.Int & 0xff)
		}

		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "tacc %s (targets: %s)\n", version, strings.Join(codegen.Targets(), ", "))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVarP(&verbose, "verbose", "v", "", "enable verbose logging for comma separated topics")
	rootCmd.PersistentFlags().Lookup("verbose").NoOptDefVal = "*"

	for _, cmd := range []*cobra.Command{compileCmd, irCmd, runCmd} {
		cmd.Flags().IntVarP(&optLevel, "O", "O", 2, "optimization level (0 to 3)")
	}

	compileCmd.Flags().StringVarP(&outputFile, "o", "o", "", "output file name, - for stdout")
	compileCmd.Flags().StringVar(&target, "target", codegen.DefaultTarget, "target platform")
	compileCmd.Flags().BoolVar(&debug, "debug", false, "annotate assembly with IR instructions")

	runCmd.Flags().StringVar(&entry, "entry", "main", "function to run")
	runCmd.Flags().Int64SliceVar(&runArgs, "arg", nil, "integer argument for the entry function, repeatable")
	runCmd.Flags().BoolVar(&printValue, "print", false, "print the returned value")

	rootCmd.AddCommand(compileCmd, irCmd, runCmd, versionCmd)
}

// loadConfig layers the config file and then explicitly set flags over the defaults.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()

	if configFile != "" {
		var err error
		cfg, err = config.Load(configFile)
		if err != nil {
			return config.Config{}, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("O") {
		cfg.OptLevel = optLevel
	}
	if flags.Changed("target") {
		cfg.Target = target
	}
	if flags.Changed("debug") {
		cfg.Debug = debug
	}

	return cfg, cfg.Validate()
}

func newContext() context.Context {
	return tlog.ContextWithSpan(context.Background(), tlog.Root())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	os.Exit(exitCode)
}
