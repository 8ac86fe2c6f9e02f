package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/copyleftdev/ipoptgo/internal/config"
	"github.com/copyleftdev/ipoptgo/internal/ipopt"
	"github.com/copyleftdev/ipoptgo/internal/logging"
	"github.com/copyleftdev/ipoptgo/internal/optimization"
	"github.com/copyleftdev/ipoptgo/internal/problems"
)

type solveFlags struct {
	spec     string
	options  []string
	gradient string
	jacobian string
	output   string
	logLevel string
}

// newRootCmd builds the CLI around solver.
func newRootCmd(solver optimization.Solver) *cobra.Command {
	registry := problems.NewRegistry()

	rootCmd := &cobra.Command{
		Use:           "nlpsolve",
		Short:         "solve nonlinear programs with IPOPT",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list built-in problems",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listProblems(cmd.OutOrStdout(), registry)
		},
	}

	var flags solveFlags
	solveCmd := &cobra.Command{
		Use:   "solve [problem]",
		Short: "solve a built-in problem, optionally overridden by a spec file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSolve(cmd, solver, registry, &flags, args)
		},
	}
	solveCmd.Flags().StringVar(&flags.spec, "spec", "", "problem spec file (yaml)")
	solveCmd.Flags().StringArrayVarP(&flags.options, "option", "o", nil, `solver option "key value", repeatable`)
	solveCmd.Flags().StringVar(&flags.gradient, "gradient", "", "objective gradient: analytic, 2-point or 3-point")
	solveCmd.Flags().StringVar(&flags.jacobian, "jacobian", "", "constraint jacobian: analytic, solver, 2-point or 3-point")
	solveCmd.Flags().StringVar(&flags.output, "output", "text", "output format: text, json or yaml")
	solveCmd.Flags().StringVar(&flags.logLevel, "log-level", "warn", "log level")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "print version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "nlpsolve %s (ipopt linked: %t)\n", version, ipopt.Available)
		},
	}

	rootCmd.AddCommand(listCmd, solveCmd, versionCmd)
	return rootCmd
}

func listProblems(out io.Writer, registry *problems.Registry) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tPARAMS\tCONSTRAINTS\tDESCRIPTION")
	for _, e := range registry.List() {
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", e.Name, e.Parameters, e.Constraints, e.Description)
	}
	return w.Flush()
}

// buildSpec merges the spec file, the positional problem name and flags.
func buildSpec(flags *solveFlags, args []string) (*problems.Spec, error) {
	spec := &problems.Spec{}
	if flags.spec != "" {
		s, err := problems.LoadSpec(flags.spec)
		if err != nil {
			return nil, err
		}
		spec = s
	}
	if len(args) == 1 {
		spec.Problem = args[0]
	}
	if spec.Problem == "" {
		return nil, errors.New("name a problem or pass --spec")
	}
	spec.Options = append(spec.Options, flags.options...)
	if flags.gradient != "" {
		spec.Gradient = flags.gradient
	}
	if flags.jacobian != "" {
		spec.Jacobian = flags.jacobian
	}
	return spec, nil
}

func runSolve(cmd *cobra.Command, solver optimization.Solver, registry *problems.Registry, flags *solveFlags, args []string) error {
	spec, err := buildSpec(flags, args)
	if err != nil {
		return err
	}
	p, err := registry.Resolve(spec)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	cfg.ApplyDefaults(&p)

	logger := logging.New(logging.ParseLevel(flags.logLevel), cmd.ErrOrStderr()).WithFormat(logging.TextFormat)
	zl := logging.NewZapLogger(logger.WithField("problem", spec.Problem))
	defer func() { _ = zl.Sync() }()

	res, err := optimization.Minimize(cmd.Context(), solver, p, cfg.MinimizeOptions(zl)...)
	if res != nil {
		if werr := writeResult(cmd.OutOrStdout(), flags.output, spec.Problem, res); werr != nil {
			return werr
		}
	}
	if err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("solver stopped: %s", res.Message)
	}
	return nil
}

func writeResult(out io.Writer, format, name string, res *optimization.Result) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	case "yaml":
		enc := yaml.NewEncoder(out)
		defer enc.Close()
		return enc.Encode(res)
	case "text", "":
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "problem\t%s\n", name)
		fmt.Fprintf(w, "success\t%t\n", res.Success)
		fmt.Fprintf(w, "status\t%d %s\n", int(res.Status), res.Message)
		fmt.Fprintf(w, "iterations\t%d\n", res.Iterations)
		fmt.Fprintf(w, "f\t%.10g\n", res.F)
		fmt.Fprintf(w, "x\t%v\n", res.X)
		fmt.Fprintf(w, "g\t%v\n", res.G)
		fmt.Fprintf(w, "evaluations\tf=%d grad=%d g=%d jac=%d\n",
			res.Evaluations.Objective, res.Evaluations.Gradient, res.Evaluations.Constraints, res.Evaluations.Jacobian)
		return w.Flush()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
