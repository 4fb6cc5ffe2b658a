package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"odeflow/internal/config"
	"odeflow/internal/problems"
	"odeflow/internal/solve"
	"odeflow/internal/state"
	"odeflow/internal/storage"
	"odeflow/internal/tableau"
	"odeflow/internal/tui"
)

var (
	dataDir    string
	debug      bool
	configFile string

	method   string
	t0       float64
	t1       float64
	dt       float64
	fixed    bool
	atol     float64
	rtol     float64
	maxSteps int
	noDense  bool
	initVals []float64
	save     bool
	samples  int

	component int
	plotWidth int
	plotRows  int

	exportFormat string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "odeflow",
		Short: "adaptive runge-kutta ode integration",
	}
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".odeflow", "data directory")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "debug logging")

	runCmd := &cobra.Command{
		Use:   "run [problem]",
		Short: "integrate a problem",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runProblem,
	}
	addSolveFlags(runCmd)
	runCmd.Flags().BoolVar(&save, "save", false, "persist the run")
	runCmd.Flags().IntVar(&samples, "samples", 201, "sample count for saved trajectories")

	liveCmd := &cobra.Command{
		Use:   "live [problem]",
		Short: "integrate with a live terminal view",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLive,
	}
	addSolveFlags(liveCmd)
	liveCmd.Flags().IntVar(&component, "component", 0, "state component to plot")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list saved runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot a saved run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().IntVar(&plotWidth, "width", 80, "plot width")
	plotCmd.Flags().IntVar(&plotRows, "height", 15, "plot height")

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export a saved run to stdout",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}
	exportCmd.Flags().StringVar(&exportFormat, "format", "csv", "csv or json")

	methodsCmd := &cobra.Command{
		Use:   "methods",
		Short: "list integration methods",
		RunE:  listMethods,
	}

	problemsCmd := &cobra.Command{
		Use:   "problems",
		Short: "list built-in problems",
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range problems.Names() {
				fmt.Println(name)
			}
		},
	}

	rootCmd.AddCommand(runCmd, liveCmd, listCmd, plotCmd, exportCmd, methodsCmd, problemsCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func addSolveFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configFile, "config", "", "config file (yaml)")
	cmd.Flags().StringVar(&method, "method", config.DefaultMethod, "integration method")
	cmd.Flags().Float64Var(&t0, "t0", 0, "interval start")
	cmd.Flags().Float64Var(&t1, "t1", config.DefaultT1, "interval end")
	cmd.Flags().Float64Var(&dt, "dt", 0, "initial (or fixed) step, 0 = automatic")
	cmd.Flags().BoolVar(&fixed, "fixed", false, "fixed steps instead of adaptive")
	cmd.Flags().Float64Var(&atol, "atol", config.DefaultAtol, "absolute tolerance")
	cmd.Flags().Float64Var(&rtol, "rtol", config.DefaultRtol, "relative tolerance")
	cmd.Flags().IntVar(&maxSteps, "max-steps", config.DefaultMaxSteps, "step attempt limit")
	cmd.Flags().BoolVar(&noDense, "no-dense", false, "skip dense output")
	cmd.Flags().Float64SliceVar(&initVals, "init", nil, "initial state, flattened")
}

// buildConfig layers config file under the flags the user actually set.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	if len(args) > 0 {
		cfg.Problem = args[0]
	}
	if cmd.Flags().Changed("method") {
		cfg.Method = method
	}
	if cmd.Flags().Changed("t0") {
		cfg.T0 = t0
	}
	if cmd.Flags().Changed("t1") {
		cfg.T1 = t1
	}
	if cmd.Flags().Changed("dt") {
		cfg.Dt = dt
	}
	if cmd.Flags().Changed("fixed") {
		cfg.Adaptive = !fixed
	}
	if cmd.Flags().Changed("atol") {
		cfg.Atol = atol
	}
	if cmd.Flags().Changed("rtol") {
		cfg.Rtol = rtol
	}
	if cmd.Flags().Changed("max-steps") {
		cfg.MaxSteps = maxSteps
	}
	if cmd.Flags().Changed("no-dense") {
		cfg.Dense = !noDense
	}
	if cmd.Flags().Changed("init") {
		cfg.Init = initVals
	}
	return cfg, cfg.Validate()
}

func newLogger() (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// setup resolves the configured problem and initial state.
func setup(cfg *config.Config) (problems.Problem, state.Tree, error) {
	prob, err := problems.New(cfg.Problem)
	if err != nil {
		return nil, state.Tree{}, err
	}
	for name, v := range cfg.Params {
		if err := prob.SetParam(name, v); err != nil {
			return nil, state.Tree{}, err
		}
	}
	y0 := prob.DefaultState()
	if len(cfg.Init) > 0 {
		if len(cfg.Init) != y0.Len() {
			return nil, state.Tree{}, fmt.Errorf("%s expects %d state components, got %d", cfg.Problem, y0.Len(), len(cfg.Init))
		}
		y0 = state.FromSlice(cfg.Init)
	}
	return prob, y0, nil
}

func runProblem(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}
	prob, y0, err := setup(cfg)
	if err != nil {
		return err
	}
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	opts := cfg.SolveOptions()
	opts.Logger = logger

	start := time.Now()
	sol, err := solve.Solve(context.Background(), prob, cfg.T0, cfg.T1, y0, opts)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	printSummary(sol, cfg, elapsed)

	if cfg.Dense {
		n := samples
		if n < 2 {
			n = 2
		}
		ts, ys, err := sol.Sample(n)
		if err != nil {
			return err
		}
		printPlot(ts, ys, cfg.Problem)
		if save {
			return saveRun(cfg, sol, ts, ys)
		}
	} else if save {
		return saveRun(cfg, sol, sol.Ts, sol.Ys)
	}
	return nil
}

func saveRun(cfg *config.Config, sol *solve.Solution, ts []float64, ys []state.Tree) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	id, err := st.SaveRun(cfg.Problem, cfg.Method, cfg.Atol, cfg.Rtol, sol, ts, ys)
	if err != nil {
		return err
	}
	fmt.Printf("saved run %s\n", id)
	return nil
}

func openStore() (*storage.Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}
	return storage.Open(filepath.Join(dataDir, "runs.db"))
}

func printSummary(sol *solve.Solution, cfg *config.Config, elapsed time.Duration) {
	fmt.Printf("%s  %s  [%g, %g]  (%v)\n", cfg.Problem, cfg.Method, sol.T0, sol.T1, elapsed.Round(time.Microsecond))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "accepted\t%d\n", sol.Stats.Accepted)
	fmt.Fprintf(w, "rejected\t%d\n", sol.Stats.Rejected)
	fmt.Fprintf(w, "evaluations\t%d\n", sol.Stats.Evaluations)
	fmt.Fprintf(w, "final state\t%s\n", sol.Y1.String())
	w.Flush()
}

func printPlot(ts []float64, ys []state.Tree, caption string) {
	if len(ys) == 0 {
		return
	}
	dim := ys[0].Len()
	if dim > 4 {
		dim = 4
	}
	series := make([][]float64, dim)
	for i := range series {
		series[i] = make([]float64, len(ys))
	}
	for j, y := range ys {
		flat := y.Flatten()
		for i := 0; i < dim; i++ {
			series[i][j] = flat[i]
		}
	}
	for i := 0; i < dim; i++ {
		fmt.Println()
		fmt.Println(asciigraph.Plot(series[i],
			asciigraph.Width(72),
			asciigraph.Height(10),
			asciigraph.Caption(fmt.Sprintf("%s: y[%d] over [%g, %g]", caption, i, ts[0], ts[len(ts)-1]))))
	}
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}
	prob, y0, err := setup(cfg)
	if err != nil {
		return err
	}

	events := make(chan solve.Event, 1024)
	done := make(chan tui.DoneMsg, 1)

	opts := cfg.SolveOptions()
	opts.OnStep = func(ev solve.Event) {
		select {
		case events <- ev:
		default:
		}
	}

	go func() {
		sol, err := solve.Solve(context.Background(), prob, cfg.T0, cfg.T1, y0, opts)
		close(events)
		done <- tui.DoneMsg{Solution: sol, Err: err}
	}()

	m := tui.NewModel(cfg.Problem, cfg.Method, cfg.T0, cfg.T1, component, events, done)
	final, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	if err != nil {
		return err
	}
	if lm, ok := final.(tui.Model); ok {
		if sol, solveErr := lm.Solution(); solveErr != nil {
			return solveErr
		} else if sol != nil {
			printSummary(sol, cfg, 0)
		}
	}
	return nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.ListRuns()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPROBLEM\tMETHOD\tSPAN\tATOL\tRTOL\tACCEPTED\tREJECTED\tEVALS\tCREATED")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t[%g, %g]\t%g\t%g\t%d\t%d\t%d\t%s\n",
			r.ID, r.Problem, r.Method, r.T0, r.T1, r.Atol, r.Rtol,
			r.Accepted, r.Rejected, r.Evaluations,
			r.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	run, err := st.GetRun(args[0])
	if err != nil {
		return err
	}
	samples, err := st.Samples(args[0])
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		return fmt.Errorf("run %s has no samples", args[0])
	}

	fmt.Printf("%s  %s  [%g, %g]  %d samples\n", run.Problem, run.Method, run.T0, run.T1, len(samples))

	dim := len(samples[0].Y)
	if dim > 6 {
		dim = 6
	}
	for i := 0; i < dim; i++ {
		data := make([]float64, len(samples))
		for j, sm := range samples {
			if i < len(sm.Y) {
				data[j] = sm.Y[i]
			}
		}
		fmt.Println()
		fmt.Println(asciigraph.Plot(data,
			asciigraph.Width(plotWidth),
			asciigraph.Height(plotRows),
			asciigraph.Caption(fmt.Sprintf("y[%d]", i))))
	}
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	switch exportFormat {
	case "csv":
		return st.ExportCSV(os.Stdout, args[0])
	case "json":
		return st.ExportJSON(os.Stdout, args[0])
	default:
		return fmt.Errorf("unknown export format %q (want csv or json)", exportFormat)
	}
}

func listMethods(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tORDER\tSTAGES\tADAPTIVE\tFSAL")
	for _, name := range tableau.Names() {
		tab, err := tableau.Lookup(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%v\t%v\n", tab.Name, tab.Order, tab.Stages(), tab.BErr != nil, tab.FSAL)
	}
	return w.Flush()
}
