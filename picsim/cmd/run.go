package cmd

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sarchlab/picsim/datarecording"
	"github.com/sarchlab/picsim/monitoring"
	"github.com/sarchlab/picsim/pic"
	"github.com/sarchlab/picsim/scenario"
	"github.com/sarchlab/picsim/sim/hooking"
	"github.com/sarchlab/picsim/sim/stateful"
	"github.com/sarchlab/picsim/sim/timing"
	"github.com/sarchlab/picsim/tracing"
)

type runOptions struct {
	traceDB       string
	traceJSON     string
	monitor       bool
	monitorPort   int
	openBrowser   bool
	checkpoint    string
	checkpointDir string
	codec         string
	restore       string
	verbose       bool
}

func newRunCmd() *cobra.Command {
	opts := runOptions{}

	c := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Run a scenario and print what the processor observed.",
		Long: `Run a scenario file. The interrupt pulses and level reads seen ` +
			`by the processor are printed when the script finishes. Service ` +
			`traces can be written to SQLite or JSON, and the run can be ` +
			`watched with the web monitor.`,
		Args: cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			bindings := []struct{ flag, key string }{
				{"trace-db", EnvTraceDB},
				{"trace-json", EnvTraceJSON},
				{"monitor-port", EnvMonitorPort},
				{"codec", EnvCheckpointCodec},
			}

			for _, b := range bindings {
				if err := flagFromEnv(cmd, b.flag, b.key); err != nil {
					return fmt.Errorf("%s: %w", b.key, err)
				}
			}

			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenario(args[0], opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	flags := c.Flags()
	flags.StringVar(&opts.traceDB, "trace-db", "",
		"Record services into this SQLite file (without the .sqlite3 suffix)")
	flags.StringVar(&opts.traceJSON, "trace-json", "",
		"Record services into this JSON file")
	flags.BoolVar(&opts.monitor, "monitor", false,
		"Serve the web monitor during the run")
	flags.IntVar(&opts.monitorPort, "monitor-port", 0,
		"Port of the web monitor, random if 0")
	flags.BoolVar(&opts.openBrowser, "open-browser", false,
		"Open the web monitor in a browser")
	flags.StringVar(&opts.checkpoint, "checkpoint", "",
		"Write the final state into this file")
	flags.StringVar(&opts.checkpointDir, "checkpoint-dir", "",
		"Write the scripted checkpoints into this directory")
	flags.StringVar(&opts.codec, "codec", "json",
		"Checkpoint encoding, json or gob")
	flags.StringVar(&opts.restore, "restore", "",
		"Resume from this checkpoint")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false,
		"Log every register access and trace event")

	return c
}

func runScenario(path string, opts runOptions, out, errOut io.Writer) error {
	spec, err := scenario.Load(path)
	if err != nil {
		return err
	}

	codec, err := stateful.CodecByName(opts.codec)
	if err != nil {
		return err
	}

	counter := tracing.NewCountTracer(nil)
	simOpts := scenario.Options{
		Codec:   codec,
		Tracers: []tracing.Tracer{counter},
	}

	if opts.verbose {
		logger := log.New(errOut, "", 0)
		simOpts.Logger = logger
		simOpts.Tracers = append(simOpts.Tracers, tracing.NewLogTracer(logger))
	}

	var (
		recorder   datarecording.DataRecorder
		dbTracer   *tracing.DBTracer
		jsonTracer *tracing.JSONTracer
	)

	if opts.traceDB != "" {
		recorder = datarecording.New(opts.traceDB)
		dbTracer = tracing.NewDBTracer(recorder)
		simOpts.Tracers = append(simOpts.Tracers, dbTracer)
	}

	if opts.traceJSON != "" {
		jsonTracer = tracing.NewJSONTracerFile(opts.traceJSON)
		simOpts.Tracers = append(simOpts.Tracers, jsonTracer)
	}

	sim, err := scenario.Build(spec, simOpts)
	if err != nil {
		return err
	}

	if opts.restore != "" {
		if err := restoreFrom(sim, opts.restore); err != nil {
			return err
		}
	}

	if opts.monitor {
		m := startMonitor(sim, counter, opts)
		defer m.StopServer()
	}

	result, err := sim.Run()
	if err != nil {
		return err
	}

	if dbTracer != nil {
		dbTracer.Terminate()

		if err := recorder.Close(); err != nil {
			return fmt.Errorf("trace db: %w", err)
		}
	}

	if jsonTracer != nil {
		if err := jsonTracer.Close(); err != nil {
			return fmt.Errorf("trace json: %w", err)
		}
	}

	printResult(out, spec, result, counter)

	if opts.checkpointDir != "" {
		if err := writeCheckpoints(opts.checkpointDir, opts.codec, result); err != nil {
			return err
		}
	}

	if opts.checkpoint != "" {
		if err := saveTo(sim, opts.checkpoint); err != nil {
			return err
		}
	}

	return nil
}

func restoreFrom(sim *scenario.Simulation, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return sim.Restore(f)
}

func saveTo(sim *scenario.Simulation, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	if err := sim.Save(f); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}

func writeCheckpoints(dir, codec string, result *scenario.Result) error {
	if codec == "" {
		codec = "json"
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	for _, cp := range result.Checkpoints {
		name := filepath.Join(dir, fmt.Sprintf("checkpoint_%d.%s", cp.Time, codec))

		if err := os.WriteFile(name, cp.Data, 0o644); err != nil {
			return err
		}
	}

	return nil
}

func startMonitor(
	sim *scenario.Simulation,
	counter *tracing.CountTracer,
	opts runOptions,
) *monitoring.Monitor {
	m := monitoring.NewMonitor().
		WithPortNumber(opts.monitorPort).
		WithOpenBrowser(opts.openBrowser)

	m.RegisterEngine(sim.Engine())
	m.RegisterCountTracer(counter)

	for _, c := range sim.Controllers() {
		m.RegisterComponent(c)
	}

	bar := m.CreateProgressBar("Script", uint64(sim.NumEvents()))
	sim.Engine().AcceptHook(&progressHook{sim: sim, bar: bar})

	m.StartServer()

	return m
}

// progressHook moves the monitor's progress bar forward for every scripted
// event the engine handles.
type progressHook struct {
	sim *scenario.Simulation
	bar *monitoring.ProgressBar
}

func (h *progressHook) Func(ctx hooking.HookCtx) {
	if ctx.Pos != timing.HookPosAfterEvent {
		return
	}

	evt, ok := ctx.Item.(*timing.ScheduledEvent)
	if !ok || evt.Handler != timing.Handler(h.sim) {
		return
	}

	h.bar.IncrementFinished(1)
}

func printResult(
	out io.Writer,
	spec *scenario.Spec,
	result *scenario.Result,
	counter *tracing.CountTracer,
) {
	fmt.Fprintf(out, "Finished at cycle %d (%s clock)\n",
		result.EndTime, spec.Frequency())

	fmt.Fprintf(out, "\nPulses: %d\n", len(result.Pulses))
	for _, p := range result.Pulses {
		fmt.Fprintf(out, "  %8d  %-24s level %d\n", p.Time, p.Controller, p.Level)
	}

	fmt.Fprintf(out, "\nReads: %d\n", len(result.Reads))
	for _, r := range result.Reads {
		by := "script"
		if r.ByHost {
			by = "host"
		}

		fmt.Fprintf(out, "  %8d  %-24s level %d (%s)\n",
			r.Time, r.Controller, r.Level, by)
	}

	fmt.Fprintln(out, "\nServices:")
	for level := uint8(0); level < pic.NumLines; level++ {
		grants := counter.Grants(level)
		if grants == 0 {
			continue
		}

		fmt.Fprintf(out, "  level %d: %d granted, %d acknowledged, "+
			"%.1f cycles on average\n",
			level, grants, counter.Services(level),
			counter.AverageServiceTime(level))
	}

	if len(result.Checkpoints) > 0 {
		fmt.Fprintf(out, "\nCheckpoints: %d\n", len(result.Checkpoints))
		for _, cp := range result.Checkpoints {
			fmt.Fprintf(out, "  %8d  after %d pulses and %d reads\n",
				cp.Time, cp.Pulses, cp.Reads)
		}
	}

	fmt.Fprintln(out, "\nFinal state:")
	for _, name := range sortedNames(result.Final) {
		s := result.Final[name]
		printState(out, name, &s)
	}
}
