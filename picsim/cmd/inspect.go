package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sarchlab/picsim/datarecording"
	"github.com/sarchlab/picsim/pic"
	"github.com/sarchlab/picsim/scenario"
	"github.com/sarchlab/picsim/sim/stateful"
	"github.com/sarchlab/picsim/tracing"
)

func newInspectCmd() *cobra.Command {
	var codecName, traceDB string

	c := &cobra.Command{
		Use:   "inspect [checkpoint]",
		Short: "Print the states stored in a checkpoint or the services in a trace.",
		Args:  cobra.MaximumNArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return flagFromEnv(cmd, "codec", EnvCheckpointCodec)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && traceDB == "" {
				return errors.New("inspect needs a checkpoint or --trace-db")
			}

			if len(args) == 1 {
				if err := inspectFile(cmd.OutOrStdout(), args[0], codecName); err != nil {
					return err
				}
			}

			if traceDB == "" {
				return nil
			}

			return inspectTraceDB(cmd.Context(), cmd.OutOrStdout(), traceDB)
		},
	}

	c.Flags().StringVar(&codecName, "codec", "json",
		"Checkpoint encoding, json or gob")
	c.Flags().StringVar(&traceDB, "trace-db", "",
		"List the services recorded in this SQLite file")

	return c
}

func inspectFile(out io.Writer, path, codecName string) error {
	codec, err := stateful.CodecByName(codecName)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return inspect(out, f, codec)
}

func inspect(out io.Writer, r io.Reader, codec stateful.Codec) error {
	snapshot, err := stateful.Read(r, codec)
	if err != nil {
		return err
	}

	for _, name := range snapshot.Names() {
		data := snapshot[name]

		switch name {
		case scenario.HostName:
			st := &scenario.HostState{}
			if err := st.Deserialize(data); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}

			fmt.Fprintf(out, "%s\n  %d acknowledged\n", name, st.Acks)
			for i, c := range st.PendingControllers {
				fmt.Fprintf(out, "  acknowledge %s at %d\n", c, st.PendingTimes[i])
			}
		case scenario.ProgressName:
			st := &scenario.ProgressState{}
			if err := st.Deserialize(data); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}

			fmt.Fprintf(out, "%s\n  time %d, next event %d\n", name, st.Time, st.Next)
		default:
			st := &pic.State{}
			if err := st.Deserialize(data); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}

			printState(out, name, st)
		}
	}

	return nil
}

// inspectTraceDB lists the services of a trace recorded with run --trace-db.
// The .sqlite3 suffix is optional.
func inspectTraceDB(ctx context.Context, out io.Writer, path string) error {
	if !strings.HasSuffix(path, ".sqlite3") {
		path += ".sqlite3"
	}

	if _, err := os.Stat(path); err != nil {
		return err
	}

	if ctx == nil {
		ctx = context.Background()
	}

	reader := datarecording.NewReader(path)
	defer reader.Close()

	reader.MapTable(tracing.ServiceTable, tracing.ServiceEntry{})
	reader.MapTable(tracing.EventTable, tracing.EventEntry{})

	rows, total, err := reader.Query(ctx, tracing.ServiceTable,
		datarecording.QueryParams{OrderBy: "StartTime, ID"})
	if err != nil {
		return fmt.Errorf("trace db: %w", err)
	}

	fmt.Fprintf(out, "Services: %d\n", total)
	for _, row := range rows {
		e := row.(*tracing.ServiceEntry)
		fmt.Fprintf(out, "  %8d  %8d  %-24s level %d, acknowledged as %d\n",
			e.StartTime, e.EndTime, e.Location, e.Level, e.AckLevel)
	}

	_, events, err := reader.Query(ctx, tracing.EventTable,
		datarecording.QueryParams{Limit: 1})
	if err != nil {
		return fmt.Errorf("trace db: %w", err)
	}

	fmt.Fprintf(out, "Events: %d\n", events)

	return nil
}

func printState(out io.Writer, name string, s *pic.State) {
	fmt.Fprintf(out, "%s\n", name)
	fmt.Fprintf(out, "  request register  %08b\n", s.RequestRegister)
	fmt.Fprintf(out, "  current level     %d\n", s.CurrentLevel)
	fmt.Fprintf(out, "  latched level     %d\n", s.LatchedLevel)
	fmt.Fprintf(out, "  in service        %t\n", s.ServiceInDisable)
	fmt.Fprintf(out, "  master enable     %t\n", s.MasterEnable)
	fmt.Fprintf(out, "  gate              %t\n", s.GroupEnableGate)
	fmt.Fprintf(out, "  group select      %t\n", s.StatusGroupSelect)
}

func sortedNames(states map[string]pic.State) []string {
	names := make([]string, 0, len(states))
	for n := range states {
		names = append(names, n)
	}

	sort.Strings(names)

	return names
}
