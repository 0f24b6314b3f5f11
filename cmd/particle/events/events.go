// Package eventscmder provides the events command for reading back the event
// log recorded by "particle listen".
package eventscmder

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/saamerm/particle/cmd/particle/eventlog"
	"github.com/saamerm/particle/pkg/cliui"
	"github.com/saamerm/particle/pkg/config"
	"github.com/saamerm/particle/pkg/storage"
)

const eventsLongDesc string = `Show recorded device events, newest first.

Events are read from the SQLite or Postgres log that "particle listen"
records into. Without --sqlite or --postgres the events.db file in the
.particle/ directory is used.

Examples:
  particle events
  particle events --device 0123456789abcdef01234567 --limit 20
  particle events --name temp --count`

const maxCellWidth = 40

type eventsCommander struct {
	configDir   string
	sqlitePath  string
	postgresDSN string

	filter storage.Filter
	count  bool
}

func NewEventsCmd() *cobra.Command {
	cmder := &eventsCommander{}

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show recorded device events",
		Long:  eventsLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return err
			}
			config.BindRegisteredFlags(v, cmd, config.Flags, []string{config.FlagSQLite, config.FlagPostgres})

			cmder.sqlitePath = v.GetString("storage.sqlite_path")
			cmder.postgresDSN = v.GetString("storage.postgres_dsn")
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd.Context(), cmd.OutOrStdout())
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, config.Flags, config.FlagPostgres, &cmder.postgresDSN)
	cmd.Flags().StringVar(&cmder.filter.DeviceID, "device", "", "Only show events from this device")
	cmd.Flags().StringVar(&cmder.filter.NamePrefix, "name", "", "Only show events whose name starts with this prefix")
	cmd.Flags().IntVarP(&cmder.filter.Limit, "limit", "n", 50, "Maximum number of events to show (0 for all)")
	cmd.Flags().BoolVar(&cmder.count, "count", false, "Print the number of matching events only")

	return cmd
}

func (c *eventsCommander) run(ctx context.Context, out io.Writer) error {
	if c.filter.Limit < 0 {
		return fmt.Errorf("--limit must not be negative, got %d", c.filter.Limit)
	}

	sqlitePath := c.sqlitePath
	if c.postgresDSN == "" {
		var err error
		sqlitePath, err = eventlog.ResolveSQLitePath(c.sqlitePath, c.configDir)
		if err != nil {
			return err
		}
	}

	driver, err := eventlog.Open(ctx, sqlitePath, c.postgresDSN)
	if err != nil {
		return err
	}
	defer driver.Close()

	if c.count {
		n, err := driver.Count(ctx, c.filter)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, n)
		return nil
	}

	records, err := driver.List(ctx, c.filter)
	if err != nil {
		return err
	}

	WriteRecords(out, records)
	return nil
}

// WriteRecords prints records as aligned columns.
func WriteRecords(w io.Writer, records []*storage.Record) {
	if len(records) == 0 {
		fmt.Fprintf(w, "%s\n", cliui.StepStyle.Render("No events recorded."))
		return
	}

	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []string{
			rec.ReceivedAt.Local().Format("2006-01-02 15:04:05"),
			rec.Event.DeviceID,
			rec.Event.Name,
			rec.Event.Data,
			strconv.Itoa(rec.Event.TTL),
		})
	}

	cliui.Columns(w, []string{"RECEIVED", "DEVICE", "EVENT", "DATA", "TTL"}, rows, maxCellWidth)
}
