// Package listencmder provides the listen command, which follows the cloud
// event stream, prints every event and optionally records and forwards them.
package listencmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/saamerm/particle/cmd/particle/session"
	"github.com/saamerm/particle/pkg/cliui"
	"github.com/saamerm/particle/pkg/cloud"
	"github.com/saamerm/particle/pkg/config"
	"github.com/saamerm/particle/pkg/eventsource"
	"github.com/saamerm/particle/pkg/eventstream"
	"github.com/saamerm/particle/pkg/logger"
	"github.com/saamerm/particle/pkg/particle"
)

const listenLongDesc string = `Listen to the Particle cloud event stream.

Without arguments the events of your own devices are shown. A PREFIX limits
the stream to events whose name starts with it; with neither --mine nor
--device a prefix subscribes to the public event stream.

Received events can be recorded to a SQLite or Postgres event log
(--record, --sqlite, --postgres) and forwarded to Kafka (--kafka-brokers).
Recording and forwarding run on a bounded worker pool off the read path, so
a slow sink never holds up the stream.

The stream is not reopened when it ends unless --reconnect is set, in which
case it is reopened after --reconnect-delay.

Examples:
  particle listen
  particle listen temp --mine
  particle listen --device 0123456789abcdef01234567 --reconnect
  particle listen --record --kafka-brokers localhost:9092`

// registryKeys are the config-backed flags of the listen command.
var registryKeys = []string{
	config.FlagReconnectDelay,
	config.FlagKafkaBrokers,
	config.FlagKafkaTopic,
	config.FlagSQLite,
	config.FlagPostgres,
	config.FlagWorkers,
	config.FlagQueueSize,
}

type listenCommander struct {
	configDir string
	debug     bool

	prefix   string
	deviceID string
	mine     bool

	reconnect      bool
	reconnectDelay string

	record      bool
	sqlitePath  string
	postgresDSN string

	kafkaBrokers string
	kafkaTopic   string

	workers   uint
	queueSize uint

	raw     bool
	logFile string
}

func NewListenCmd() *cobra.Command {
	cmder := &listenCommander{}

	cmd := &cobra.Command{
		Use:   "listen [prefix]",
		Short: "Listen to the event stream",
		Long:  listenLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := session.Viper(cmd, registryKeys...)
			if err != nil {
				return err
			}

			cmder.configDir, _ = cmd.Flags().GetString("config-dir")
			cmder.debug, _ = cmd.Flags().GetBool("debug")
			cmder.prefix = v.GetString("stream.prefix")
			if len(args) == 1 {
				cmder.prefix = args[0]
			}
			cmder.reconnectDelay = v.GetString("stream.reconnect_delay")
			cmder.kafkaBrokers = v.GetString("forward.kafka_brokers")
			cmder.kafkaTopic = v.GetString("forward.kafka_topic")
			cmder.sqlitePath = v.GetString("storage.sqlite_path")
			cmder.postgresDSN = v.GetString("storage.postgres_dsn")
			cmder.workers = v.GetUint("worker.count")
			cmder.queueSize = v.GetUint("worker.queue_size")

			log, closeLog, err := cmder.logger(cmd)
			if err != nil {
				return err
			}
			defer closeLog()

			sess, err := session.Open(v, cmder.configDir, log)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return cmder.run(ctx, sess, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&cmder.deviceID, "device", "", "Only listen to events from this device")
	cmd.Flags().BoolVar(&cmder.mine, "mine", false, "Only listen to events from your own devices")
	cmd.Flags().BoolVar(&cmder.reconnect, "reconnect", false, "Reopen the stream after it ends")
	cmd.Flags().BoolVar(&cmder.record, "record", false, "Record events to events.db in the .particle/ directory")
	cmd.Flags().BoolVar(&cmder.raw, "raw", false, "Print the raw stream lines instead of formatted events")
	cmd.Flags().StringVar(&cmder.logFile, "log-file", "", "Also write JSON logs to this file")

	config.AddStringFlag(cmd, config.Flags, config.FlagReconnectDelay, &cmder.reconnectDelay)
	config.AddStringFlag(cmd, config.Flags, config.FlagKafkaBrokers, &cmder.kafkaBrokers)
	config.AddStringFlag(cmd, config.Flags, config.FlagKafkaTopic, &cmder.kafkaTopic)
	config.AddStringFlag(cmd, config.Flags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, config.Flags, config.FlagPostgres, &cmder.postgresDSN)
	config.AddUintFlag(cmd, config.Flags, config.FlagWorkers, &cmder.workers)
	config.AddUintFlag(cmd, config.Flags, config.FlagQueueSize, &cmder.queueSize)

	cmd.MarkFlagsMutuallyExclusive("device", "mine")

	return cmd
}

// logger returns the terminal logger, fanned out to a JSON log file when
// --log-file is set.
func (c *listenCommander) logger(cmd *cobra.Command) (*slog.Logger, func(), error) {
	term := session.Logger(cmd)
	if c.logFile == "" {
		return term, func() {}, nil
	}

	f, err := os.OpenFile(c.logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}

	file := logger.New(
		logger.WithDebug(c.debug),
		logger.WithJSON(true),
		logger.WithWriter(f),
	)

	return logger.Multi(term, file), func() { _ = f.Close() }, nil
}

func (c *listenCommander) run(ctx context.Context, sess *session.Session, out io.Writer) error {
	delay, err := time.ParseDuration(c.reconnectDelay)
	if err != nil {
		return fmt.Errorf("invalid reconnect delay %q: %w", c.reconnectDelay, err)
	}
	if delay < 0 {
		return fmt.Errorf("reconnect delay must not be negative, got %s", delay)
	}

	if err := sess.RequireLogin(ctx); err != nil {
		return err
	}

	fwd, err := c.newForwarder(ctx, sess.Logger)
	if err != nil {
		return err
	}
	defer fwd.Close()

	for attempt := 1; ; attempt++ {
		err := c.listenOnce(ctx, sess, fwd, out)
		if ctx.Err() != nil {
			return nil
		}
		if !c.reconnect {
			return session.Describe(err)
		}

		if cloud.IsAuthError(err) {
			if rerr := sess.Refresh(ctx); rerr != nil {
				return errors.Join(session.Describe(err), rerr)
			}
		}

		sess.Logger.Warn("event stream ended, reconnecting",
			"error", err,
			"delay", delay,
			"attempt", attempt,
		)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

// listenOnce opens one stream session and blocks until it ends.
func (c *listenCommander) listenOnce(ctx context.Context, sess *session.Session, fwd *forwarder, out io.Writer) error {
	stream, err := c.subscribe(sess.Cloud, out)
	if err != nil {
		return err
	}
	defer func() { _ = stream.Dispose() }()

	source := eventstream.EventSource{
		StreamURL: stream.URL(),
		Prefix:    c.prefix,
		DeviceID:  c.deviceID,
	}

	if err := stream.OnOpen(func() {
		fmt.Fprintf(out, "  %s Listening to %s\n", cliui.SuccessMark, cliui.StepStyle.Render(source.StreamURL))
	}); err != nil {
		return err
	}

	if err := stream.OnError(func(err error) {
		sess.Logger.Warn("event stream error", "error", err)
	}); err != nil {
		return err
	}

	if err := stream.OnMessage(func(ev *particle.Event) {
		if !c.raw {
			fmt.Fprintln(out, cliui.FormatEvent(ev))
		}
		fwd.Forward(eventstream.NewDeviceEventReceived(ev, source, time.Now()))
	}); err != nil {
		return err
	}

	return stream.Start(ctx)
}

func (c *listenCommander) subscribe(client *cloud.Client, out io.Writer) (*eventsource.Client, error) {
	var opts []eventsource.Option
	if c.raw {
		opts = append(opts, eventsource.WithTee(out))
	}

	switch {
	case c.deviceID != "":
		return client.SubscribeToDeviceEventsWithPrefix(c.deviceID, c.prefix, opts...)
	case c.mine || c.prefix == "":
		return client.SubscribeToMyDevicesEventsWithPrefix(c.prefix, opts...)
	default:
		return client.SubscribeToAllEventsWithPrefix(c.prefix, opts...)
	}
}
