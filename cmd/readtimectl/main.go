// Package main provides readtimectl, an operator CLI that works directly
// against the configured session store.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"github.com/listenupapp/readtime-server/internal/config"
	"github.com/listenupapp/readtime-server/internal/di/providers"
	"github.com/listenupapp/readtime-server/internal/domain"
	"github.com/listenupapp/readtime-server/internal/logger"
	"github.com/listenupapp/readtime-server/internal/service"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type options struct {
	flags  *config.Flags
	asJSON bool
	quiet  bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "readtimectl",
		Short:         "Inspect and maintain reading sessions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	fs := flag.NewFlagSet("readtimectl", flag.ContinueOnError)
	opts.flags = config.RegisterFlags(fs)
	root.PersistentFlags().AddGoFlagSet(fs)
	root.PersistentFlags().BoolVar(&opts.asJSON, "json", false, "Print results as JSON")
	root.PersistentFlags().BoolVarP(&opts.quiet, "quiet", "q", false, "Suppress log output")

	root.AddCommand(
		newSweepCmd(opts),
		newSessionsCmd(opts),
		newCalendarCmd(opts),
	)
	return root
}

func newSweepCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Close every open session once, as the scheduled sweeper would",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.sweeper.Sweep(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.asJSON {
				return writeJSON(out, result)
			}
			fmt.Fprintf(out, "sweep %s: scanned %d, closed %d, skipped %d, failed %d (%s)\n",
				result.RunID, result.Scanned, result.Closed, result.Skipped, result.Failed,
				result.Duration.Round(time.Millisecond))
			return nil
		},
	}
}

func newSessionsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions <user-id> <book-id>",
		Short: "Show retained sessions and the lifetime total for a user and book",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			history, err := a.sessions.ListSessions(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.asJSON {
				return writeJSON(out, history)
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "SESSION\tSTARTED\tELAPSED\tSTATE")
			for _, s := range history.Sessions {
				state := "open"
				if !s.IsOpen {
					state = string(s.CloseReason)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
					s.ID, s.CreatedAt.Format(time.RFC3339), domain.FormatReadTime(s.Elapsed), state)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "total %s over %d closed sessions\n",
				domain.FormatReadTime(history.Aggregate.TotalElapsed), history.Aggregate.SessionsClosed)
			return nil
		},
	}
}

func newCalendarCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "calendar <user-id> <YYYY-MM-DD|YYYY-MM>",
		Short: "Show daily reading for a date or every day of a month",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			var days []domain.DailyView
			if len(args[1]) == len(domain.YearMonthLayout) {
				days, err = a.calendar.MonthlyView(cmd.Context(), args[0], args[1])
			} else {
				var day *domain.DailyView
				day, err = a.calendar.DailyView(cmd.Context(), args[0], args[1])
				if day != nil {
					days = []domain.DailyView{*day}
				}
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.asJSON {
				return writeJSON(out, days)
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "DATE\tTOTAL\tSESSIONS\tBOOKS")
			for _, d := range days {
				total := d.TotalReadTime
				if d.InProgress {
					total += " (in progress)"
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\n", d.Date, total, d.SessionCount, len(d.BooksTouched))
			}
			return tw.Flush()
		},
	}
}

// app is the store, catalog and services for a single command run.
type app struct {
	store    *providers.StoreHandle
	catalog  *providers.CatalogHandle
	sessions *service.ReadingSessionService
	calendar *service.CalendarService
	sweeper  *service.Sweeper
}

func openApp(cmd *cobra.Command, opts *options) (*app, error) {
	cfg, err := opts.flags.Build()
	if err != nil {
		return nil, err
	}

	log := logger.Discard()
	if !opts.quiet {
		log = logger.New(logger.Config{
			Writer:      cmd.ErrOrStderr(),
			Level:       logger.ParseLevel(cfg.Logger.Level),
			Environment: cfg.App.Environment,
		})
	}

	st, err := providers.OpenStore(cfg, log.Logger)
	if err != nil {
		return nil, err
	}
	cat, err := providers.OpenCatalog(cfg, log.Component("catalog"), false)
	if err != nil {
		st.Close() //nolint:errcheck // already failing
		return nil, err
	}

	clock := clockwork.NewRealClock()
	retention := service.NewRetentionEnforcer(st, cfg.Sessions.RetentionMax, log.Component("retention"))
	sessions := service.NewReadingSessionService(st, cat, retention, clock, cfg.Sessions.MaxElapsed, log.Component("sessions"))

	return &app{
		store:    st,
		catalog:  cat,
		sessions: sessions,
		calendar: service.NewCalendarService(st, cat, cfg.Calendar.Location, log.Component("calendar")),
		sweeper: service.NewSweeper(st, sessions, clock, service.SweeperConfig{
			Interval: cfg.Sweeper.Interval,
			MinAge:   cfg.Sweeper.MinAge,
		}, log.Component("sweeper")),
	}, nil
}

// Close releases the catalog and store.
func (a *app) Close() {
	a.catalog.Shutdown() //nolint:errcheck // never fails
	a.store.Close()      //nolint:errcheck // best effort on exit
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
