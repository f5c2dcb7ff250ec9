package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/couchcryptid/tsunami-playback-service/internal/domain"
	"github.com/couchcryptid/tsunami-playback-service/internal/monitor"
	"github.com/couchcryptid/tsunami-playback-service/internal/observability"
	"github.com/couchcryptid/tsunami-playback-service/internal/playback"
	"github.com/couchcryptid/tsunami-playback-service/internal/station"
	"github.com/couchcryptid/tsunami-playback-service/internal/status"
	"github.com/spf13/cobra"
)

const maxSeriesHours = 48

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	output       string
	stationsFile string
	eventID      string
	speed        float64
	verbose      bool
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "tsunamictl",
		Short: "Offline tools for the tsunami playback service",
		Long: `Offline tools for the tsunami playback service.

Inspect historical events, compute arrival times and wave series for
stations, classify arbitrary wave-height windows, or replay an event
through the station monitor without running the server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if opts.output != "text" && opts.output != "json" {
				return fmt.Errorf("invalid --output %q: must be text or json", opts.output)
			}
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.output, "output", "o", "text", "output format (text|json)")
	flags.StringVar(&opts.stationsFile, "stations", "", "station list JSON file (default: embedded list)")
	flags.StringVarP(&opts.eventID, "event", "e", domain.DefaultEventID, "event ID")
	flags.Float64Var(&opts.speed, "wave-speed", domain.DefaultWaveSpeedKmPerMin, "wave propagation speed in km/min")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log debug output to stderr")

	root.AddCommand(
		newEventsCmd(opts),
		newArrivalsCmd(opts),
		newSeriesCmd(opts),
		newClassifyCmd(opts),
		newReplayCmd(opts),
	)
	return root
}

func (o *globalOptions) event() (domain.SeismicEvent, error) {
	ev, ok := domain.DefaultCatalog().Lookup(o.eventID)
	if !ok {
		return domain.SeismicEvent{}, fmt.Errorf("unknown event %q", o.eventID)
	}
	return ev, nil
}

func (o *globalOptions) model() domain.WaveModel {
	return domain.DefaultWaveModel().WithSpeed(o.speed)
}

func (o *globalOptions) logger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// --- events ---

func newEventsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "events",
		Short: "List the historical events available for playback",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runEvents(cmd.OutOrStdout(), opts.output)
		},
	}
}

func runEvents(w io.Writer, output string) error {
	events := domain.DefaultCatalog()
	if output == "json" {
		return writeJSON(w, events)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tMAGNITUDE\tEPICENTER\tOCCURRED\tNAME")
	for _, ev := range events {
		fmt.Fprintf(tw, "%s\t%.1f\t%.3f,%.3f\t%s\t%s\n",
			ev.ID, ev.Magnitude, ev.Epicenter.Lat, ev.Epicenter.Lon,
			ev.OccurredAt.UTC().Format(time.RFC3339), ev.Name)
	}
	return tw.Flush()
}

// --- arrivals ---

// arrival is one station's row in the arrivals table.
type arrival struct {
	StationID      string  `json:"station_id"`
	Name           string  `json:"name,omitempty"`
	Region         string  `json:"region,omitempty"`
	DistanceKm     float64 `json:"distance_km"`
	ArrivalMinutes float64 `json:"arrival_minutes"`
	PeakHeight     float64 `json:"peak_height"`
}

func newArrivalsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "arrivals",
		Short: "Show wave arrival time and peak height per station, nearest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ev, err := opts.event()
			if err != nil {
				return err
			}
			stations, err := station.Load(opts.stationsFile)
			if err != nil {
				return err
			}
			rows := computeArrivals(opts.model(), ev, stations)
			return printArrivals(cmd.OutOrStdout(), opts.output, ev, rows)
		},
	}
}

func computeArrivals(model domain.WaveModel, ev domain.SeismicEvent, stations []domain.Station) []arrival {
	rows := make([]arrival, 0, len(stations))
	for _, st := range stations {
		km := domain.GreatCircleDistanceKm(st.Geo, ev.Epicenter)
		rows = append(rows, arrival{
			StationID:      st.ID,
			Name:           st.Name,
			Region:         st.Region,
			DistanceKm:     km,
			ArrivalMinutes: model.ArrivalMinutes(st.Geo, ev.Epicenter),
			PeakHeight:     model.BaseHeight + model.PeakAmplitude(km, ev.Magnitude),
		})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].ArrivalMinutes < rows[j].ArrivalMinutes
	})
	return rows
}

func printArrivals(w io.Writer, output string, ev domain.SeismicEvent, rows []arrival) error {
	if output == "json" {
		return writeJSON(w, rows)
	}

	fmt.Fprintf(w, "%s (M%.1f)\n", ev.Name, ev.Magnitude)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STATION\tREGION\tDISTANCE_KM\tARRIVAL\tPEAK_M")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%.1f\t%s\t%.2f\n",
			r.StationID, r.Region, r.DistanceKm, formatMinutes(r.ArrivalMinutes), r.PeakHeight)
	}
	return tw.Flush()
}

// formatMinutes renders simulated minutes as h:mm.
func formatMinutes(m float64) string {
	total := int(m + 0.5)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// --- series ---

func newSeriesCmd(opts *globalOptions) *cobra.Command {
	var hours float64

	cmd := &cobra.Command{
		Use:   "series STATION_ID",
		Short: "Print a station's synthetic wave-height series for the event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if hours <= 0 || hours > maxSeriesHours {
				return fmt.Errorf("invalid --hours %v: must be in (0, %d]", hours, maxSeriesHours)
			}
			ev, err := opts.event()
			if err != nil {
				return err
			}
			stations, err := station.Load(opts.stationsFile)
			if err != nil {
				return err
			}
			st, ok := findStation(stations, args[0])
			if !ok {
				return fmt.Errorf("unknown station %q", args[0])
			}

			samples := opts.model().SeriesForEvent(st.Geo, ev, time.Duration(hours*float64(time.Hour)))
			return printSeries(cmd.OutOrStdout(), opts.output, samples)
		},
	}
	cmd.Flags().Float64Var(&hours, "hours", 4, "series length in hours")
	return cmd
}

func findStation(stations []domain.Station, id string) (domain.Station, bool) {
	for _, st := range stations {
		if st.ID == id {
			return st, true
		}
	}
	return domain.Station{}, false
}

func printSeries(w io.Writer, output string, samples []domain.WaveSample) error {
	if output == "json" {
		return writeJSON(w, samples)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MINUTE\tTIMESTAMP\tHEIGHT_M\tPERIOD\tTSUNAMI")
	for _, s := range samples {
		fmt.Fprintf(tw, "%.0f\t%s\t%.3f\t%s\t%t\n",
			s.Minutes, s.Timestamp.UTC().Format(time.RFC3339), s.Height, s.Period, s.IsTsunami)
	}
	return tw.Flush()
}

// --- classify ---

func newClassifyCmd(opts *globalOptions) *cobra.Command {
	var newestFirst bool

	cmd := &cobra.Command{
		Use:   "classify HEIGHT...",
		Short: "Classify a window of wave heights in meters",
		Long: `Classify a window of wave heights in meters.

Heights are read oldest first unless --newest-first is set. Fewer than two
readings always classify as normal.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			heights, err := parseHeights(args)
			if err != nil {
				return err
			}
			order := domain.OldestFirst
			if newestFirst {
				order = domain.NewestFirst
			}
			return printClassification(cmd.OutOrStdout(), opts.output, domain.Classify(heights, order))
		},
	}
	cmd.Flags().BoolVar(&newestFirst, "newest-first", false, "heights are ordered newest reading first")
	return cmd
}

func parseHeights(args []string) ([]float64, error) {
	heights := make([]float64, len(args))
	for i, a := range args {
		h, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return nil, fmt.Errorf("parse height %q: %w", a, err)
		}
		heights[i] = h
	}
	return heights, nil
}

func printClassification(w io.Writer, output string, res domain.SeverityResult) error {
	if output == "json" {
		return writeJSON(w, res)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "level\t%s\n", res.Level)
	fmt.Fprintf(tw, "alert\t%t\n", res.IsAlert)
	fmt.Fprintf(tw, "current_height\t%.3f\n", res.CurrentHeight)
	fmt.Fprintf(tw, "percent_change\t%.1f\n", res.PercentChange)
	fmt.Fprintf(tw, "trailing_average\t%.3f\n", res.TrailingAverage)
	fmt.Fprintf(tw, "rising\t%t\n", res.Rising)
	return tw.Flush()
}

// --- replay ---

// replayChange is one station level change observed during a replay.
type replayChange struct {
	Minute    float64              `json:"minute"`
	StationID string               `json:"station_id"`
	Level     domain.SeverityLevel `json:"level"`
	Height    float64              `json:"height"`
	Timestamp time.Time            `json:"timestamp"`
}

// changeRecorder is the monitor notifier used during a replay.
type changeRecorder struct {
	minute  float64
	changes []replayChange
}

func (r *changeRecorder) BroadcastStations(changes []domain.StationStatus) {
	for _, s := range changes {
		r.changes = append(r.changes, replayChange{
			Minute:    r.minute,
			StationID: s.StationID,
			Level:     s.Level,
			Height:    s.Height,
			Timestamp: s.Timestamp,
		})
	}
}

// stationList adapts a loaded station slice to monitor.StationSource.
type stationList []domain.Station

func (s stationList) Stations() []domain.Station { return s }

func newReplayCmd(opts *globalOptions) *cobra.Command {
	var (
		duration   float64
		alertsOnly bool
	)

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay an event through the station monitor and print level changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if duration <= 0 {
				return fmt.Errorf("invalid --duration %v: must be positive", duration)
			}
			ev, err := opts.event()
			if err != nil {
				return err
			}
			stations, err := station.Load(opts.stationsFile)
			if err != nil {
				return err
			}

			logger := opts.logger(cmd.ErrOrStderr())
			changes := replay(opts.model(), ev, stations, duration, logger)
			if alertsOnly {
				changes = onlyAlertTransitions(changes)
			}
			return printReplay(cmd.OutOrStdout(), opts.output, changes)
		},
	}
	cmd.Flags().Float64Var(&duration, "duration", playback.DefaultDuration, "simulated minutes to replay")
	cmd.Flags().BoolVar(&alertsOnly, "alerts-only", false, "omit the initial all-normal records")
	return cmd
}

// replay steps the monitor through every evaluation period of the event and
// collects the level changes it reports.
func replay(model domain.WaveModel, ev domain.SeismicEvent, stations []domain.Station, duration float64, logger *slog.Logger) []replayChange {
	recorder := &changeRecorder{}
	cache := status.New(status.DefaultTTL, max(status.DefaultMaxSize, len(stations)))
	mon := monitor.New(domain.Catalog{ev}, stationList(stations), model, cache, logger,
		observability.NewUnregisteredMetrics(), monitor.WithNotifier(recorder))

	step := model.SampleInterval.Minutes()
	for m := 0.0; m <= duration; m += step {
		recorder.minute = m
		mon.OnState(playback.State{
			CurrentEventID: ev.ID,
			CurrentSimTime: m,
			TotalDuration:  duration,
		})
	}
	logger.Debug("replay complete", "event_id", ev.ID, "stations", len(stations), "changes", len(recorder.changes))
	return recorder.changes
}

// onlyAlertTransitions drops normal records that merely restate a station's
// initial state.
func onlyAlertTransitions(changes []replayChange) []replayChange {
	alerted := make(map[string]bool)
	out := changes[:0:0]
	for _, c := range changes {
		if c.Level == domain.SeverityNormal && !alerted[c.StationID] {
			continue
		}
		alerted[c.StationID] = true
		out = append(out, c)
	}
	return out
}

func printReplay(w io.Writer, output string, changes []replayChange) error {
	if output == "json" {
		if changes == nil {
			changes = []replayChange{}
		}
		return writeJSON(w, changes)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MINUTE\tSTATION\tLEVEL\tHEIGHT_M\tTIMESTAMP")
	for _, c := range changes {
		fmt.Fprintf(tw, "%.0f\t%s\t%s\t%.3f\t%s\n",
			c.Minute, c.StationID, c.Level, c.Height, c.Timestamp.UTC().Format(time.RFC3339))
	}
	return tw.Flush()
}
