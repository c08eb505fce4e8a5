// Command brief fetches every feed once and prints the situation summary for
// a set of regions.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/jessevdk/go-flags"

	"github.com/couchcryptid/sitaware/internal/adapter/upstream"
	"github.com/couchcryptid/sitaware/internal/config"
	"github.com/couchcryptid/sitaware/internal/domain"
	"github.com/couchcryptid/sitaware/internal/engine"
	"github.com/couchcryptid/sitaware/internal/observability"
)

type options struct {
	States    []string      `short:"s" long:"state" description:"Region code to include (repeatable); omit for all regions"`
	MatchMode string        `long:"match-mode" env:"SCOPE_MATCH_MODE" default:"substring" choice:"substring" choice:"word" description:"How region names are matched in free text"`
	JSON      bool          `long:"json" description:"Print the full snapshot as JSON"`
	Timeout   time.Duration `long:"timeout" default:"60s" description:"Overall deadline for fetching all feeds"`
	LogLevel  string        `long:"log-level" env:"LOG_LEVEL" default:"warn" description:"Log level written to stderr"`
}

func main() {
	var opts options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return
		}
		os.Exit(2)
	}

	if err := run(opts, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "brief:", err)
		os.Exit(1)
	}
}

func run(opts options, out io.Writer) error {
	scope, err := domain.ParseScope(opts.States)
	if err != nil {
		return err
	}
	mode, err := domain.ParseMatchMode(opts.MatchMode)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := sharedobs.NewLogger(opts.LogLevel, "text")
	// Nothing scrapes a one-shot run, so the collectors stay unregistered.
	metrics := observability.NewMetricsForTesting()
	uo := cfg.UpstreamOptions()

	matcher := domain.DefaultMatcher()
	matcher.Mode = mode

	eng := engine.New(engine.Sources{
		Weather:      upstream.NewWeatherClient(cfg.WeatherURL, uo, logger, metrics),
		Declarations: upstream.NewDeclarationsClient(cfg.DeclarationsURL, cfg.Feeds.DeclarationsDaysBack, cfg.Feeds.DeclarationsPageSize, uo, logger, metrics),
		Wildfire:     upstream.NewWildfireClient(cfg.WildfireURL, cfg.Feeds.WildfireRecordCount, uo, logger, metrics),
		Seismic:      upstream.NewSeismicClient(cfg.SeismicURL, uo, logger, metrics),
	}, engine.Options{
		Policy:  cfg.Feeds.Policy(),
		Matcher: matcher,
		Scope:   scope,
	}, logger, metrics)

	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
	defer cancel()

	// A failed feed still leaves a usable snapshot; its summary carries the error.
	snap, refreshErr := eng.RefreshAll(ctx)

	if opts.JSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(snap); err != nil {
			return fmt.Errorf("encode snapshot: %w", err)
		}
	} else if err := printBrief(out, snap); err != nil {
		return err
	}

	if refreshErr != nil && allFailed(snap.Feeds) {
		return refreshErr
	}
	return nil
}

func allFailed(feeds []engine.FeedSummary) bool {
	for _, f := range feeds {
		if f.Status != domain.StatusError {
			return false
		}
	}
	return len(feeds) > 0
}

// briefListLen caps the fire and quake lists in text output.
const briefListLen = 10

func printBrief(out io.Writer, snap engine.Snapshot) error {
	fmt.Fprintf(out, "%s\n%s\n", snap.Banner.Title, snap.Banner.Message)

	if len(snap.NeedsAction) > 0 {
		fmt.Fprintln(out, "\nNeeds action:")
		for _, item := range snap.NeedsAction {
			fmt.Fprintf(out, "  [%s] %s\n", item.Severity, item.Headline)
			if item.Detail != "" {
				fmt.Fprintf(out, "        %s\n", item.Detail)
			}
		}
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	if groups := domain.GroupSevereAlerts(snap.Weather); len(groups) > 0 {
		fmt.Fprintln(tw, "\nSevere weather:")
		fmt.Fprintln(tw, "  EVENT\tSEVERITY\tCOUNT\tEXPIRES")
		for _, g := range groups {
			expires := "-"
			if g.SoonestExpiry != nil {
				expires = "in " + domain.TimeUntil(*g.SoonestExpiry)
			}
			fmt.Fprintf(tw, "  %s\t%s (%s)\t%d\t%s\n", g.Event, g.Severity, g.Kind, g.Count, expires)
		}
	}

	if fires := domain.LargestWildfires(snap.Wildfires, briefListLen); len(fires) > 0 {
		fmt.Fprintln(tw, "\nLargest wildfires:")
		fmt.Fprintln(tw, "  NAME\tLOCATION\tSIZE\tCONTAINED")
		for _, f := range fires {
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s (%s)\n", f.Name, fireLocation(f), domain.FormatAcres(f.Acres()), containment(f.PercentContained), domain.ContainmentKind(f.PercentContained))
		}
	}

	if quakes := domain.StrongestQuakes(snap.Quakes, briefListLen); len(quakes) > 0 {
		fmt.Fprintln(tw, "\nStrongest earthquakes:")
		fmt.Fprintln(tw, "  MAG\tPLACE\tWHEN")
		for _, q := range quakes {
			fmt.Fprintf(tw, "  M%.1f\t%s\t%s\n", q.Magnitude, q.Place, domain.TimeAgo(q.Time))
		}
	}

	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "FEED\tSTATUS\tIN SCOPE\tTOTAL\tERROR")
	for _, f := range snap.Feeds {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", f.Feed, f.Status, f.Filtered, f.Raw, f.LastError)
	}
	return tw.Flush()
}

func fireLocation(f domain.Wildfire) string {
	switch {
	case f.State == "" && f.County == "":
		return "-"
	case f.County == "":
		return f.State
	case f.State == "":
		return f.County
	default:
		return f.County + ", " + f.State
	}
}

func containment(pct *float64) string {
	if pct == nil {
		return "unknown"
	}
	return fmt.Sprintf("%g%%", *pct)
}
