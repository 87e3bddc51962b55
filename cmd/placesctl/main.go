package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"fitspot/placesearch/internal/app"
	"fitspot/placesearch/internal/domain"
	"fitspot/placesearch/internal/providers/googleplaces"
	"fitspot/placesearch/internal/search"
)

// serviceFactory builds the search service a command runs against.
type serviceFactory func(cfg app.Config) (*search.Service, error)

func googleService(cfg app.Config) (*search.Service, error) {
	provider, err := googleplaces.NewProvider(googleplaces.Config{
		APIKey:   cfg.GoogleAPIKey,
		BaseURL:  cfg.GoogleBaseURL,
		Language: cfg.Language,
		Region:   cfg.Region,
	})
	if err != nil {
		return nil, err
	}
	return search.NewService(provider, cfg.RequestTimeout,
		search.WithMaxInFlight(cfg.MaxInFlight),
		search.WithTravelMode(cfg.TravelMode),
		search.WithStraightLineFallback(cfg.StraightLine),
		search.WithDefaultRadius(cfg.DefaultRadiusMeters),
		search.WithProviderRateLimit(cfg.ProviderRPS, cfg.ProviderBurst),
	), nil
}

// printer writes command output as JSON, indented when pretty is set.
type printer struct {
	out    io.Writer
	pretty bool
}

func (p *printer) print(payload any) error {
	encoder := json.NewEncoder(p.out)
	if p.pretty {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(payload)
}

func newRootCmd(out io.Writer, factory serviceFactory, prettyDefault bool) *cobra.Command {
	p := &printer{out: out}
	root := &cobra.Command{
		Use:   "placesctl",
		Short: "Query the place search pipeline from the command line",
		Long: `
placesctl runs category searches, autocomplete and detail lookups against the
configured Places provider and prints the results as JSON. Configuration comes
from the same environment variables (and .env file) as the server.
`,
		SilenceUsage: true,
	}
	var verbose bool
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log pipeline progress to stderr")
	root.PersistentFlags().BoolVar(&p.pretty, "pretty", prettyDefault, "indent JSON output (default when stdout is a terminal)")
	root.PersistentPreRun = func(_ *cobra.Command, _ []string) {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	}

	root.AddCommand(newSearchCmd(p, factory))
	root.AddCommand(newSuggestCmd(p, factory))
	root.AddCommand(newDetailsCmd(p, factory))
	return root
}

func newSearchCmd(p *printer, factory serviceFactory) *cobra.Command {
	var (
		categories []string
		origin     string
		near       string
		radius     int
	)
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search one or more categories and print the enriched list",
		Example: `  placesctl search --category gym --category pilates --origin 37.78,-122.41
  placesctl search "downtown" --near 40.71,-74.00 --radius 2000`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			request := domain.SearchRequest{Categories: categories}
			if len(args) == 1 {
				request.Query = args[0]
			}
			if origin != "" {
				c, err := parseLatLng(origin)
				if err != nil {
					return fmt.Errorf("--origin: %w", err)
				}
				request.Origin = &c
			}
			if near != "" {
				c, err := parseLatLng(near)
				if err != nil {
					return fmt.Errorf("--near: %w", err)
				}
				request.Bias = &domain.GeoBias{Center: &c, RadiusMeters: radius}
			}

			svc, err := factory(app.LoadConfig())
			if err != nil {
				return err
			}
			snapshot, err := svc.Search(cmd.Context(), request)
			if err != nil {
				return err
			}
			return p.print(snapshot)
		},
	}
	cmd.Flags().StringSliceVarP(&categories, "category", "c", nil, "category to search (repeatable)")
	cmd.Flags().StringVar(&origin, "origin", "", "lat,lng used for distances")
	cmd.Flags().StringVar(&near, "near", "", "lat,lng to search around")
	cmd.Flags().IntVar(&radius, "radius", 0, "search radius in meters with --near")
	return cmd
}

func newSuggestCmd(p *printer, factory serviceFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "suggest <input>",
		Short: "Print autocomplete suggestions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := factory(app.LoadConfig())
			if err != nil {
				return err
			}
			suggestions, err := svc.Suggest(cmd.Context(), args[0], nil)
			if err != nil {
				return err
			}
			return p.print(suggestions)
		},
	}
}

func newDetailsCmd(p *printer, factory serviceFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "details <place-id>",
		Short: "Print the detailed record of a place",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := factory(app.LoadConfig())
			if err != nil {
				return err
			}
			place, err := svc.Details(cmd.Context(), "", args[0])
			if err != nil {
				return err
			}
			return p.print(place)
		},
	}
}

func parseLatLng(raw string) (domain.Coordinate, error) {
	latRaw, lngRaw, ok := strings.Cut(raw, ",")
	if !ok {
		return domain.Coordinate{}, errors.New("expected lat,lng")
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(latRaw), 64)
	if err != nil {
		return domain.Coordinate{}, domain.ErrInvalidCoordinate
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(lngRaw), 64)
	if err != nil {
		return domain.Coordinate{}, domain.ErrInvalidCoordinate
	}
	c := domain.Coordinate{Lat: lat, Lng: lng}
	return c, c.Validate()
}

func main() {
	app.LoadEnvFiles()
	if err := newRootCmd(os.Stdout, googleService, isatty.IsTerminal(os.Stdout.Fd())).ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
