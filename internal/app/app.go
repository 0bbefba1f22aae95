// Package app wires configuration, Strava access, collection and output.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/club-rides/pkg/archive"
	"github.com/Sternrassler/club-rides/pkg/auth"
	"github.com/Sternrassler/club-rides/pkg/cache"
	"github.com/Sternrassler/club-rides/pkg/client"
	"github.com/Sternrassler/club-rides/pkg/collector"
	"github.com/Sternrassler/club-rides/pkg/config"
	"github.com/Sternrassler/club-rides/pkg/events"
	"github.com/Sternrassler/club-rides/pkg/logging"
	"github.com/Sternrassler/club-rides/pkg/metrics"
	"github.com/Sternrassler/club-rides/pkg/ratelimit"
	"github.com/Sternrassler/club-rides/pkg/schedule"
	"github.com/Sternrassler/club-rides/pkg/selector"
	"github.com/Sternrassler/club-rides/pkg/server"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// TokenProvider returns a Strava access token.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// Result summarises one collection run.
type Result struct {
	Clubs          int
	Events         int
	FilteredEvents int
	AllFile        string
	CityFile       string
}

// App groups the components of one process.
type App struct {
	cfg     config.Config
	tokens  TokenProvider
	strava  *client.Client
	fetcher *client.EventFetcher
	redis   *redis.Client
	db      *sql.DB
	runs    *archive.Store

	out    io.Writer
	now    func() time.Time
	logger zerolog.Logger
}

// New sets up every component the configuration asks for. Optional
// infrastructure (Redis, archive) is only connected when configured.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	a := &App{
		cfg:    cfg,
		out:    os.Stdout,
		now:    time.Now,
		logger: logging.NewLogger("app"),
	}

	a.tokens = auth.NewTokenSource(auth.Credentials{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RefreshToken: cfg.RefreshToken,
		TokenURL:     cfg.TokenURL,
	})

	clientCfg := client.DefaultConfig()
	clientCfg.BaseURL = cfg.BaseURL
	clientCfg.UserAgent = cfg.UserAgent

	var store ratelimit.Store
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		a.redis = redis.NewClient(opts)
		if err := a.redis.Ping(ctx).Err(); err != nil {
			a.redis.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		a.logger.Info().Str("addr", opts.Addr).Msg("Connected to Redis")
		clientCfg.Cache = cache.NewManager(a.redis)
		store = ratelimit.NewRedisStore(a.redis)
	}
	clientCfg.RateLimiter = ratelimit.NewTracker(store, logging.NewLogger("ratelimit"))

	strava, err := client.New(clientCfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create strava client: %w", err)
	}
	a.strava = strava
	a.fetcher = client.NewEventFetcher(strava, strava.Directory())

	if cfg.ArchivePath != "" {
		db, err := archive.Open(cfg.ArchivePath)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.db = db
		a.runs = archive.NewStore(db)
		if err := a.runs.Init(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}

	return a, nil
}

// Close releases connections.
func (a *App) Close() error {
	var errs []error
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	return errors.Join(errs...)
}

// Run performs one collection run and reports failures with
// troubleshooting tips.
func (a *App) Run(ctx context.Context) (Result, error) {
	a.logger.Info().Msg("Starting Strava club rides collection")

	res, err := a.collect(ctx)
	if err != nil {
		metrics.RecordRun(metrics.ResultFailure, float64(a.now().Unix()), 0, 0)
		a.reportError(err)
		return res, err
	}

	metrics.RecordRun(metrics.ResultSuccess, float64(a.now().Unix()), res.Events, res.FilteredEvents)
	a.logger.Info().Msg("Strava club rides collection completed successfully")
	return res, nil
}

func (a *App) collect(ctx context.Context) (Result, error) {
	var res Result
	started := a.now()

	a.logger.Info().Msg("Authenticating with Strava API")
	token, err := a.tokens.Token(ctx)
	if err != nil {
		return res, fmt.Errorf("authenticate: %w", err)
	}

	a.logger.Info().Msg("Fetching clubs you are a member of")
	all, err := a.strava.ListClubs(ctx, token)
	if err != nil {
		return res, err
	}

	selection, err := selector.Load(a.cfg.ClubConfig)
	if err != nil {
		return res, err
	}
	clubs := selector.Filter(all, selection)
	res.Clubs = len(clubs)
	for _, c := range clubs {
		a.logger.Info().Int64("club_id", c.ID).Int("members", c.MemberCount).Msgf("- %s", c.Name)
	}

	pipeline := collector.New(a.fetcher, a.cfg.Concurrency)
	allEvents := pipeline.Collect(ctx, token, clubs)
	res.Events = len(allEvents)

	city := a.cfg.FilterCity
	filtered := events.FilterByCity(allEvents, city, a.cfg.DaysAhead, a.now())
	res.FilteredEvents = len(filtered)

	date := a.now().UTC().Format(time.DateOnly)
	if len(filtered) == 0 {
		a.logger.Info().Str("city", city).Int("days_ahead", a.cfg.DaysAhead).Msg("No events found")
	} else {
		fmt.Fprintf(a.out, "\n=== %s RIDES FOR THE NEXT %d DAYS ===\n", strings.ToUpper(city), a.cfg.DaysAhead)
		fmt.Fprint(a.out, events.Format(filtered))

		cityFile := filepath.Join(a.cfg.OutputDir, fmt.Sprintf("%s-events-%s.json", city, date))
		if events.SaveEventsToFile(filtered, cityFile) {
			res.CityFile = cityFile
		}
	}

	allFile := filepath.Join(a.cfg.OutputDir, fmt.Sprintf("all-events-%s.json", date))
	if events.SaveEventsToFile(allEvents, allFile) {
		res.AllFile = allFile
	}

	a.archiveRun(ctx, started, res)
	return res, nil
}

func (a *App) archiveRun(ctx context.Context, started time.Time, res Result) {
	if a.runs == nil {
		return
	}
	run := archive.NewRun(a.cfg.FilterCity, started)
	run.CompletedAt = a.now().UTC()
	run.Clubs = res.Clubs
	run.Events = res.Events
	run.FilteredEvents = res.FilteredEvents
	run.AllFile = filepath.Base(res.AllFile)
	if res.CityFile != "" {
		run.CityFile = filepath.Base(res.CityFile)
	}
	if err := a.runs.SaveRun(ctx, run); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to archive run")
	}
}

func (a *App) reportError(err error) {
	ev := a.logger.Error().Err(err)

	var apiErr *client.APIError
	var authErr *auth.Error
	switch {
	case errors.As(err, &apiErr):
		ev = ev.Int("status", apiErr.StatusCode).Str("endpoint", apiErr.Endpoint)
	case errors.As(err, &authErr):
		ev = ev.Int("status", authErr.StatusCode)
	}
	ev.Msg("Error running Strava club rides collection")

	a.logger.Info().Msg("Troubleshooting tips:")
	a.logger.Info().Msg("1. Check that your .env file contains the correct Strava API credentials")
	a.logger.Info().Msg("2. Ensure your refresh token is valid and not expired")
	a.logger.Info().Msg("3. Verify that you have permission to access club events")
}

// Serve runs the presentation server until ctx is cancelled. When a
// collection schedule is configured, runs are triggered in the background.
func (a *App) Serve(ctx context.Context) error {
	if err := os.MkdirAll(a.cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	if a.cfg.CollectSchedule != "" {
		sched, err := schedule.New(a.cfg.CollectSchedule, func(ctx context.Context) error {
			_, err := a.Run(ctx)
			return err
		})
		if err != nil {
			return err
		}
		go sched.Run(ctx)
	}

	srvCfg := server.Config{OutputDir: a.cfg.OutputDir, PublicDir: a.cfg.PublicDir}
	if a.runs != nil {
		srvCfg.Runs = a.runs
	}
	addr := ":" + strconv.Itoa(a.cfg.Port)
	a.logger.Info().Msgf("Open your browser and navigate to http://localhost:%d to view events", a.cfg.Port)
	return server.New(srvCfg).ListenAndServe(ctx, addr)
}

// SaveClubSelection writes the athlete's current club memberships as the
// whitelist of the club selection file and returns how many were written.
func (a *App) SaveClubSelection(ctx context.Context) (int, error) {
	token, err := a.tokens.Token(ctx)
	if err != nil {
		return 0, fmt.Errorf("authenticate: %w", err)
	}
	if err := a.strava.ForgetClubs(ctx, token); err != nil {
		a.logger.Warn().Err(err).Msg("Using possibly cached club list")
	}
	clubs, err := a.strava.ListClubs(ctx, token)
	if err != nil {
		return 0, err
	}
	base, err := selector.Load(a.cfg.ClubConfig)
	if err != nil {
		return 0, err
	}
	sel := selector.FromClubs(clubs, base)
	if err := selector.Save(a.cfg.ClubConfig, sel); err != nil {
		return 0, err
	}
	a.logger.Info().Str("path", a.cfg.ClubConfig).Int("clubs", len(sel.Include)).Msg("Saved club selection")
	return len(sel.Include), nil
}
