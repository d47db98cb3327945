package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/bryanwahyu/analytics-bridge/internal/application"
	appai "github.com/bryanwahyu/analytics-bridge/internal/application/ai"
	appanalysis "github.com/bryanwahyu/analytics-bridge/internal/application/analysis"
	"github.com/bryanwahyu/analytics-bridge/internal/config"
	domai "github.com/bryanwahyu/analytics-bridge/internal/domain/ai"
	"github.com/bryanwahyu/analytics-bridge/internal/domain/incidents"
	"github.com/bryanwahyu/analytics-bridge/internal/domain/sessions"
	openaiClient "github.com/bryanwahyu/analytics-bridge/internal/infra/ai/openai"
	mysqlp "github.com/bryanwahyu/analytics-bridge/internal/infra/db/mysql"
	postgresp "github.com/bryanwahyu/analytics-bridge/internal/infra/db/postgres"
	sqlitep "github.com/bryanwahyu/analytics-bridge/internal/infra/db/sqlite"
	minioStore "github.com/bryanwahyu/analytics-bridge/internal/infra/storage"
	"github.com/bryanwahyu/analytics-bridge/internal/infra/upstream"
	"github.com/bryanwahyu/analytics-bridge/internal/middleware"
)

// app is everything the commands need, wired from config.
type app struct {
	svc    *appanalysis.Service
	aiSvc  *appai.Service
	client *upstream.Client
	db     *sql.DB
	store  *minioStore.Store
}

func (a *app) Close() {
	if a.db != nil {
		a.db.Close()
	}
}

// checks lists the health checks for /health.
func (a *app) checks() []middleware.Check {
	out := []middleware.Check{
		{Name: "analytics_service", Checker: middleware.CheckFunc(a.client.Ping)},
	}
	if a.db != nil {
		out = append(out, middleware.Check{Name: "database", Checker: &middleware.DatabaseHealthChecker{DB: a.db}, Optional: true})
	}
	if a.store != nil {
		out = append(out, middleware.Check{Name: "object_storage", Checker: middleware.CheckFunc(a.store.Ping), Optional: true})
	}
	return out
}

func buildApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*app, error) {
	gw, err := upstream.NewGateway(cfg.Upstream.BaseURL, &http.Client{}, log.With().Str("component", "upstream").Logger())
	if err != nil {
		return nil, err
	}
	client := upstream.NewClient(gw, upstream.Timeouts{
		Analyze: cfg.AnalyzeTimeout(),
		Detail:  cfg.DetailTimeout(),
		Export:  cfg.ExportTimeout(),
		List:    cfg.ListTimeout(),
	}, cfg.Upstream.HealthPath)

	a := &app{client: client}

	st, err := openStores(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.db = st.db

	if cfg.Minio.Enabled {
		a.store, err = minioStore.New(ctx,
			cfg.Minio.Endpoint,
			cfg.Minio.Region,
			cfg.Minio.BucketName,
			cfg.Minio.AccessKey,
			cfg.Minio.SecretKey,
			cfg.Minio.UseSSL,
			time.Duration(cfg.Minio.URLTTLHours)*time.Hour,
		)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("minio init: %w", err)
		}
	}

	clock := application.SystemClock{}
	incidentLog := &appanalysis.IncidentLog{Repo: st.incidents, Clock: clock, Log: log}
	metrics := middleware.Recorder{}

	a.svc = &appanalysis.Service{
		Source:   client,
		Sessions: client,
		Exporter: client,
		Matcher:  sessions.DefaultMatcher(),
		Reconciler: &appanalysis.Reconciler{
			Source:    client,
			Incidents: incidentLog,
			Metrics:   metrics,
			Log:       log.With().Str("component", "reconciler").Logger(),
		},
		Cache:     appanalysis.NewResultCache(cfg.Cache.Size),
		Sequencer: appanalysis.NewSequencer(),
		Incidents: incidentLog,
		Metrics:   metrics,
		Clock:     clock,
		Log:       log,
	}
	if a.store != nil {
		a.svc.Archive = a.store
	}

	if strings.TrimSpace(cfg.AI.APIKey) != "" {
		a.aiSvc = appai.NewService(openaiClient.NewClient(cfg.AI.APIKey, cfg.AI.Model, cfg.AI.BaseURL), cfg.AI.Model)
		a.aiSvc.Repo = st.interpretations
		a.aiSvc.Log = log.With().Str("component", "ai").Logger()
	} else {
		a.aiSvc = appai.NewService(nil, "")
	}
	return a, nil
}

// stores are the SQL-backed repositories. Both are nil when the driver is "none".
type stores struct {
	incidents       incidents.Repository
	interpretations domai.Repository
	db              *sql.DB
}

type migrator interface {
	Migrate(ctx context.Context) error
}

// openStores connects the configured database and prepares its tables.
func openStores(ctx context.Context, cfg *config.Config) (stores, error) {
	var (
		st   stores
		migs []migrator
		err  error
	)
	switch strings.ToLower(cfg.Database.Driver) {
	case "", "none":
		return st, nil
	case "sqlite":
		if st.db, err = sqlitep.Open(ctx, cfg.Database.Path); err != nil {
			return st, fmt.Errorf("sqlite open: %w", err)
		}
		st.incidents = sqlitep.NewIncidentRepository(st.db)
		st.interpretations = sqlitep.NewInterpretationRepository(st.db)
	case "mysql":
		if st.db, err = mysqlp.Connect(ctx, cfg.MySQLDSN()); err != nil {
			return st, fmt.Errorf("mysql connect: %w", err)
		}
		inc, interp := mysqlp.NewIncidentRepository(st.db), mysqlp.NewInterpretationRepository(st.db)
		st.incidents, st.interpretations = inc, interp
		migs = []migrator{inc, interp}
	case "postgres":
		if st.db, err = postgresp.Connect(ctx, cfg.PostgresDSN()); err != nil {
			return st, fmt.Errorf("postgres connect: %w", err)
		}
		inc, interp := postgresp.NewIncidentRepository(st.db), postgresp.NewInterpretationRepository(st.db)
		st.incidents, st.interpretations = inc, interp
		migs = []migrator{inc, interp}
	default:
		return st, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
	for _, m := range migs {
		if err := m.Migrate(ctx); err != nil {
			st.db.Close()
			return stores{}, fmt.Errorf("%s migrate: %w", cfg.Database.Driver, err)
		}
	}
	return st, nil
}
