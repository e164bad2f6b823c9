package main

import (
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinicdesk/internal/config"
	"github.com/clinicdesk/clinicdesk/internal/domain/billing"
	"github.com/clinicdesk/clinicdesk/internal/domain/encounter"
	"github.com/clinicdesk/clinicdesk/internal/domain/patient"
	"github.com/clinicdesk/clinicdesk/internal/domain/pricing"
	"github.com/clinicdesk/clinicdesk/internal/domain/provisioning"
	"github.com/clinicdesk/clinicdesk/internal/domain/scheduling"
	"github.com/clinicdesk/clinicdesk/internal/domain/sequence"
	"github.com/clinicdesk/clinicdesk/internal/platform/db"
	"github.com/clinicdesk/clinicdesk/internal/platform/metrics"
	"github.com/clinicdesk/clinicdesk/internal/platform/notification"
)

// app holds the wired domain services.
type app struct {
	lifecycle *scheduling.Lifecycle
	visits    *encounter.Service
	ledger    *billing.Ledger
	labs      *billing.LabCharges
	orch      *provisioning.Orchestrator
}

type appOption func(*appDeps)

type appDeps struct {
	sink    scheduling.Submitter
	metrics *metrics.Metrics
}

func withSink(s scheduling.Submitter) appOption { return func(d *appDeps) { d.sink = s } }

func withMetrics(m *metrics.Metrics) appOption { return func(d *appDeps) { d.metrics = m } }

// buildApp wires every domain service onto pool. Without a sink no
// notifications are produced.
func buildApp(cfg *config.Config, pool db.Pool, logger zerolog.Logger, opts ...appOption) (*app, error) {
	var d appDeps
	for _, o := range opts {
		o(&d)
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	tx := db.NewTxManager(pool)
	alloc := sequence.NewAllocator(pool, cfg.PatientCodePrefix, loc)
	retry := sequence.Retrier{Attempts: cfg.AllocationRetries, Metrics: d.metrics, Logger: logger}
	prices := pricing.NewResolver()
	templates := notification.NewTemplateEngine()

	ledger := billing.NewLedger(billing.NewRepoPG(pool), alloc, tx, cfg.TxnCodePrefix, d.metrics, logger)

	deps := scheduling.Deps{
		Repo:     scheduling.NewRepoPG(pool),
		Codes:    alloc,
		Prices:   prices,
		Tx:       tx,
		Retry:    retry,
		Unlinker: ledger,
		Location: loc,
		Metrics:  d.metrics,
		Logger:   logger,
	}
	if d.sink != nil {
		deps.Events = scheduling.NewNotifier(d.sink, templates, loc, logger)
	}
	lifecycle := scheduling.NewLifecycle(deps)

	visits := encounter.NewService(encounter.NewRepoPG(pool), alloc, tx, cfg.VisitCodePrefix)
	labs := billing.NewLabCharges(visits, pricing.NewLabCatalogPG(pool), ledger, logger)

	orch := provisioning.NewOrchestrator(provisioning.Deps{
		Tx:        tx,
		Retry:     retry,
		Lifecycle: lifecycle,
		Visits:    visits,
		Ledger:    ledger,
		Patients:  patient.NewService(patient.NewRepoPG(pool), cfg.PhoneRegion),
		Sink:      d.sink,
		Templates: templates,
		Logger:    logger,
	})

	return &app{lifecycle: lifecycle, visits: visits, ledger: ledger, labs: labs, orch: orch}, nil
}

func (a *app) registerRoutes(api *echo.Group) {
	scheduling.NewHandler(a.lifecycle).RegisterRoutes(api)
	encounter.NewHandler(a.visits).RegisterRoutes(api)
	billing.NewHandler(a.ledger, a.labs).RegisterRoutes(api)
	provisioning.NewHandler(a.orch).RegisterRoutes(api)
}
