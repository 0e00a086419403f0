package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/petsync/sureflap-sync/pkg/config"
	"github.com/petsync/sureflap-sync/pkg/model"
)

// Fetch offset names in the replay store.
const (
	fetchHistory = "history"
	fetchReports = "reports"
)

// MetricsSink receives the derived per-pet metrics each cycle. Sink
// failures never fail a cycle.
type MetricsSink interface {
	WritePetMetrics(ctx context.Context, now time.Time, metrics []PetMetrics) error
}

// Orchestrator owns the session lifecycle and the poll loop: login,
// household discovery, the cycle fetches, normalization, projection and
// reconnect handling.
type Orchestrator struct {
	api      model.APIClient
	norm     *Normalizer
	proj     *Projector
	replay   ReplayStore
	warnings *SuppressionTable
	sink     MetricsSink
	logger   *slog.Logger
	cfg      config.PollConfig

	mu         sync.Mutex
	state      ConnState
	phase      SessionPhase
	caps       Capabilities
	households []model.Household
	curr       *Snapshot
	prev       *Snapshot

	loginAttempts int
	lastLoginErr  string
	lastCycleErr  string

	lastHistoryFetch   time.Time
	lastReportFetch    time.Time
	historyJustUpdated bool
}

// NewOrchestrator wires an orchestrator. sink may be nil.
func NewOrchestrator(api model.APIClient, norm *Normalizer, proj *Projector, replay ReplayStore, warnings *SuppressionTable, sink MetricsSink, cfg config.PollConfig, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		api:      api,
		norm:     norm,
		proj:     proj,
		replay:   replay,
		warnings: warnings,
		sink:     sink,
		logger:   logger,
		cfg:      cfg,
		state:    StateDisconnected,
	}
}

// State returns the current connection state.
func (o *Orchestrator) State() ConnState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Capabilities returns the device classes detected for this session.
func (o *Orchestrator) Capabilities() Capabilities {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.caps
}

// Current returns the latest completed snapshot, or nil before the
// first successful cycle.
func (o *Orchestrator) Current() *Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.curr
}

func (o *Orchestrator) setState(s ConnState) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// Run drives the session until the context is canceled. A failed login
// or cycle drops the session and retries after the reconnect delay;
// repeated identical errors are demoted to debug level so a long outage
// does not flood the log.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.restoreOffsets(ctx)

	for {
		if err := o.connect(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			o.logDeduped(&o.lastLoginErr, "connecting failed", err)
			o.setState(StateDisconnected)
			if !o.sleep(ctx, o.cfg.ReconnectDelay) {
				return ctx.Err()
			}
			continue
		}
		o.lastLoginErr = ""

		for {
			if err := o.runCycle(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				o.logDeduped(&o.lastCycleErr, "update cycle failed", err)
				o.proj.WriteConnection(ctx, false)
				o.setState(StateDisconnected)
				break
			}
			o.lastCycleErr = ""

			// The interval is armed only after the cycle completes, so
			// a slow cycle never overlaps the next one.
			if !o.sleep(ctx, o.cfg.Interval) {
				return ctx.Err()
			}
		}
	}
}

// connect runs login and household discovery and arms the bootstrap
// phase for the first cycle.
func (o *Orchestrator) connect(ctx context.Context) error {
	o.setState(StateAuthenticating)
	o.mu.Lock()
	o.loginAttempts++
	attempt := o.loginAttempts
	o.mu.Unlock()

	if err := o.api.Login(ctx); err != nil {
		return fmt.Errorf("login (attempt %d): %w", attempt, err)
	}
	o.mu.Lock()
	o.loginAttempts = 0
	o.mu.Unlock()

	o.setState(StateFetchingHouseholds)
	raw, err := o.api.Households(ctx)
	if err != nil {
		return fmt.Errorf("fetching households: %w", err)
	}
	if len(raw) == 0 {
		return fmt.Errorf("account has no households")
	}

	o.mu.Lock()
	o.households = o.norm.NormalizeHouseholds(raw)
	o.phase = PhaseBootstrapping
	o.state = StateRunning
	o.mu.Unlock()

	o.proj.WriteConnection(ctx, true)
	o.logger.Info("session established", "households", len(raw))
	return nil
}

// runCycle performs one full poll: fetch, normalize, diff, project.
func (o *Orchestrator) runCycle(ctx context.Context) error {
	o.mu.Lock()
	households := o.households
	prev := o.curr
	bootstrap := o.phase == PhaseBootstrapping
	o.mu.Unlock()

	now := time.Now()
	loc := o.norm.Location()

	devices, pets, err := o.fetchCore(ctx, households)
	if err != nil {
		return err
	}

	snap := &Snapshot{
		Households: households,
		Devices:    o.norm.NormalizeDevices(devices, prev),
		Pets:       o.norm.NormalizePets(pets),
	}

	caps := o.Capabilities()
	if bootstrap {
		caps = o.norm.DetectCapabilities(snap.Devices)
	}

	if err := o.fetchHistory(ctx, snap, prev, now, bootstrap); err != nil {
		return err
	}
	if err := o.fetchReports(ctx, snap, prev, caps, now, bootstrap); err != nil {
		return err
	}

	if bootstrap {
		if err := o.proj.EnsureHierarchy(ctx, snap, caps); err != nil {
			return fmt.Errorf("creating hierarchy: %w", err)
		}
		o.proj.WriteVersion(ctx)
	}

	o.proj.ProjectDevices(ctx, snap)
	o.proj.ProjectPets(ctx, snap, caps)
	offline, allOnline := o.norm.OfflineDevices(snap.Devices)
	o.proj.ProjectOffline(ctx, offline, allOnline)
	o.proj.ProjectHistory(ctx, snap, prev)
	metrics := o.proj.ProjectReports(ctx, snap, caps, now, loc)
	o.proj.Heartbeat(ctx, now)

	if o.sink != nil && len(metrics) > 0 {
		if err := o.sink.WritePetMetrics(ctx, now, metrics); err != nil {
			o.logger.Warn("metrics sink write failed", "error", err)
		}
	}

	o.mu.Lock()
	o.prev = prev
	o.curr = snap
	o.caps = caps
	o.phase = PhaseSteady
	o.mu.Unlock()
	return nil
}

// fetchCore loads devices per household and all pets concurrently.
func (o *Orchestrator) fetchCore(ctx context.Context, households []model.Household) ([]model.Device, []model.Pet, error) {
	perHousehold := make([][]model.Device, len(households))
	var pets []model.Pet

	g, gctx := errgroup.WithContext(ctx)
	for i := range households {
		i := i
		g.Go(func() error {
			devs, err := o.api.DevicesForHousehold(gctx, households[i].ID)
			if err != nil {
				return fmt.Errorf("fetching devices for household %d: %w", households[i].ID, err)
			}
			perHousehold[i] = devs
			return nil
		})
	}
	g.Go(func() error {
		var err error
		pets, err = o.api.Pets(gctx)
		if err != nil {
			return fmt.Errorf("fetching pets: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var devices []model.Device
	for _, devs := range perHousehold {
		devices = append(devices, devs...)
	}
	return devices, pets, nil
}

// fetchHistory pulls per-household timelines when due, carrying the
// previous cycle's events otherwise. A history failure fails the cycle.
func (o *Orchestrator) fetchHistory(ctx context.Context, snap, prev *Snapshot, now time.Time, bootstrap bool) error {
	due := bootstrap || now.Sub(o.lastHistoryFetch) >= o.cfg.HistoryEvery
	if !due {
		o.historyJustUpdated = false
		if prev != nil {
			snap.History = prev.History
		}
		return nil
	}

	history := make(map[int64][]model.HistoryEvent, len(snap.Households))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for i := range snap.Households {
		h := snap.Households[i]
		g.Go(func() error {
			events, err := o.api.HistoryForHousehold(gctx, h.ID)
			if err != nil {
				return fmt.Errorf("fetching history for household %d: %w", h.ID, err)
			}
			mu.Lock()
			history[h.ID] = events
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	snap.History = history
	o.historyJustUpdated = true
	o.lastHistoryFetch = now
	if err := o.replay.SetLastFetch(ctx, fetchHistory, now); err != nil {
		o.logger.Warn("persisting history offset failed", "error", err)
	}
	return nil
}

// fetchReports pulls per-pet aggregates when due. History and report
// fetches are staggered: a cycle that refreshed history skips reports
// unless this is the bootstrap cycle.
func (o *Orchestrator) fetchReports(ctx context.Context, snap, prev *Snapshot, caps Capabilities, now time.Time, bootstrap bool) error {
	due := caps.Any() &&
		(!o.historyJustUpdated || bootstrap) &&
		(bootstrap || now.Sub(o.lastReportFetch) >= o.cfg.ReportEvery)
	if !due {
		if prev != nil {
			snap.Reports = prev.Reports
		}
		return nil
	}

	reports := make(map[int64]*model.Report, len(snap.Pets))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for i := range snap.Pets {
		pet := snap.Pets[i]
		g.Go(func() error {
			rep, err := o.api.ReportForPet(gctx, pet.HouseholdID, pet.ID)
			if err != nil {
				return fmt.Errorf("fetching report for pet %d: %w", pet.ID, err)
			}
			mu.Lock()
			reports[pet.ID] = rep
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	snap.Reports = reports
	o.lastReportFetch = now
	if err := o.replay.SetLastFetch(ctx, fetchReports, now); err != nil {
		o.logger.Warn("persisting report offset failed", "error", err)
	}
	return nil
}

// restoreOffsets resumes the history/report stagger across restarts.
func (o *Orchestrator) restoreOffsets(ctx context.Context) {
	if t, ok, err := o.replay.LastFetch(ctx, fetchHistory); err == nil && ok {
		o.lastHistoryFetch = t
	}
	if t, ok, err := o.replay.LastFetch(ctx, fetchReports); err == nil && ok {
		o.lastReportFetch = t
	}
}

// logDeduped logs at error level, demoting consecutive repeats of the
// same message to debug.
func (o *Orchestrator) logDeduped(last *string, msg string, err error) {
	if err.Error() == *last {
		o.logger.Debug(msg, "error", err)
		return
	}
	*last = err.Error()
	o.logger.Error(msg, "error", err)
}

func (o *Orchestrator) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
