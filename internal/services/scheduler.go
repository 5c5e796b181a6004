package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"hostelops/pkg/config"
	"hostelops/pkg/logger"

	"github.com/robfig/cron/v3"
)

// Sweep names
const (
	SweepInvoiceOverdue     = "invoice_overdue"
	SweepSubscriptionExpiry = "subscription_expiry"
	SweepVisitorExpiry      = "visitor_expiry"
)

type sweepFunc func(ctx context.Context) (int64, error)

type sweep struct {
	name string
	spec string
	run  sweepFunc
}

// SweepScheduler runs the time-triggered state changes: invoices past due,
// subscriptions past end date and visitors past expiry.
type SweepScheduler struct {
	cron     *cron.Cron
	sweeps   []sweep
	jobs     map[string]cron.EntryID
	jobsLock sync.RWMutex
	running  bool
	timeout  time.Duration
}

func NewSweepScheduler(cfg config.SchedulerConfig, billing *BillingService, subscriptions *SubscriptionService, tenants *TenantService) *SweepScheduler {
	return &SweepScheduler{
		cron: cron.New(),
		sweeps: []sweep{
			{name: SweepInvoiceOverdue, spec: cfg.OverdueSpec, run: billing.SweepOverdue},
			{name: SweepSubscriptionExpiry, spec: cfg.SubscriptionSpec, run: subscriptions.ExpireDue},
			{name: SweepVisitorExpiry, spec: cfg.VisitorSpec, run: tenants.DeactivateExpiredVisitors},
		},
		jobs:    make(map[string]cron.EntryID),
		timeout: 5 * time.Minute,
	}
}

// Start registers every sweep with a non-empty spec and starts the cron loop
func (s *SweepScheduler) Start() error {
	if s.running {
		return fmt.Errorf("sweep scheduler already running")
	}

	for _, sw := range s.sweeps {
		if sw.spec == "" {
			logger.GetLogger().Infof("sweep %s disabled", sw.name)
			continue
		}
		sw := sw
		entryID, err := s.cron.AddFunc(sw.spec, func() {
			s.execute(sw)
		})
		if err != nil {
			return fmt.Errorf("invalid cron spec %q for sweep %s: %w", sw.spec, sw.name, err)
		}
		s.jobsLock.Lock()
		s.jobs[sw.name] = entryID
		s.jobsLock.Unlock()
	}

	s.cron.Start()
	s.running = true
	logger.GetLogger().Infof("sweep scheduler started with %d jobs", len(s.jobs))
	return nil
}

// Stop waits for running sweeps to finish
func (s *SweepScheduler) Stop() {
	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	logger.GetLogger().Info("sweep scheduler stopped")
}

func (s *SweepScheduler) execute(sw sweep) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	count, err := sw.run(ctx)
	log := logger.GetLogger().WithField("sweep", sw.name).WithField("duration", time.Since(start).String())
	if err != nil {
		log.Errorf("sweep failed: %v", err)
		return
	}
	log.WithField("updated", count).Debug("sweep finished")
}

// RunAll runs every sweep once, in order. Used by the sweep CLI command.
func (s *SweepScheduler) RunAll(ctx context.Context) (map[string]int64, error) {
	results := make(map[string]int64, len(s.sweeps))
	for _, sw := range s.sweeps {
		count, err := sw.run(ctx)
		if err != nil {
			return results, fmt.Errorf("sweep %s: %w", sw.name, err)
		}
		results[sw.name] = count
	}
	return results, nil
}

// NextRuns reports the next scheduled time of each registered sweep
func (s *SweepScheduler) NextRuns() map[string]time.Time {
	s.jobsLock.RLock()
	defer s.jobsLock.RUnlock()

	next := make(map[string]time.Time, len(s.jobs))
	for name, entryID := range s.jobs {
		if entry := s.cron.Entry(entryID); entry.ID != 0 {
			next[name] = entry.Next
		}
	}
	return next
}
