package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"hostelops/internal/database"
	"hostelops/internal/identity"
	"hostelops/internal/models"
	"hostelops/internal/scope"
	"hostelops/pkg/config"
	apperrors "hostelops/pkg/errors"
	"hostelops/pkg/logger"
	"hostelops/pkg/metrics"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Resource kinds accepted by CheckLimit
const (
	ResourceTenants = "tenants"
	ResourceRooms   = "rooms"
	featurePrefix   = "feature:"
)

// FeatureResource names a feature flag as a resource kind
func FeatureResource(name string) string {
	return featurePrefix + name
}

// Limit names reported in LimitError
const (
	LimitMaxTenants = "max_tenants"
	LimitMaxRooms   = "max_rooms"
)

// SubscriptionService evaluates plan limits and manages the subscription
// lifecycle of each hostel.
type SubscriptionService struct {
	clock
	db       *gorm.DB
	freeTier config.FreeTierConfig
}

func NewSubscriptionService(db *gorm.DB, freeTier config.FreeTierConfig) *SubscriptionService {
	return &SubscriptionService{db: db, freeTier: freeTier}
}

// freeLimits is the conservative default for hostels without an ACTIVE subscription
func (s *SubscriptionService) freeLimits() models.Limits {
	maxTenants := s.freeTier.MaxTenants
	maxRooms := s.freeTier.MaxRooms
	l := models.Limits{
		Source:     "free_tier",
		MaxTenants: &maxTenants,
		MaxRooms:   &maxRooms,
		Features:   map[string]bool{},
	}
	for _, f := range s.freeTier.Features {
		l.Features[f] = true
	}
	return l
}

// activeSubscription returns the hostel's ACTIVE subscription whose end date
// has not passed, or nil.
func (s *SubscriptionService) activeSubscription(tx *gorm.DB, hostelID uint) (*models.Subscription, error) {
	var sub models.Subscription
	err := tx.Where("hostel_id = ? AND status = ?", hostelID, models.SubscriptionStatusActive).
		Where("end_date IS NULL OR end_date >= ?", s.now()).
		Order("start_date DESC").
		First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// Limits resolves the effective limits of a hostel
func (s *SubscriptionService) Limits(tx *gorm.DB, hostelID uint) (models.Limits, error) {
	sub, err := s.activeSubscription(tx, hostelID)
	if err != nil {
		return models.Limits{}, err
	}
	if sub == nil {
		return s.freeLimits(), nil
	}
	return sub.Limits(), nil
}

// CheckLimit must run inside the transaction that performs the creation.
// Count checks lock the hostel row so concurrent creations serialize.
func (s *SubscriptionService) CheckLimit(tx *gorm.DB, hostelID uint, kind string, delta int) error {
	if strings.HasPrefix(kind, featurePrefix) {
		return s.checkFeature(tx, hostelID, strings.TrimPrefix(kind, featurePrefix))
	}
	if delta < 1 {
		return apperrors.Invalidf("requested delta must be positive")
	}

	if _, err := lockLiveHostel(tx, hostelID); err != nil {
		return err
	}
	limits, err := s.Limits(tx, hostelID)
	if err != nil {
		return err
	}

	var (
		limitName  string
		maxAllowed *int
		current    int64
	)
	switch kind {
	case ResourceTenants:
		limitName, maxAllowed = LimitMaxTenants, limits.MaxTenants
		err = tx.Model(&models.TenantProfile{}).Where("hostel_id = ?", hostelID).Count(&current).Error
	case ResourceRooms:
		limitName, maxAllowed = LimitMaxRooms, limits.MaxRooms
		err = tx.Model(&models.Room{}).Where("hostel_id = ?", hostelID).Count(&current).Error
	default:
		return apperrors.Invalidf("unknown resource kind %q", kind)
	}
	if err != nil {
		return err
	}

	if maxAllowed != nil && current+int64(delta) > int64(*maxAllowed) {
		metrics.LimitDenials.WithLabelValues(limitName).Inc()
		logger.GetLogger().WithFields(logrus.Fields{
			"hostel_id": hostelID,
			"limit":     limitName,
			"current":   current,
			"max":       *maxAllowed,
		}).Info("creation rejected by subscription limit")
		return &apperrors.LimitError{LimitName: limitName, Current: current, Max: int64(*maxAllowed)}
	}
	return nil
}

func (s *SubscriptionService) checkFeature(tx *gorm.DB, hostelID uint, feature string) error {
	if feature == "" {
		return apperrors.Invalidf("feature name is required")
	}
	limits, err := s.Limits(tx, hostelID)
	if err != nil {
		return err
	}
	if !limits.FeatureEnabled(feature) {
		metrics.LimitDenials.WithLabelValues(FeatureResource(feature)).Inc()
		return apperrors.Deniedf(apperrors.ReasonFeatureDisabled, "feature %s is not enabled for this hostel", feature).
			WithDetail("feature", feature).
			WithDetail("source", limits.Source)
	}
	return nil
}

// ========== Plan catalogue ==========

// PlanInput create/update payload
type PlanInput struct {
	Name        string          `json:"name" validate:"required,min=2,max=100"`
	Tier        string          `json:"tier" validate:"required,oneof=FREE STANDARD PREMIUM"`
	Description *string         `json:"description"`
	MaxTenants  *int            `json:"max_tenants" validate:"omitempty,min=0"`
	MaxRooms    *int            `json:"max_rooms" validate:"omitempty,min=0"`
	Features    map[string]bool `json:"features"`
	IsActive    *bool           `json:"is_active"`
}

func featureMap(in map[string]bool) datatypes.JSONMap {
	m := datatypes.JSONMap{}
	for k, v := range in {
		m[k] = v
	}
	return m
}

func (s *SubscriptionService) CreatePlan(ctx context.Context, id *identity.Identity, in PlanInput) (*models.Plan, error) {
	if _, err := authorize(id, s.now(), scope.ActionCreate, scope.EntityPlan, nil); err != nil {
		return nil, err
	}
	if err := validateInput(in); err != nil {
		return nil, err
	}

	plan := &models.Plan{
		Name:        in.Name,
		Tier:        in.Tier,
		Description: in.Description,
		MaxTenants:  in.MaxTenants,
		MaxRooms:    in.MaxRooms,
		Features:    featureMap(in.Features),
		IsActive:    true,
	}
	err := database.RunInTx(ctx, s.db, func(tx *gorm.DB) error {
		if err := tx.Create(plan).Error; err != nil {
			return duplicate(err, "plan tier %s already exists", in.Tier)
		}
		if in.IsActive != nil && !*in.IsActive {
			plan.IsActive = false
			if err := tx.Model(plan).Update("is_active", false).Error; err != nil {
				return err
			}
		}
		return writeAudit(tx, id, 0, scope.EntityPlan, plan.ID, models.AuditActionCreate, plan)
	})
	if err != nil {
		return nil, err
	}
	return plan, nil
}

// UpdatePlan edits the catalogue entry. Active subscriptions keep their
// snapshot until renewed.
func (s *SubscriptionService) UpdatePlan(ctx context.Context, id *identity.Identity, planID uint, in PlanInput) (*models.Plan, error) {
	if _, err := authorize(id, s.now(), scope.ActionUpdate, scope.EntityPlan, nil); err != nil {
		return nil, err
	}
	if err := validateInput(in); err != nil {
		return nil, err
	}

	var plan models.Plan
	err := database.RunInTx(ctx, s.db, func(tx *gorm.DB) error {
		if err := database.ForUpdate(tx).First(&plan, planID).Error; err != nil {
			return notFound(err, "plan %d not found", planID)
		}
		plan.Name = in.Name
		plan.Tier = in.Tier
		plan.Description = in.Description
		plan.MaxTenants = in.MaxTenants
		plan.MaxRooms = in.MaxRooms
		plan.Features = featureMap(in.Features)
		if in.IsActive != nil {
			plan.IsActive = *in.IsActive
		}
		// Select so nil maxima and false flags are written too
		err := tx.Model(&plan).
			Select("name", "tier", "description", "max_tenants", "max_rooms", "features", "is_active").
			Updates(&plan).Error
		if err != nil {
			return duplicate(err, "plan tier %s already exists", in.Tier)
		}
		return writeAudit(tx, id, 0, scope.EntityPlan, plan.ID, models.AuditActionUpdate, plan)
	})
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

// ListPlans is open to every authenticated admin
func (s *SubscriptionService) ListPlans(ctx context.Context, id *identity.Identity) ([]models.Plan, error) {
	if _, err := authorize(id, s.now(), scope.ActionList, scope.EntityPlan, nil); err != nil {
		return nil, err
	}
	var plans []models.Plan
	if err := s.db.WithContext(ctx).Order("id").Find(&plans).Error; err != nil {
		return nil, err
	}
	return plans, nil
}

// ========== Subscription lifecycle ==========

// ActivateInput starts a subscription on a hostel
type ActivateInput struct {
	HostelID  uint       `json:"hostel_id" validate:"required"`
	PlanID    uint       `json:"plan_id" validate:"required"`
	StartDate *time.Time `json:"start_date"`
	EndDate   *time.Time `json:"end_date"`
	AutoRenew bool       `json:"auto_renew"`
}

// ActivateSubscription replaces the hostel's ACTIVE subscription with a new
// one carrying the plan's current limits.
func (s *SubscriptionService) ActivateSubscription(ctx context.Context, id *identity.Identity, in ActivateInput) (*models.Subscription, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	if _, err := authorize(id, s.now(), scope.ActionCreate, scope.EntitySubscription, &in.HostelID); err != nil {
		return nil, err
	}
	now := s.now()
	start := now
	if in.StartDate != nil {
		start = *in.StartDate
	}
	if in.EndDate != nil && !in.EndDate.After(start) {
		return nil, apperrors.Invalidf("end_date must be after start_date")
	}

	var sub models.Subscription
	err := database.RunInTx(ctx, s.db, func(tx *gorm.DB) error {
		if _, err := lockLiveHostel(tx, in.HostelID); err != nil {
			return err
		}
		var plan models.Plan
		if err := tx.First(&plan, in.PlanID).Error; err != nil {
			return notFound(err, "plan %d not found", in.PlanID)
		}
		if !plan.IsActive {
			return apperrors.Conflictf(apperrors.ReasonInvalidTransition, "plan %s is not active", plan.Tier)
		}

		err := tx.Model(&models.Subscription{}).
			Where("hostel_id = ? AND status = ?", in.HostelID, models.SubscriptionStatusActive).
			Updates(map[string]interface{}{"status": models.SubscriptionStatusCancelled, "cancelled_at": now}).Error
		if err != nil {
			return err
		}

		sub = models.Subscription{
			HostelID:  in.HostelID,
			Status:    models.SubscriptionStatusActive,
			StartDate: start,
			EndDate:   in.EndDate,
			AutoRenew: in.AutoRenew,
		}
		sub.Snapshot(&plan)
		if err := tx.Create(&sub).Error; err != nil {
			return err
		}
		sub.Plan = &plan
		return writeAudit(tx, id, in.HostelID, scope.EntitySubscription, sub.ID, models.AuditActionActivate, sub)
	})
	if err != nil {
		return nil, err
	}
	logger.GetLogger().WithFields(logrus.Fields{
		"hostel_id":       in.HostelID,
		"subscription_id": sub.ID,
		"plan":            sub.Plan.Tier,
	}).Info("subscription activated")
	return &sub, nil
}

// Renew re-snapshots the limits from the plan's current definition and
// optionally moves the end date.
func (s *SubscriptionService) Renew(ctx context.Context, id *identity.Identity, subscriptionID uint, newEnd *time.Time) (*models.Subscription, error) {
	if _, err := authorize(id, s.now(), scope.ActionUpdate, scope.EntitySubscription, nil); err != nil {
		return nil, err
	}
	now := s.now()
	if newEnd != nil && !newEnd.After(now) {
		return nil, apperrors.Invalidf("end_date must be in the future")
	}

	var sub models.Subscription
	err := database.RunInTx(ctx, s.db, func(tx *gorm.DB) error {
		if err := database.ForUpdate(tx).First(&sub, subscriptionID).Error; err != nil {
			return notFound(err, "subscription %d not found", subscriptionID)
		}
		if _, err := lockLiveHostel(tx, sub.HostelID); err != nil {
			return err
		}
		switch sub.Status {
		case models.SubscriptionStatusCancelled:
			return apperrors.Conflictf(apperrors.ReasonTerminalState, "subscription %d is cancelled", sub.ID)
		case models.SubscriptionStatusExpired:
			var other int64
			err := tx.Model(&models.Subscription{}).
				Where("hostel_id = ? AND status = ? AND id <> ?", sub.HostelID, models.SubscriptionStatusActive, sub.ID).
				Count(&other).Error
			if err != nil {
				return err
			}
			if other > 0 {
				return apperrors.Conflictf(apperrors.ReasonInvalidTransition, "hostel %d already has an active subscription", sub.HostelID)
			}
		}

		if newEnd == nil && sub.EndDate != nil && !sub.EndDate.After(now) {
			return apperrors.Invalidf("end_date is required to renew a lapsed subscription")
		}

		var plan models.Plan
		if err := tx.First(&plan, sub.PlanID).Error; err != nil {
			return notFound(err, "plan %d not found", sub.PlanID)
		}
		sub.Snapshot(&plan)
		sub.Status = models.SubscriptionStatusActive
		sub.LastRenewedAt = &now
		if newEnd != nil {
			sub.EndDate = newEnd
		}
		err := tx.Model(&sub).
			Select("status", "max_tenants", "max_rooms", "features", "end_date", "last_renewed_at").
			Updates(&sub).Error
		if err != nil {
			return err
		}
		sub.Plan = &plan
		return writeAudit(tx, id, sub.HostelID, scope.EntitySubscription, sub.ID, models.AuditActionUpdate, sub)
	})
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// Cancel ends an ACTIVE subscription; the hostel falls back to the free tier
func (s *SubscriptionService) Cancel(ctx context.Context, id *identity.Identity, subscriptionID uint) (*models.Subscription, error) {
	if _, err := authorize(id, s.now(), scope.ActionUpdate, scope.EntitySubscription, nil); err != nil {
		return nil, err
	}
	now := s.now()

	var sub models.Subscription
	err := database.RunInTx(ctx, s.db, func(tx *gorm.DB) error {
		if err := database.ForUpdate(tx).First(&sub, subscriptionID).Error; err != nil {
			return notFound(err, "subscription %d not found", subscriptionID)
		}
		if sub.Status != models.SubscriptionStatusActive {
			return apperrors.Conflictf(apperrors.ReasonInvalidTransition, "subscription %d is %s", sub.ID, sub.Status)
		}
		sub.Status = models.SubscriptionStatusCancelled
		sub.CancelledAt = &now
		if err := tx.Model(&sub).Select("status", "cancelled_at").Updates(&sub).Error; err != nil {
			return err
		}
		return writeAudit(tx, id, sub.HostelID, scope.EntitySubscription, sub.ID, models.AuditActionCancel, nil)
	})
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// GetActive returns the hostel's current subscription, NotFound on the free tier
func (s *SubscriptionService) GetActive(ctx context.Context, id *identity.Identity, hostelID *uint) (*models.Subscription, error) {
	d, err := authorize(id, s.now(), scope.ActionRead, scope.EntitySubscription, hostelID)
	if err != nil {
		return nil, err
	}
	hid, err := requireHostel(d)
	if err != nil {
		return nil, err
	}
	sub, err := s.activeSubscription(s.db.WithContext(ctx).Preload("Plan"), hid)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, apperrors.NotFoundf("hostel %d has no active subscription", hid)
	}
	return sub, nil
}

// UsageReport current usage against the effective limits
type UsageReport struct {
	HostelID       uint            `json:"hostel_id"`
	Source         string          `json:"source"`
	SubscriptionID *uint           `json:"subscription_id,omitempty"`
	CurrentTenants int64           `json:"current_tenants"`
	MaxTenants     *int            `json:"max_tenants"`
	TenantUsagePct *float64        `json:"tenant_usage_pct"`
	CurrentRooms   int64           `json:"current_rooms"`
	MaxRooms       *int            `json:"max_rooms"`
	RoomUsagePct   *float64        `json:"room_usage_pct"`
	Features       map[string]bool `json:"features"`
}

func usagePct(current int64, limit *int) *float64 {
	if limit == nil || *limit == 0 {
		return nil
	}
	pct := float64(current) * 100 / float64(*limit)
	return &pct
}

// Usage reports how much of the limits a hostel consumes
func (s *SubscriptionService) Usage(ctx context.Context, id *identity.Identity, hostelID *uint) (*UsageReport, error) {
	d, err := authorize(id, s.now(), scope.ActionRead, scope.EntitySubscription, hostelID)
	if err != nil {
		return nil, err
	}
	hid, err := requireHostel(d)
	if err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	sub, err := s.activeSubscription(db, hid)
	if err != nil {
		return nil, err
	}
	report := &UsageReport{HostelID: hid}
	var limits models.Limits
	if sub != nil {
		limits = sub.Limits()
		subID := sub.ID
		report.SubscriptionID = &subID
	} else {
		limits = s.freeLimits()
	}
	report.Source = limits.Source
	report.MaxTenants = limits.MaxTenants
	report.MaxRooms = limits.MaxRooms
	report.Features = limits.Features

	if err := db.Model(&models.TenantProfile{}).Where("hostel_id = ?", hid).Count(&report.CurrentTenants).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Room{}).Where("hostel_id = ?", hid).Count(&report.CurrentRooms).Error; err != nil {
		return nil, err
	}
	report.TenantUsagePct = usagePct(report.CurrentTenants, report.MaxTenants)
	report.RoomUsagePct = usagePct(report.CurrentRooms, report.MaxRooms)
	return report, nil
}

// ExpireDue moves ACTIVE subscriptions past their end date to EXPIRED
func (s *SubscriptionService) ExpireDue(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("status = ? AND end_date IS NOT NULL AND end_date < ?", models.SubscriptionStatusActive, s.now()).
		Update("status", models.SubscriptionStatusExpired)
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected > 0 {
		metrics.SweepUpdates.WithLabelValues("subscription_expiry").Add(float64(result.RowsAffected))
	}
	return result.RowsAffected, nil
}
