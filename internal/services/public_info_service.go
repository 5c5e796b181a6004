package services

import (
	"context"
	"errors"
	"time"

	"hostelops/internal/database"
	"hostelops/internal/identity"
	"hostelops/internal/models"
	"hostelops/internal/scope"

	"gorm.io/gorm"
)

// PublicInfoService serves hostel information, notices and the mess menu.
// These are the only reads open to VISITOR accounts.
type PublicInfoService struct {
	clock
	db *gorm.DB
}

func NewPublicInfoService(db *gorm.DB) *PublicInfoService {
	return &PublicInfoService{db: db}
}

// HostelInfo public view of a hostel
type HostelInfo struct {
	ID       uint    `json:"id"`
	Name     string  `json:"name"`
	Code     string  `json:"code"`
	Address  *string `json:"address"`
	City     *string `json:"city"`
	Phone    *string `json:"phone"`
	Email    *string `json:"email"`
	Timezone string  `json:"timezone"`
	Rooms    int64   `json:"rooms"`
	FreeBeds int64   `json:"free_beds"`
}

func (s *PublicInfoService) HostelInfo(ctx context.Context, id *identity.Identity, hostelID *uint) (*HostelInfo, error) {
	d, err := authorize(id, s.now(), scope.ActionRead, scope.EntityHostelInfo, hostelID)
	if err != nil {
		return nil, err
	}
	hid, err := requireHostel(d)
	if err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	var hostel models.Hostel
	if err := db.First(&hostel, hid).Error; err != nil {
		return nil, notFound(err, "hostel %d not found", hid)
	}
	info := &HostelInfo{
		ID:       hostel.ID,
		Name:     hostel.Name,
		Code:     hostel.Code,
		Address:  hostel.Address,
		City:     hostel.City,
		Phone:    hostel.Phone,
		Email:    hostel.Email,
		Timezone: hostel.Timezone,
	}
	if err := db.Model(&models.Room{}).Where("hostel_id = ?", hid).Count(&info.Rooms).Error; err != nil {
		return nil, err
	}
	err = db.Model(&models.Bed{}).
		Joins("JOIN rooms ON rooms.id = beds.room_id AND rooms.deleted_at IS NULL").
		Where("beds.hostel_id = ? AND beds.status = ?", hid, models.BedStatusFree).
		Count(&info.FreeBeds).Error
	if err != nil {
		return nil, err
	}
	return info, nil
}

// activeNotices filters out notices not yet published or already expired
func activeNotices(q *gorm.DB, now time.Time) *gorm.DB {
	return q.Where("published_at <= ?", now).
		Where("expires_at IS NULL OR expires_at > ?", now)
}

// PublicNotices notices flagged public
func (s *PublicInfoService) PublicNotices(ctx context.Context, id *identity.Identity, hostelID *uint) ([]models.Notice, error) {
	now := s.now()
	d, err := authorize(id, now, scope.ActionList, scope.EntityPublicNotice, hostelID)
	if err != nil {
		return nil, err
	}
	hid, err := requireHostel(d)
	if err != nil {
		return nil, err
	}
	var notices []models.Notice
	q := activeNotices(s.db.WithContext(ctx).Where("hostel_id = ? AND is_public = ?", hid, true), now)
	if err := q.Order("published_at DESC").Find(&notices).Error; err != nil {
		return nil, err
	}
	return notices, nil
}

// Notices every current notice of the hostel, for residents and staff
func (s *PublicInfoService) Notices(ctx context.Context, id *identity.Identity, hostelID *uint) ([]models.Notice, error) {
	now := s.now()
	d, err := authorize(id, now, scope.ActionList, scope.EntityNotice, hostelID)
	if err != nil {
		return nil, err
	}
	hid, err := requireHostel(d)
	if err != nil {
		return nil, err
	}
	var notices []models.Notice
	q := activeNotices(s.db.WithContext(ctx).Where("hostel_id = ?", hid), now)
	if err := q.Order("published_at DESC").Find(&notices).Error; err != nil {
		return nil, err
	}
	return notices, nil
}

// CreateNoticeInput notice board entry
type CreateNoticeInput struct {
	HostelID    *uint      `json:"hostel_id"`
	Title       string     `json:"title" validate:"required,max=255"`
	Content     string     `json:"content" validate:"required"`
	IsPublic    bool       `json:"is_public"`
	PublishedAt *time.Time `json:"published_at"`
	ExpiresAt   *time.Time `json:"expires_at"`
}

func (s *PublicInfoService) CreateNotice(ctx context.Context, id *identity.Identity, in CreateNoticeInput) (*models.Notice, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	now := s.now()
	d, err := authorize(id, now, scope.ActionCreate, scope.EntityNotice, in.HostelID)
	if err != nil {
		return nil, err
	}
	hid, err := requireHostel(d)
	if err != nil {
		return nil, err
	}

	notice := &models.Notice{
		HostelID:    hid,
		Title:       in.Title,
		Content:     in.Content,
		IsPublic:    in.IsPublic,
		PublishedAt: now,
		ExpiresAt:   in.ExpiresAt,
	}
	if in.PublishedAt != nil {
		notice.PublishedAt = *in.PublishedAt
	}
	err = database.RunInTx(ctx, s.db, func(tx *gorm.DB) error {
		if _, err := lockLiveHostel(tx, hid); err != nil {
			return err
		}
		if err := tx.Create(notice).Error; err != nil {
			return err
		}
		return writeAudit(tx, id, hid, scope.EntityNotice, notice.ID, models.AuditActionCreate, nil)
	})
	if err != nil {
		return nil, err
	}
	return notice, nil
}

// MessMenu the weekly menu. Visitors only see slots marked public.
func (s *PublicInfoService) MessMenu(ctx context.Context, id *identity.Identity, hostelID *uint) ([]models.MessMenu, error) {
	d, err := authorize(id, s.now(), scope.ActionList, scope.EntityMessMenu, hostelID)
	if err != nil {
		return nil, err
	}
	hid, err := requireHostel(d)
	if err != nil {
		return nil, err
	}
	q := s.db.WithContext(ctx).Where("hostel_id = ?", hid)
	if id.Role == identity.Visitor {
		q = q.Where("is_public = ?", true)
	}
	var menu []models.MessMenu
	if err := q.Order("day_of_week, meal_type").Find(&menu).Error; err != nil {
		return nil, err
	}
	return menu, nil
}

// MessMenuInput one meal slot
type MessMenuInput struct {
	HostelID  *uint  `json:"hostel_id"`
	DayOfWeek int    `json:"day_of_week" validate:"min=0,max=6"`
	MealType  string `json:"meal_type" validate:"required,oneof=BREAKFAST LUNCH SNACKS DINNER"`
	Items     string `json:"items" validate:"required"`
	IsPublic  *bool  `json:"is_public"`
}

// SetMessMenu creates or replaces the slot for (day, meal)
func (s *PublicInfoService) SetMessMenu(ctx context.Context, id *identity.Identity, in MessMenuInput) (*models.MessMenu, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	d, err := authorize(id, s.now(), scope.ActionUpdate, scope.EntityMessMenu, in.HostelID)
	if err != nil {
		return nil, err
	}
	hid, err := requireHostel(d)
	if err != nil {
		return nil, err
	}
	public := true
	if in.IsPublic != nil {
		public = *in.IsPublic
	}

	var slot models.MessMenu
	err = database.RunInTx(ctx, s.db, func(tx *gorm.DB) error {
		if _, err := lockLiveHostel(tx, hid); err != nil {
			return err
		}
		err := tx.Where("hostel_id = ? AND day_of_week = ? AND meal_type = ?", hid, in.DayOfWeek, in.MealType).First(&slot).Error
		missing := errors.Is(err, gorm.ErrRecordNotFound)
		if err != nil && !missing {
			return err
		}
		if missing {
			slot = models.MessMenu{HostelID: hid, DayOfWeek: in.DayOfWeek, MealType: in.MealType, Items: in.Items, IsPublic: true}
			if err := tx.Create(&slot).Error; err != nil {
				return err
			}
		} else {
			slot.Items = in.Items
			if err := tx.Model(&slot).Update("items", in.Items).Error; err != nil {
				return err
			}
		}
		// is_public defaults to true on insert, so a false flag is written separately
		if slot.IsPublic != public {
			slot.IsPublic = public
			if err := tx.Model(&slot).Update("is_public", public).Error; err != nil {
				return err
			}
		}
		return writeAudit(tx, id, hid, scope.EntityMessMenu, slot.ID, models.AuditActionUpdate, nil)
	})
	if err != nil {
		return nil, err
	}
	return &slot, nil
}
