package database

import (
	"context"
	"errors"
	"time"

	"github.com/lernio/gatekeeper/internal/flows"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AdminRequestRepository implements flows.AdminRequestRepository on gorm.
type AdminRequestRepository struct {
	db *gorm.DB
}

func NewAdminRequestRepository(db *gorm.DB) *AdminRequestRepository {
	return &AdminRequestRepository{db: db}
}

func toRecord(m *AdminRequestModel) *flows.AdminRequestRecord {
	return &flows.AdminRequestRecord{
		ID:        m.ID,
		Email:     m.Email,
		FullName:  m.FullName,
		Reason:    m.Reason,
		Status:    m.Status,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func (r *AdminRequestRepository) FindByEmail(ctx context.Context, email string) (*flows.AdminRequestRecord, error) {
	var m AdminRequestModel
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&m).Error; err != nil {
		return nil, translate(err)
	}
	return toRecord(&m), nil
}

func (r *AdminRequestRepository) FindByID(ctx context.Context, id string) (*flows.AdminRequestRecord, error) {
	var m AdminRequestModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, translate(err)
	}
	return toRecord(&m), nil
}

func (r *AdminRequestRepository) AdminExists(ctx context.Context, email string) (bool, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&AdminModel{}).Where("email = ?", email).Count(&n).Error; err != nil {
		return false, translate(err)
	}
	return n > 0, nil
}

func (r *AdminRequestRepository) Create(ctx context.Context, rec *flows.AdminRequestRecord) error {
	m := AdminRequestModel{
		Base: Base{
			CreatedAt: rec.CreatedAt,
			UpdatedAt: rec.UpdatedAt,
		},
		Email:    rec.Email,
		FullName: rec.FullName,
		Reason:   rec.Reason,
		Status:   flows.AdminRequestPending,
	}
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return translate(err)
	}
	*rec = *toRecord(&m)
	return nil
}

// Approve flips the request to APPROVED and inserts the admin row in one
// transaction. The status update is conditional on PENDING, so a request
// that was decided concurrently rolls back without creating an admin.
func (r *AdminRequestRepository) Approve(ctx context.Context, id string, admin flows.NewAdminAccount, now time.Time) (*flows.AdminRequestRecord, string, error) {
	var (
		updated AdminRequestModel
		adminID string
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockRequest(tx, id, &updated); err != nil {
			return err
		}
		if updated.Status != flows.AdminRequestPending {
			return flows.ErrRequestNotPending
		}

		res := tx.Model(&AdminRequestModel{}).
			Where("id = ? AND status = ?", id, flows.AdminRequestPending).
			Updates(map[string]any{"status": flows.AdminRequestApproved, "updated_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return flows.ErrRequestNotPending
		}

		var existing int64
		if err := tx.Model(&AdminModel{}).Where("email = ?", admin.Email).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return flows.ErrAdminAlreadyExists
		}

		row := AdminModel{
			Base:               Base{CreatedAt: now, UpdatedAt: now},
			Email:              admin.Email,
			FullName:           admin.FullName,
			Password:           admin.PasswordHash,
			InvitedByID:        admin.InvitedByID,
			MustChangePassword: admin.MustChangePassword,
		}
		if err := tx.Create(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return flows.ErrAdminAlreadyExists
			}
			return err
		}
		adminID = row.ID
		updated.Status = flows.AdminRequestApproved
		updated.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, "", translate(err)
	}
	return toRecord(&updated), adminID, nil
}

// Reject is a single conditional update; zero affected rows means the
// request is missing or already decided.
func (r *AdminRequestRepository) Reject(ctx context.Context, id string, now time.Time) (*flows.AdminRequestRecord, error) {
	db := r.db.WithContext(ctx)
	res := db.Model(&AdminRequestModel{}).
		Where("id = ? AND status = ?", id, flows.AdminRequestPending).
		Updates(map[string]any{"status": flows.AdminRequestRejected, "updated_at": now})
	if res.Error != nil {
		return nil, translate(res.Error)
	}

	var m AdminRequestModel
	if err := db.Where("id = ?", id).First(&m).Error; err != nil {
		return nil, translate(err)
	}
	if res.RowsAffected == 0 {
		return nil, flows.ErrRequestNotPending
	}
	return toRecord(&m), nil
}

func (r *AdminRequestRepository) Counts(ctx context.Context) (flows.AdminRequestCounts, error) {
	var rows []struct {
		Status string
		N      int64
	}
	err := r.db.WithContext(ctx).
		Model(&AdminRequestModel{}).
		Select("status, COUNT(*) AS n").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return flows.AdminRequestCounts{}, translate(err)
	}

	var c flows.AdminRequestCounts
	for _, row := range rows {
		switch row.Status {
		case flows.AdminRequestPending:
			c.Pending = row.N
		case flows.AdminRequestApproved:
			c.Approved = row.N
		case flows.AdminRequestRejected:
			c.Rejected = row.N
		}
		c.Total += row.N
	}
	return c, nil
}

func (r *AdminRequestRepository) List(ctx context.Context, f flows.AdminRequestFilter) (flows.AdminRequestPage, error) {
	scoped := func() *gorm.DB {
		q := r.db.WithContext(ctx).Model(&AdminRequestModel{})
		if f.Status != "" {
			q = q.Where("status = ?", f.Status)
		}
		return q
	}

	var total int64
	if err := scoped().Count(&total).Error; err != nil {
		return flows.AdminRequestPage{}, translate(err)
	}

	var models []AdminRequestModel
	err := scoped().Order("created_at DESC").Order("id DESC").
		Offset((f.Page - 1) * f.PageSize).
		Limit(f.PageSize).
		Find(&models).Error
	if err != nil {
		return flows.AdminRequestPage{}, translate(err)
	}

	items := make([]flows.AdminRequestRecord, 0, len(models))
	for i := range models {
		items = append(items, *toRecord(&models[i]))
	}
	return flows.AdminRequestPage{
		Items:    items,
		Total:    total,
		Page:     f.Page,
		PageSize: f.PageSize,
	}, nil
}

// SQLite has no row locks; the conditional update still guards the
// transition there.
func lockRequest(tx *gorm.DB, id string, dst *AdminRequestModel) error {
	q := tx
	if tx.Dialector.Name() != DriverSQLite {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return q.Where("id = ?", id).First(dst).Error
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return flows.ErrRecordNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return flows.ErrDuplicateRecord
	}
	return err
}
