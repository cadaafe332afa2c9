package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/ispanel/backend/internal/models"
)

// GormStore implements Store on a gorm connection opened with TranslateError.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func translate(op string, err error, conflict error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return &Error{Op: op, Err: ErrNotFound}
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return &Error{Op: op, Err: conflict}
	}
	return &Error{Op: op, Err: err}
}

func applyFilter(q *gorm.DB, f SubscriberFilter) *gorm.DB {
	if f.Search != "" {
		like := "%" + f.Search + "%"
		q = q.Where("username LIKE ? OR name LIKE ? OR mobile LIKE ? OR email LIKE ? OR salesperson LIKE ?",
			like, like, like, like, like)
	}
	if f.Disabled != nil {
		q = q.Where("disabled = ?", *f.Disabled)
	}
	if f.Online != nil {
		q = q.Where("online = ?", *f.Online)
	}
	if f.Package != "" {
		q = q.Where("package = ?", f.Package)
	}
	if f.ExpiresBefore != nil {
		q = q.Where("expiry_date IS NOT NULL AND expiry_date < ?", *f.ExpiresBefore)
	}
	return q
}

func (s *GormStore) Get(ctx context.Context, id uint) (*models.Subscriber, error) {
	var sub models.Subscriber
	if err := s.db.WithContext(ctx).First(&sub, id).Error; err != nil {
		return nil, translate("get subscriber", err, ErrUsernameExists)
	}
	return &sub, nil
}

func (s *GormStore) GetByUsername(ctx context.Context, username string) (*models.Subscriber, error) {
	var sub models.Subscriber
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&sub).Error; err != nil {
		return nil, translate("get subscriber by username", err, ErrUsernameExists)
	}
	return &sub, nil
}

func (s *GormStore) List(ctx context.Context, opts ListOptions) ([]models.Subscriber, int64, error) {
	var total int64
	if err := applyFilter(s.db.WithContext(ctx).Model(&models.Subscriber{}), opts.Filter).Count(&total).Error; err != nil {
		return nil, 0, translate("count subscribers", err, ErrUsernameExists)
	}

	dir := "ASC"
	if opts.SortDesc {
		dir = "DESC"
	}
	q := applyFilter(s.db.WithContext(ctx).Model(&models.Subscriber{}), opts.Filter).
		Order(fmt.Sprintf("%s %s", opts.sortColumn(), dir))
	if opts.Limit > 0 {
		q = q.Offset(opts.offset()).Limit(opts.Limit)
	}

	var subs []models.Subscriber
	if err := q.Find(&subs).Error; err != nil {
		return nil, 0, translate("list subscribers", err, ErrUsernameExists)
	}
	return subs, total, nil
}

func (s *GormStore) Create(ctx context.Context, sub *models.Subscriber) error {
	return translate("create subscriber", s.db.WithContext(ctx).Create(sub).Error, ErrUsernameExists)
}

func (s *GormStore) Update(ctx context.Context, id uint, patch *models.SubscriberPatch) (*models.Subscriber, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	if cols := patch.Columns(); len(cols) > 0 {
		err := s.db.WithContext(ctx).Model(&models.Subscriber{}).Where("id = ?", id).Updates(cols).Error
		if err != nil {
			return nil, translate("update subscriber", err, ErrUsernameExists)
		}
	}
	return s.Get(ctx, id)
}

func (s *GormStore) UpdateUsage(ctx context.Context, id uint, expect, next UsageCounters) (*models.Subscriber, bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Subscriber{}).
		Where("id = ? AND used_bytes_total = ? AND last_bytes_snapshot = ?", id, expect.Total, expect.Last).
		Updates(map[string]interface{}{
			"used_bytes_total":    next.Total,
			"last_bytes_snapshot": next.Last,
		})
	if res.Error != nil {
		return nil, false, translate("update usage", res.Error, ErrUsernameExists)
	}
	sub, err := s.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return sub, res.RowsAffected == 1, nil
}

func (s *GormStore) Delete(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&models.Subscriber{}, id)
	if res.Error != nil {
		return translate("delete subscriber", res.Error, ErrUsernameExists)
	}
	if res.RowsAffected == 0 {
		return &Error{Op: "delete subscriber", Err: ErrNotFound}
	}
	return nil
}

func (s *GormStore) Count(ctx context.Context, filter SubscriberFilter) (int64, error) {
	var n int64
	err := applyFilter(s.db.WithContext(ctx).Model(&models.Subscriber{}), filter).Count(&n).Error
	return n, translate("count subscribers", err, ErrUsernameExists)
}

func (s *GormStore) GroupByPackage(ctx context.Context) ([]models.PackageCount, error) {
	var rows []models.PackageCount
	err := s.db.WithContext(ctx).Model(&models.Subscriber{}).
		Select("package, COUNT(*) AS count").
		Group("package").
		Order("package").
		Scan(&rows).Error
	if err != nil {
		return nil, translate("group subscribers by package", err, ErrUsernameExists)
	}
	return rows, nil
}

func (s *GormStore) ListPackages(ctx context.Context) ([]models.Package, error) {
	var pkgs []models.Package
	if err := s.db.WithContext(ctx).Order("name").Find(&pkgs).Error; err != nil {
		return nil, translate("list packages", err, ErrAlreadyExists)
	}
	return pkgs, nil
}

func (s *GormStore) CreatePackage(ctx context.Context, pkg *models.Package) error {
	return translate("create package", s.db.WithContext(ctx).Create(pkg).Error, ErrAlreadyExists)
}

func (s *GormStore) GetSettings(ctx context.Context) (*models.Setting, error) {
	var st models.Setting
	if err := s.db.WithContext(ctx).Order("id DESC").First(&st).Error; err != nil {
		return nil, translate("get settings", err, ErrAlreadyExists)
	}
	return &st, nil
}

func (s *GormStore) SaveSettings(ctx context.Context, st *models.Setting) error {
	return translate("save settings", s.db.WithContext(ctx).Save(st).Error, ErrAlreadyExists)
}

func (s *GormStore) GetUser(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, translate("get user", err, ErrUsernameExists)
	}
	return &u, nil
}

func (s *GormStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&u).Error; err != nil {
		return nil, translate("get user by username", err, ErrUsernameExists)
	}
	return &u, nil
}

func (s *GormStore) CreateUser(ctx context.Context, u *models.User) error {
	return translate("create user", s.db.WithContext(ctx).Create(u).Error, ErrUsernameExists)
}

func (s *GormStore) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.User{}).Count(&n).Error
	return n, translate("count users", err, ErrUsernameExists)
}

func (s *GormStore) TouchLogin(ctx context.Context, id uint, at time.Time) error {
	err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("last_login", at).Error
	return translate("touch login", err, ErrUsernameExists)
}

var _ Store = (*GormStore)(nil)
