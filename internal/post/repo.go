package post

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// Repo is a Store on top of gorm. It is wired to an in-memory sqlite database,
// so records still do not outlive the process.
type Repo struct {
	db        *gorm.DB
	retention Retention
}

func NewRepo(db *gorm.DB, retention Retention) *Repo {
	return &Repo{db: db, retention: retention}
}

// Migrate creates the jobs table.
func (r *Repo) Migrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&Job{})
}

func (r *Repo) Create(ctx context.Context, job *Job) error {
	err := r.db.WithContext(ctx).Create(job.clone()).Error
	if err == nil {
		return nil
	}
	if errors.Is(r.translate(err), gorm.ErrDuplicatedKey) {
		return ErrJobExists
	}
	return err
}

// translate maps driver errors to gorm's portable ones even when the DB was
// opened without TranslateError.
func (r *Repo) translate(err error) error {
	if tr, ok := r.db.Dialector.(gorm.ErrorTranslator); ok {
		return tr.Translate(err)
	}
	return err
}

func (r *Repo) Get(ctx context.Context, id string) (*Job, error) {
	var j Job
	if err := r.db.WithContext(ctx).First(&j, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return &j, nil
}

func (r *Repo) Update(ctx context.Context, id string, fn func(*Job)) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var j Job
		if err := tx.First(&j, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrJobNotFound
			}
			return err
		}
		if j.Status.Terminal() {
			return ErrJobTerminal
		}
		createdAt := j.CreatedAt
		fn(&j)
		j.ID = id
		j.CreatedAt = createdAt

		// guard against a concurrent writer finishing the job first
		res := tx.Model(&Job{}).
			Where("id = ? AND status NOT IN ?", id, []JobStatus{JobCompleted, JobFailed}).
			Select("status", "progress", "result", "error", "updated_at").
			Updates(&j)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrJobTerminal
		}
		return nil
	})
}

func (r *Repo) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&Job{}, "id = ?", id).Error
}

func (r *Repo) Evict(ctx context.Context, now time.Time) (int, error) {
	finished := []JobStatus{JobCompleted, JobFailed}
	var removed int64

	if r.retention.TTL > 0 {
		res := r.db.WithContext(ctx).
			Where("status IN ? AND updated_at < ?", finished, now.Add(-r.retention.TTL)).
			Delete(&Job{})
		if res.Error != nil {
			return 0, res.Error
		}
		removed += res.RowsAffected
	}

	if r.retention.MaxEntries <= 0 {
		return int(removed), nil
	}

	var total int64
	if err := r.db.WithContext(ctx).Model(&Job{}).Count(&total).Error; err != nil {
		return int(removed), err
	}
	over := int(total) - r.retention.MaxEntries
	if over <= 0 {
		return int(removed), nil
	}

	var ids []string
	if err := r.db.WithContext(ctx).Model(&Job{}).
		Where("status IN ?", finished).
		Order("updated_at ASC").
		Limit(over).
		Pluck("id", &ids).Error; err != nil {
		return int(removed), err
	}
	if len(ids) == 0 {
		return int(removed), nil
	}
	res := r.db.WithContext(ctx).Where("id IN ?", ids).Delete(&Job{})
	if res.Error != nil {
		return int(removed), res.Error
	}
	return int(removed + res.RowsAffected), nil
}
