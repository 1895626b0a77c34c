package middleware

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/authinvite/internal/models"
)

// DatabaseRateStore keeps rate limit counters in the primary database so
// every server instance sees the same counts.
type DatabaseRateStore struct {
	db    *gorm.DB
	clock func() time.Time
}

// NewDatabaseRateStore constructs a database backed RateStore.
func NewDatabaseRateStore(db *gorm.DB) (*DatabaseRateStore, error) {
	if db == nil {
		return nil, errors.New("rate limit: db is required")
	}
	return &DatabaseRateStore{db: db, clock: time.Now}, nil
}

// Increment counts one hit for key inside a row-locking transaction.
func (s *DatabaseRateStore) Increment(ctx context.Context, key string, window time.Duration) (int, time.Duration, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if window <= 0 {
		window = time.Minute
	}

	now := s.clock()
	var counter models.RateLimitCounter

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Take(&counter, "bucket = ?", key).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			counter = models.RateLimitCounter{Key: key, Count: 1, WindowEnd: now.Add(window)}
			return tx.Create(&counter).Error
		}
		if err != nil {
			return err
		}

		if now.After(counter.WindowEnd) {
			counter.Count = 0
			counter.WindowEnd = now.Add(window)
		}
		counter.Count++
		return tx.Save(&counter).Error
	})
	if err != nil {
		return 0, 0, err
	}

	return counter.Count, counter.WindowEnd.Sub(now), nil
}

// CleanupExpired removes counters whose window has closed.
func (s *DatabaseRateStore) CleanupExpired(ctx context.Context) (int64, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	res := s.db.WithContext(ctx).Where("window_end < ?", s.clock()).Delete(&models.RateLimitCounter{})
	return res.RowsAffected, res.Error
}
