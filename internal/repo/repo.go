package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/richardliu001/transfer-ledger/internal/model"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrRevisionConflict is returned when an account row changed under a writer
// that did not hold its lock.
var ErrRevisionConflict = errors.New("optimistic lock conflict")

// RepositoryInterface restricts Repo methods so the engine can be exercised against fakes.
type RepositoryInterface interface {
	DB(ctx context.Context) *gorm.DB
	RunInTx(ctx context.Context, fn func(tx *gorm.DB) error) error

	FindTransactionByKey(ctx context.Context, tx *gorm.DB, key string) (*model.Transaction, error)
	FindTransactionByKeyForUpdate(ctx context.Context, tx *gorm.DB, key string) (*model.Transaction, error)
	CreateTransaction(ctx context.Context, tx *gorm.DB, t *model.Transaction) error
	SaveTransaction(ctx context.Context, tx *gorm.DB, t *model.Transaction) error

	GetAccountForUpdate(ctx context.Context, tx *gorm.DB, number string) (*model.Account, error)
	UpdateAccountBalance(ctx context.Context, tx *gorm.DB, accountID uuid.UUID, newBalance decimal.Decimal, oldRevision uint64) error
	CreateLedgerEntries(ctx context.Context, tx *gorm.DB, entries []model.LedgerEntry) error

	CreateOutboxEvent(ctx context.Context, tx *gorm.DB, evt *model.OutboxEvent) error
	PollOutbox(ctx context.Context, limit int) ([]model.OutboxEvent, error)
	MarkOutboxProcessed(ctx context.Context, id uint64) error
}

// Repository implements RepositoryInterface on gorm.
type Repository struct {
	db          *gorm.DB
	log         *zap.SugaredLogger
	lockTimeout time.Duration
}

// Option customizes a Repository.
type Option func(*Repository)

// WithLockTimeout bounds row-lock waits inside RunInTx on PostgreSQL.
func WithLockTimeout(d time.Duration) Option {
	return func(r *Repository) { r.lockTimeout = d }
}

// NewRepository constructs repo.
func NewRepository(db *gorm.DB, logger *zap.SugaredLogger, opts ...Option) *Repository {
	r := &Repository{db: db, log: logger}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// DB returns underlying *gorm.DB
func (r *Repository) DB(ctx context.Context) *gorm.DB { return r.db.WithContext(ctx) }

func (r *Repository) postgres() bool { return r.db.Dialector.Name() == "postgres" }

// RunInTx runs fn as one atomic unit at READ COMMITTED. On PostgreSQL the unit's
// lock waits are bounded by the configured lock timeout.
func (r *Repository) RunInTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	var opts []*sql.TxOptions
	if r.postgres() {
		opts = append(opts, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if r.postgres() && r.lockTimeout > 0 {
			stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds())
			if err := tx.Exec(stmt).Error; err != nil {
				return fmt.Errorf("set lock_timeout: %w", err)
			}
		}
		return fn(tx)
	}, opts...)
}

// FindTransactionByKey returns nil, nil when the key has never been used.
func (r *Repository) FindTransactionByKey(ctx context.Context, tx *gorm.DB, key string) (*model.Transaction, error) {
	return r.findTransaction(ctx, tx, key, false)
}

// FindTransactionByKeyForUpdate is FindTransactionByKey holding the row lock.
func (r *Repository) FindTransactionByKeyForUpdate(ctx context.Context, tx *gorm.DB, key string) (*model.Transaction, error) {
	return r.findTransaction(ctx, tx, key, true)
}

func (r *Repository) findTransaction(ctx context.Context, tx *gorm.DB, key string, lock bool) (*model.Transaction, error) {
	q := tx.WithContext(ctx)
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var t model.Transaction
	err := q.Where("idempotency_key = ?", key).Take(&t).Error
	if err == nil {
		return &t, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return nil, Classify(err)
}

// CreateTransaction inserts record. A concurrent insert of the same key yields ErrDuplicateKey.
func (r *Repository) CreateTransaction(ctx context.Context, tx *gorm.DB, t *model.Transaction) error {
	return Classify(tx.WithContext(ctx).Omit(clause.Associations).Create(t).Error)
}

// SaveTransaction writes status, error message and completion time.
func (r *Repository) SaveTransaction(ctx context.Context, tx *gorm.DB, t *model.Transaction) error {
	res := tx.WithContext(ctx).Model(&model.Transaction{}).
		Where("id = ?", t.ID).
		Updates(map[string]interface{}{
			"status":        t.Status,
			"error_message": t.ErrorMessage,
			"completed_at":  t.CompletedAt,
		})
	if res.Error != nil {
		return Classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("transaction %s: %w", t.ID, gorm.ErrRecordNotFound)
	}
	return nil
}

// GetAccountForUpdate locks the account row until the enclosing unit ends.
func (r *Repository) GetAccountForUpdate(ctx context.Context, tx *gorm.DB, number string) (*model.Account, error) {
	var a model.Account
	if err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("account_number = ?", number).Take(&a).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, Classify(err)
	}
	return &a, nil
}

// UpdateAccountBalance with optimistic lock.
func (r *Repository) UpdateAccountBalance(ctx context.Context, tx *gorm.DB, accountID uuid.UUID, newBalance decimal.Decimal, oldRevision uint64) error {
	res := tx.WithContext(ctx).
		Model(&model.Account{}).
		Where("id = ? AND revision = ?", accountID, oldRevision).
		Updates(map[string]interface{}{
			"balance":    newBalance,
			"revision":   oldRevision + 1,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return Classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrRevisionConflict
	}
	return nil
}

// CreateLedgerEntries inserts the legs of one transfer.
func (r *Repository) CreateLedgerEntries(ctx context.Context, tx *gorm.DB, entries []model.LedgerEntry) error {
	return Classify(tx.WithContext(ctx).Omit(clause.Associations).Create(&entries).Error)
}

// CreateOutboxEvent writes event.
func (r *Repository) CreateOutboxEvent(ctx context.Context, tx *gorm.DB, evt *model.OutboxEvent) error {
	return Classify(tx.WithContext(ctx).Create(evt).Error)
}

// PollOutbox pulls unprocessed events.
func (r *Repository) PollOutbox(ctx context.Context, limit int) ([]model.OutboxEvent, error) {
	var evts []model.OutboxEvent
	err := r.db.WithContext(ctx).Where("processed = ?", false).Order("created_at, id").Limit(limit).Find(&evts).Error
	return evts, err
}

// MarkOutboxProcessed sets processed flag.
func (r *Repository) MarkOutboxProcessed(ctx context.Context, id uint64) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&model.OutboxEvent{}).Where("id = ?", id).
		Updates(map[string]interface{}{"processed": true, "processed_at": &now}).Error
}
