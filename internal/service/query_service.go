package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/richardliu001/transfer-ledger/internal/ledgererr"
	"github.com/richardliu001/transfer-ledger/internal/model"
	"github.com/richardliu001/transfer-ledger/internal/repo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	MaxRecentLimit = 10
	MaxPageSize    = 100
)

// TransactionView flattens a transaction and its two legs for listing.
type TransactionView struct {
	ID             uuid.UUID               `json:"id"`
	CreatedAt      time.Time               `json:"created_at"`
	CompletedAt    *time.Time              `json:"completed_at,omitempty"`
	Status         model.TransactionStatus `json:"status"`
	FromAccount    string                  `json:"from_account,omitempty"`
	ToAccount      string                  `json:"to_account,omitempty"`
	Amount         *decimal.Decimal        `json:"amount,omitempty"`
	Currency       string                  `json:"currency,omitempty"`
	IdempotencyKey string                  `json:"idempotency_key"`
	ErrorMessage   *string                 `json:"error_message,omitempty"`
}

// TransactionPage is one page of TransactionView, newest first.
type TransactionPage struct {
	Items []TransactionView `json:"items"`
	Page  int               `json:"page"`
	Size  int               `json:"size"`
	Total int64             `json:"total"`
}

// DemoAccount is an account the seeder creates and the demo reset restores.
type DemoAccount struct {
	Number   string
	Currency string
	Balance  decimal.Decimal
}

// QueryService serves the read-only views and the demo utilities.
type QueryService struct {
	repo *repo.Repository
	demo []DemoAccount
	log  *zap.SugaredLogger
}

func NewQueryService(r *repo.Repository, demo []DemoAccount, logger *zap.SugaredLogger) *QueryService {
	return &QueryService{repo: r, demo: demo, log: logger}
}

func (q *QueryService) GetAccount(ctx context.Context, number string) (*model.Account, error) {
	acc, err := q.repo.GetAccount(ctx, number)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ledgererr.New(ledgererr.KindAccountNotFound, "Account not found: %s", number)
	}
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", number, err)
	}
	return acc, nil
}

// RecentTransactions returns at most MaxRecentLimit transactions.
func (q *QueryService) RecentTransactions(ctx context.Context, limit int) ([]TransactionView, error) {
	if limit <= 0 {
		return nil, ledgererr.Validation("limit must be greater than zero")
	}
	if limit > MaxRecentLimit {
		limit = MaxRecentLimit
	}
	txs, err := q.repo.RecentTransactions(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("recent transactions: %w", err)
	}
	return toViews(txs), nil
}

func (q *QueryService) ListTransactions(ctx context.Context, page, size int) (*TransactionPage, error) {
	if page < 0 {
		return nil, ledgererr.Validation("page must be zero or greater")
	}
	if size <= 0 {
		return nil, ledgererr.Validation("size must be greater than zero")
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	total, err := q.repo.CountTransactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("count transactions: %w", err)
	}
	txs, err := q.repo.ListTransactions(ctx, page*size, size)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return &TransactionPage{Items: toViews(txs), Page: page, Size: size, Total: total}, nil
}

// SeedDemoAccounts creates the configured demo accounts that do not exist yet.
func (q *QueryService) SeedDemoAccounts(ctx context.Context) (int, error) {
	created := 0
	for _, d := range q.demo {
		ok, err := q.repo.CreateAccount(ctx, &model.Account{
			AccountNumber: d.Number,
			Currency:      d.Currency,
			Balance:       d.Balance,
			Status:        model.AccountActive,
		})
		if err != nil {
			return created, fmt.Errorf("seed %s: %w", d.Number, err)
		}
		if ok {
			created++
		}
	}
	return created, nil
}

// ResetDemo wipes transfers, entries, audit and outbox rows and restores demo balances.
func (q *QueryService) ResetDemo(ctx context.Context) error {
	balances := make(map[string]decimal.Decimal, len(q.demo))
	for _, d := range q.demo {
		balances[d.Number] = d.Balance
	}
	if err := q.repo.ResetLedger(ctx, balances); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ledgererr.Wrap(ledgererr.KindAccountNotFound, err, "Demo account missing, run the seeder first")
		}
		return fmt.Errorf("reset demo: %w", err)
	}
	q.log.Infow("demo state reset", "accounts", len(balances))
	return nil
}

func toViews(txs []model.Transaction) []TransactionView {
	views := make([]TransactionView, 0, len(txs))
	for _, t := range txs {
		v := TransactionView{
			ID:             t.ID,
			CreatedAt:      t.CreatedAt,
			CompletedAt:    t.CompletedAt,
			Status:         t.Status,
			IdempotencyKey: t.IdempotencyKey,
			ErrorMessage:   t.ErrorMessage,
		}
		for _, e := range t.Entries {
			amount := e.Amount
			if v.Amount == nil {
				v.Amount = &amount
			}
			if e.Account == nil {
				continue
			}
			if v.Currency == "" {
				v.Currency = e.Account.Currency
			}
			switch e.Direction {
			case model.EntryDebit:
				v.FromAccount = e.Account.AccountNumber
			case model.EntryCredit:
				v.ToAccount = e.Account.AccountNumber
			}
		}
		views = append(views, v)
	}
	return views
}
