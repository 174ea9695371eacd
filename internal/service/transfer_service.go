package service

import (
	"context"
	"errors"
	"time"

	"github.com/richardliu001/transfer-ledger/internal/ledgererr"
	"github.com/richardliu001/transfer-ledger/internal/metrics"
	"github.com/richardliu001/transfer-ledger/internal/model"
	"github.com/richardliu001/transfer-ledger/internal/notify"
	"github.com/richardliu001/transfer-ledger/internal/repo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// TransferRequest is one two-party, single-currency transfer.
type TransferRequest struct {
	FromAccount    string
	ToAccount      string
	Amount         decimal.Decimal
	Currency       string
	IdempotencyKey string
}

// TransferService orchestrates transfers. It holds no ledger state of its own;
// every coordination point is a row lock or a commit in the store, so any number
// of instances may run side by side.
type TransferService struct {
	repo     repo.RepositoryInterface
	resolver *IdempotencyResolver
	locker   *AccountLocker
	mutator  *BalanceMutator
	failures *FailureRecorder
	notifier notify.Notifier
	log      *zap.SugaredLogger
}

// Option customizes a TransferService.
type Option func(*TransferService)

// WithFailureRetries sets how often the failure write is retried.
func WithFailureRetries(n uint64) Option {
	return func(s *TransferService) { s.failures.retries = n }
}

// NewTransferService wires the engine components over one repository.
func NewTransferService(r repo.RepositoryInterface, n notify.Notifier, logger *zap.SugaredLogger, opts ...Option) *TransferService {
	if n == nil {
		n = notify.Nop{}
	}
	s := &TransferService{
		repo:     r,
		resolver: NewIdempotencyResolver(r),
		locker:   NewAccountLocker(r),
		mutator:  NewBalanceMutator(r),
		failures: NewFailureRecorder(r, logger, 3),
		notifier: n,
		log:      logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ProcessTransfer moves amount from one account to another exactly once per
// idempotency key. A COMPLETED key returns its stored transaction untouched.
func (s *TransferService) ProcessTransfer(ctx context.Context, req TransferRequest) (txn *model.Transaction, err error) {
	start := time.Now()
	outcome := metrics.OutcomeCompleted
	defer func() {
		if err != nil {
			outcome = string(ledgererr.KindOf(err))
		}
		metrics.TransfersTotal.WithLabelValues(outcome).Inc()
		metrics.TransferDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}()

	if err := validateRequest(req); err != nil {
		return nil, err
	}

	res, err := s.resolver.Resolve(ctx, req.IdempotencyKey)
	if err != nil {
		return nil, s.surface(req, err)
	}
	if res.Outcome == OutcomeReplay {
		outcome = metrics.OutcomeReplay
		s.log.Debugw("idempotent replay", "idempotency_key", req.IdempotencyKey, "transaction_id", res.Transaction.ID)
		return res.Transaction, nil
	}

	var completed *model.Transaction
	err = s.repo.RunInTx(ctx, func(tx *gorm.DB) error {
		pending := &model.Transaction{IdempotencyKey: req.IdempotencyKey, Status: model.TransactionPending}
		if err := s.repo.CreateTransaction(ctx, tx, pending); err != nil {
			if errors.Is(err, repo.ErrDuplicateKey) {
				return errKeyTaken
			}
			return err
		}

		from, to, err := s.locker.LockPair(ctx, tx, req.FromAccount, req.ToAccount)
		if err != nil {
			return err
		}
		if err := validateBusinessRules(from, to, req.Amount, req.Currency); err != nil {
			return err
		}
		completed, err = s.mutator.Apply(ctx, tx, from, to, req.Amount, pending)
		return err
	})
	if errors.Is(err, errKeyTaken) {
		outcome = metrics.OutcomeReplay
		stored, rerr := s.resolveLostRace(ctx, req)
		if rerr != nil {
			return nil, s.surface(req, rerr)
		}
		return stored, nil
	}
	if err != nil {
		return nil, s.fail(ctx, req, err)
	}

	s.log.Infow("transfer completed",
		"transaction_id", completed.ID,
		"from", req.FromAccount,
		"to", req.ToAccount,
		"amount", req.Amount.String(),
		"currency", req.Currency)
	s.notifier.Notify(ctx, model.TransferCompleted{
		FromAccount: req.FromAccount,
		ToAccount:   req.ToAccount,
		Amount:      req.Amount,
	})
	return completed, nil
}

// errKeyTaken marks a PENDING insert that lost the unique-key race to a
// concurrent attempt. It never leaves the service.
var errKeyTaken = errors.New("idempotency key taken by a concurrent attempt")

// resolveLostRace re-reads the key once the losing unit rolled back, so the caller
// sees what the winner actually stored: its COMPLETED result, or the conflict for
// a FAILED or still in-flight attempt. The loser records no failure of its own.
func (s *TransferService) resolveLostRace(ctx context.Context, req TransferRequest) (*model.Transaction, error) {
	res, err := s.resolver.Resolve(ctx, req.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if res.Outcome == OutcomeReplay {
		s.log.Debugw("lost key race to a completed transfer", "idempotency_key", req.IdempotencyKey, "transaction_id", res.Transaction.ID)
		return res.Transaction, nil
	}
	// the winner's row is not visible yet
	return nil, errAlreadyProcessing(req.IdempotencyKey)
}

// fail records business-rule failures in an independent unit and shapes the error
// returned to the caller.
func (s *TransferService) fail(ctx context.Context, req TransferRequest, err error) error {
	if ledgererr.KindOf(err).RecordsFailure() {
		// the failure write must survive a caller that already gave up
		if rerr := s.failures.RecordFailure(context.WithoutCancel(ctx), req.IdempotencyKey, err.Error()); rerr != nil {
			s.log.Errorw("record failed transaction", "idempotency_key", req.IdempotencyKey, "cause", err, "error", rerr)
		}
	}
	return s.surface(req, err)
}

func (s *TransferService) surface(req TransferRequest, err error) error {
	kind := ledgererr.KindOf(err)
	switch {
	case kind == ledgererr.KindUnexpected:
		s.log.Errorw("transfer failed unexpectedly", "idempotency_key", req.IdempotencyKey, "error", err)
		return ledgererr.Wrap(ledgererr.KindUnexpected, err, "transfer failed")
	case kind.Retryable():
		s.log.Warnw("transfer hit contention", "idempotency_key", req.IdempotencyKey, "kind", kind, "error", err)
	default:
		s.log.Infow("transfer rejected", "idempotency_key", req.IdempotencyKey, "kind", kind, "reason", err.Error())
	}
	return err
}
