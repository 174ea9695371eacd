package service

import (
	"strings"
	"unicode/utf8"

	"github.com/richardliu001/transfer-ledger/internal/ledgererr"
	"github.com/richardliu001/transfer-ledger/internal/model"
	"github.com/shopspring/decimal"
)

// validateRequest checks the request shape. It runs before any state is read or written.
func validateRequest(req TransferRequest) error {
	if strings.TrimSpace(req.IdempotencyKey) == "" {
		return ledgererr.Validation("Idempotency key is required")
	}
	if utf8.RuneCountInString(req.IdempotencyKey) > model.MaxIdempotencyKeyLength {
		return ledgererr.Validation("Idempotency key must be at most %d characters", model.MaxIdempotencyKeyLength)
	}
	if strings.TrimSpace(req.FromAccount) == "" || strings.TrimSpace(req.ToAccount) == "" {
		return ledgererr.Validation("Both source and destination account numbers are required")
	}
	if req.FromAccount == req.ToAccount {
		return ledgererr.Validation("Source and destination accounts must be different")
	}
	if !req.Amount.IsPositive() {
		return ledgererr.Validation("Transfer amount must be greater than zero")
	}
	if !req.Amount.Equal(req.Amount.Truncate(model.AmountScale)) {
		return ledgererr.Validation("Transfer amount must have at most %d decimal places", model.AmountScale)
	}
	if strings.TrimSpace(req.Currency) == "" {
		return ledgererr.Validation("Currency is required")
	}
	return nil
}

// validateBusinessRules runs against the locked rows, so nothing it checks can change
// before the mutation.
func validateBusinessRules(from, to *model.Account, amount decimal.Decimal, currency string) error {
	if currency != from.Currency || currency != to.Currency {
		return ledgererr.New(ledgererr.KindCurrencyMismatch, "Currency mismatch between transfer request and account currencies")
	}
	if from.Frozen() || to.Frozen() {
		return ledgererr.New(ledgererr.KindAccountFrozen, "Cannot process transfer because one or more accounts are frozen")
	}
	if from.Balance.LessThan(amount) {
		return ledgererr.New(ledgererr.KindInsufficientFunds, "Insufficient funds in account: %s", from.AccountNumber)
	}
	return nil
}
