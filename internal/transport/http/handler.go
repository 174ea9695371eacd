package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/richardliu001/transfer-ledger/internal/ledgererr"
	"github.com/richardliu001/transfer-ledger/internal/model"
	"github.com/richardliu001/transfer-ledger/internal/service"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// IdempotencyHeader carries the client-chosen key of a transfer.
const IdempotencyHeader = "Idempotency-Key"

// Transferer is the transfer engine as seen by the HTTP layer.
type Transferer interface {
	ProcessTransfer(ctx context.Context, req service.TransferRequest) (*model.Transaction, error)
}

// Querier serves the read and demo endpoints.
type Querier interface {
	GetAccount(ctx context.Context, number string) (*model.Account, error)
	RecentTransactions(ctx context.Context, limit int) ([]service.TransactionView, error)
	ListTransactions(ctx context.Context, page, size int) (*service.TransactionPage, error)
	ResetDemo(ctx context.Context) error
}

// RegisterHandlers mounts the ledger API on r.
func RegisterHandlers(r gin.IRouter, transfers Transferer, queries Querier, log *zap.SugaredLogger) {
	r.GET("/health", healthHandler)
	v1 := r.Group("/api/v1")
	{
		v1.POST("/transfers", transferHandler(transfers, log))
		v1.GET("/accounts/:number", accountHandler(queries, log))
		v1.GET("/transactions/recent", recentHandler(queries, log))
		v1.GET("/transactions", listHandler(queries, log))
		v1.POST("/demo/reset", resetHandler(queries, log))
	}
}

type transferReq struct {
	FromAccount string `json:"from_account"`
	ToAccount   string `json:"to_account"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
}

func transferHandler(svc Transferer, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req transferReq
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, log, ledgererr.Validation("Malformed request body"))
			return
		}
		if req.Amount == "" {
			writeError(c, log, ledgererr.Validation("Transfer amount is required"))
			return
		}
		amt, err := decimal.NewFromString(req.Amount)
		if err != nil {
			writeError(c, log, ledgererr.Validation("Invalid amount: %s", req.Amount))
			return
		}
		txn, err := svc.ProcessTransfer(c.Request.Context(), service.TransferRequest{
			FromAccount:    req.FromAccount,
			ToAccount:      req.ToAccount,
			Amount:         amt,
			Currency:       req.Currency,
			IdempotencyKey: c.GetHeader(IdempotencyHeader),
		})
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, txn)
	}
}

func accountHandler(svc Querier, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		acc, err := svc.GetAccount(c.Request.Context(), c.Param("number"))
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, acc)
	}
}

func recentHandler(svc Querier, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, err := intQuery(c, "limit", service.MaxRecentLimit)
		if err != nil {
			writeError(c, log, err)
			return
		}
		views, err := svc.RecentTransactions(c.Request.Context(), limit)
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, views)
	}
}

func listHandler(svc Querier, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, err := intQuery(c, "page", 0)
		if err != nil {
			writeError(c, log, err)
			return
		}
		size, err := intQuery(c, "size", 20)
		if err != nil {
			writeError(c, log, err)
			return
		}
		res, err := svc.ListTransactions(c.Request.Context(), page, size)
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

func resetHandler(svc Querier, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := svc.ResetDemo(c.Request.Context()); err != nil {
			writeError(c, log, err)
			return
		}
		c.String(http.StatusOK, "System reset to pristine state")
	}
}

func healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "UP", "time": time.Now().UTC()})
}

func intQuery(c *gin.Context, name string, def int) (int, error) {
	raw, ok := c.GetQuery(name)
	if !ok || raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, ledgererr.Validation("%s must be an integer", name)
	}
	return v, nil
}
