package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/richardliu001/transfer-ledger/internal/logger"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type transferBody struct {
	FromAccount string `json:"from_account"`
	ToAccount   string `json:"to_account"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
}

// loadgen fires concurrent transfers at a running server, alternating direction
// between two accounts, each with a fresh idempotency key.
func main() {
	baseURL := flag.String("url", "http://localhost:8080", "server base URL")
	total := flag.Int("n", 200, "number of transfers")
	workers := flag.Int("c", 20, "concurrent clients")
	rps := flag.Float64("rps", 0, "overall request rate, 0 for unlimited")
	from := flag.String("a", "ACC-A-001", "first account")
	to := flag.String("b", "ACC-B-001", "second account")
	amount := flag.String("amount", "1.0000", "amount per transfer")
	currency := flag.String("currency", "USD", "transfer currency")
	flag.Parse()

	log, err := logger.NewLogger("info")
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	limiter := rate.NewLimiter(rate.Inf, 1)
	if *rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(*rps), 1)
	}
	client := &http.Client{Timeout: 30 * time.Second}
	jobs := make(chan int)
	var (
		mu       sync.Mutex
		statuses = map[int]int{}
		wg       sync.WaitGroup
	)

	start := time.Now()
	for w := 0; w < *workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				body := transferBody{FromAccount: *from, ToAccount: *to, Amount: *amount, Currency: *currency}
				if i%2 == 1 {
					body.FromAccount, body.ToAccount = body.ToAccount, body.FromAccount
				}
				_ = limiter.Wait(context.Background())
				status := send(client, *baseURL, body, log)
				mu.Lock()
				statuses[status]++
				mu.Unlock()
			}
		}()
	}
	for i := 0; i < *total; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	codes := make([]int, 0, len(statuses))
	for code := range statuses {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		log.Infow("responses", "status", code, "count", statuses[code])
	}
	log.Infow("load finished", "transfers", *total, "elapsed", time.Since(start))
}

// send returns the HTTP status, or 0 when the request never got an answer.
func send(client *http.Client, baseURL string, body transferBody, log *zap.SugaredLogger) int {
	payload, err := json.Marshal(body)
	if err != nil {
		log.Errorw("encode", "error", err)
		return 0
	}
	req, err := http.NewRequest(http.MethodPost, baseURL+"/api/v1/transfers", bytes.NewReader(payload))
	if err != nil {
		log.Errorw("build request", "error", err)
		return 0
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", uuid.NewString())
	resp, err := client.Do(req)
	if err != nil {
		log.Warnw("transfer request", "error", err)
		return 0
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode
}
