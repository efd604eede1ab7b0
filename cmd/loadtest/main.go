// Команда loadtest прогоняет сценарии корзины и заказов против HTTP API сервиса
// и печатает сводку по задержкам и кодам ответов.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	headerPrincipalID     = "X-Principal-ID"
	headerPrincipalRole   = "X-Principal-Role"
	headerIdempotencyKey  = "Idempotency-Key"
	scenarioName          = "scenario"
	codeTransportError    = "transport_error"
	defaultQuantity       = int32(1)
	defaultCustomerIDBase = int64(1_000_000)
)

type loadMode string

const (
	// modeCheckout: покупатель кладёт товар в корзину и оформляет заказ.
	modeCheckout loadMode = "checkout"
	// modeCheckoutTrack дополнительно опрашивает статус оформленного заказа.
	modeCheckoutTrack loadMode = "checkout-track"
	// modeWalkIn: сотрудник создаёт заказ у стойки и доводит его до completed.
	modeWalkIn loadMode = "walk-in"
)

type config struct {
	baseURL     string
	total       int
	totalSet    bool
	duration    time.Duration
	concurrency int
	timeout     time.Duration
	mode        loadMode
	cancelRate  int
	productID   int64
	customerID  int64
	employeeID  int64
	outputPath  string
}

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type callReport struct {
	Calls     int64            `json:"calls"`
	Success   int64            `json:"success"`
	Failed    int64            `json:"failed"`
	ErrorRate float64          `json:"error_rate"`
	Codes     map[string]int64 `json:"codes"`
	LatencyMs latencySummary   `json:"latency_ms"`
}

type report struct {
	StartedAt         time.Time             `json:"started_at"`
	DurationSeconds   float64               `json:"duration_seconds"`
	TotalScenarios    int64                 `json:"total_scenarios"`
	SuccessScenarios  int64                 `json:"success_scenarios"`
	FailedScenarios   int64                 `json:"failed_scenarios"`
	ErrorRate         float64               `json:"error_rate"`
	RPS               float64               `json:"rps"`
	ScenarioLatencyMs latencySummary        `json:"scenario_latency_ms"`
	Calls             map[string]callReport `json:"calls"`
}

type callStats struct {
	calls     int64
	failed    int64
	codes     map[string]int64
	latencies []float64
}

func (s *callStats) toReport() callReport {
	codes := make(map[string]int64, len(s.codes))
	for code, count := range s.codes {
		codes[code] = count
	}
	return callReport{
		Calls:     s.calls,
		Success:   s.calls - s.failed,
		Failed:    s.failed,
		ErrorRate: ratio(s.failed, s.calls),
		Codes:     codes,
		LatencyMs: buildLatencySummary(s.latencies),
	}
}

// collector накапливает результаты вызовов из всех воркеров.
type collector struct {
	mu    sync.Mutex
	calls map[string]*callStats
}

func newCollector() *collector {
	return &collector{calls: make(map[string]*callStats)}
}

func (c *collector) record(name string, latency time.Duration, code string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, found := c.calls[name]
	if !found {
		stats = &callStats{codes: make(map[string]int64)}
		c.calls[name] = stats
	}
	stats.calls++
	if !ok {
		stats.failed++
	}
	stats.codes[code]++
	stats.latencies = append(stats.latencies, float64(latency.Microseconds())/1000.0)
}

func (c *collector) buildReport(startedAt time.Time, duration time.Duration) report {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := report{
		StartedAt:       startedAt.UTC(),
		DurationSeconds: duration.Seconds(),
		Calls:           make(map[string]callReport, len(c.calls)),
	}
	for name, stats := range c.calls {
		result.Calls[name] = stats.toReport()
	}

	if scenario, ok := result.Calls[scenarioName]; ok {
		result.TotalScenarios = scenario.Calls
		result.SuccessScenarios = scenario.Success
		result.FailedScenarios = scenario.Failed
		result.ErrorRate = scenario.ErrorRate
		result.ScenarioLatencyMs = scenario.LatencyMs
	}
	if duration > 0 {
		result.RPS = float64(result.TotalScenarios) / duration.Seconds()
	}
	return result
}

func parseConfig(args []string) (config, error) {
	var (
		cfg       config
		modeValue string
	)

	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.StringVar(&cfg.baseURL, "base-url", "http://localhost:8080", "order service HTTP base URL")
	fs.IntVar(&cfg.total, "total", 400, "total scenarios in count mode; in duration mode only used when explicitly set")
	fs.DurationVar(&cfg.duration, "duration", 0, "optional time-based run duration (e.g. 10m)")
	fs.IntVar(&cfg.concurrency, "concurrency", 40, "number of concurrent workers")
	fs.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-request timeout")
	fs.StringVar(&modeValue, "mode", string(modeCheckout), "load mode: checkout | checkout-track | walk-in")
	fs.IntVar(&cfg.cancelRate, "cancel-rate", 0, "percent of walk-in orders cancelled instead of completed (0..100)")
	fs.Int64Var(&cfg.productID, "product-id", 1, "catalog product id used in every order")
	fs.Int64Var(&cfg.customerID, "customer-id-base", defaultCustomerIDBase, "first customer id; each scenario uses its own customer")
	fs.Int64Var(&cfg.employeeID, "employee-id", 1, "employee id for walk-in orders")
	fs.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})
	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")

	mode, err := parseMode(modeValue)
	if err != nil {
		return cfg, err
	}
	cfg.mode = mode

	switch {
	case cfg.baseURL == "":
		return cfg, errors.New("base-url is required")
	case cfg.duration < 0:
		return cfg, errors.New("duration must be >= 0")
	case cfg.duration == 0 && cfg.total <= 0:
		return cfg, errors.New("total must be > 0 when duration is not set")
	case cfg.duration > 0 && cfg.totalSet && cfg.total <= 0:
		return cfg, errors.New("total must be > 0 when explicitly set with duration")
	case cfg.concurrency <= 0:
		return cfg, errors.New("concurrency must be > 0")
	case cfg.timeout <= 0:
		return cfg, errors.New("timeout must be > 0")
	case cfg.cancelRate < 0 || cfg.cancelRate > 100:
		return cfg, errors.New("cancel-rate must be between 0 and 100")
	case cfg.productID <= 0:
		return cfg, errors.New("product-id must be > 0")
	case cfg.customerID <= 0 || cfg.employeeID <= 0:
		return cfg, errors.New("principal ids must be > 0")
	}
	return cfg, nil
}

func parseMode(value string) (loadMode, error) {
	switch mode := loadMode(strings.TrimSpace(value)); mode {
	case modeCheckout, modeCheckoutTrack, modeWalkIn:
		return mode, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

func main() {
	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	client := &http.Client{
		Timeout: cfg.timeout,
		Transport: otelhttp.NewTransport(&http.Transport{
			MaxIdleConns:        cfg.concurrency,
			MaxIdleConnsPerHost: cfg.concurrency,
			IdleConnTimeout:     90 * time.Second,
		}),
	}

	result := runLoad(context.Background(), newRunner(client, cfg), cfg)

	printReport(os.Stdout, result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}
	if result.FailedScenarios > 0 {
		os.Exit(1)
	}
}

// runLoad раздаёт номера сценариев воркерам и собирает итоговый отчёт.
func runLoad(ctx context.Context, r *runner, cfg config) report {
	startedAt := time.Now()
	jobs := make(chan int, cfg.concurrency*2)
	var failures int64

	var wg sync.WaitGroup
	for range cfg.concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				if err := r.runScenario(ctx, id); err != nil {
					atomic.AddInt64(&failures, 1)
				}
			}
		}()
	}

	dispatchJobs(jobs, cfg)
	wg.Wait()

	result := r.col.buildReport(startedAt, time.Since(startedAt))
	if result.FailedScenarios == 0 && failures > 0 {
		result.FailedScenarios = failures
		result.ErrorRate = ratio(result.FailedScenarios, result.TotalScenarios)
	}
	return result
}

func dispatchJobs(jobs chan<- int, cfg config) {
	defer close(jobs)

	if cfg.duration <= 0 {
		for i := 0; i < cfg.total; i++ {
			jobs <- i
		}
		return
	}

	timer := time.NewTimer(cfg.duration)
	defer timer.Stop()

	for i := 0; ; i++ {
		if cfg.totalSet && i >= cfg.total {
			return
		}
		select {
		case <-timer.C:
			return
		case jobs <- i:
		}
	}
}

type principal struct {
	id   int64
	role string
}

type runner struct {
	client *http.Client
	cfg    config
	runID  string
	col    *collector
}

func newRunner(client *http.Client, cfg config) *runner {
	return &runner{
		client: client,
		cfg:    cfg,
		runID:  strconv.FormatInt(time.Now().UnixNano(), 36),
		col:    newCollector(),
	}
}

type orderPayload struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
}

func (r *runner) runScenario(ctx context.Context, index int) (err error) {
	start := time.Now()
	defer func() {
		code := "ok"
		if err != nil {
			code = "failed"
		}
		r.col.record(scenarioName, time.Since(start), code, err == nil)
	}()

	if r.cfg.mode == modeWalkIn {
		return r.walkInScenario(ctx, index)
	}
	return r.checkoutScenario(ctx, index)
}

func (r *runner) checkoutScenario(ctx context.Context, index int) error {
	customer := principal{id: r.cfg.customerID + int64(index), role: "customer"}

	addBody := map[string]any{"product_id": r.cfg.productID, "quantity": defaultQuantity}
	if err := r.call(ctx, "AddCartProduct", http.MethodPost, "/api/v1/cart/product", customer, "", addBody, http.StatusOK, nil); err != nil {
		return err
	}

	var order orderPayload
	key := fmt.Sprintf("lt-checkout-%s-%d", r.runID, index)
	if err := r.call(ctx, "Checkout", http.MethodPost, "/api/v1/cart/checkout", customer, key, nil, http.StatusCreated, &order); err != nil {
		return err
	}
	if order.ID <= 0 {
		return errors.New("checkout response returned empty order id")
	}

	if r.cfg.mode == modeCheckoutTrack {
		path := fmt.Sprintf("/api/v1/orders/status/%d", order.ID)
		return r.call(ctx, "CheckOrderStatus", http.MethodGet, path, customer, "", nil, http.StatusOK, nil)
	}
	return nil
}

func (r *runner) walkInScenario(ctx context.Context, index int) error {
	employee := principal{id: r.cfg.employeeID, role: "employee"}

	body := map[string]any{
		"channel": "in-person",
		"lines":   []map[string]any{{"product_id": r.cfg.productID, "quantity": defaultQuantity}},
	}
	var order orderPayload
	key := fmt.Sprintf("lt-walk-in-%s-%d", r.runID, index)
	if err := r.call(ctx, "CreateWalkInOrder", http.MethodPost, "/api/v1/orders/create-customer-order", employee, key, body, http.StatusCreated, &order); err != nil {
		return err
	}
	if order.ID <= 0 {
		return errors.New("walk-in response returned empty order id")
	}

	path := fmt.Sprintf("/api/v1/orders/%d/status", order.ID)
	steps := []string{"in-preparation", "ready", "completed"}
	if shouldCancel(index, r.cfg.cancelRate) {
		steps = []string{"cancelled"}
	}
	for _, status := range steps {
		if err := r.call(ctx, "UpdateOrderStatus", http.MethodPatch, path, employee, "", map[string]string{"status": status}, http.StatusOK, nil); err != nil {
			return err
		}
	}
	return nil
}

// call выполняет один запрос и записывает его результат в collector под именем name.
func (r *runner) call(
	ctx context.Context,
	name, method, path string,
	p principal,
	idempotencyKey string,
	body any,
	wantStatus int,
	out any,
) error {
	start := time.Now()
	code, err := r.do(ctx, method, path, p, idempotencyKey, body, wantStatus, out)
	r.col.record(name, time.Since(start), code, err == nil)
	return err
}

func (r *runner) do(
	ctx context.Context,
	method, path string,
	p principal,
	idempotencyKey string,
	body any,
	wantStatus int,
	out any,
) (string, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return codeTransportError, err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.cfg.baseURL+path, reader)
	if err != nil {
		return codeTransportError, err
	}
	req.Header.Set(headerPrincipalID, strconv.FormatInt(p.id, 10))
	req.Header.Set(headerPrincipalRole, p.role)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set(headerIdempotencyKey, idempotencyKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return codeTransportError, err
	}
	defer resp.Body.Close()

	code := strconv.Itoa(resp.StatusCode)
	if resp.StatusCode != wantStatus {
		_, _ = io.Copy(io.Discard, resp.Body)
		return code, fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return code, fmt.Errorf("decode %s %s response: %w", method, path, err)
		}
	}
	return code, nil
}

func shouldCancel(index, cancelRate int) bool {
	if cancelRate <= 0 {
		return false
	}
	if cancelRate >= 100 {
		return true
	}
	return index%100 < cancelRate
}

func writeJSONReport(path string, result report) error {
	cleanPath := filepath.Clean(path)
	if cleanPath == "." || cleanPath == string(filepath.Separator) {
		return errors.New("output path must point to a file")
	}
	if cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return fmt.Errorf("output path must be inside current directory: %s", path)
	}

	// #nosec G304 -- путь к отчёту задаётся явно флагом командной строки.
	file, err := os.Create(cleanPath)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func printReport(w io.Writer, result report, cfg config) {
	_, _ = fmt.Fprintln(w, "Load test summary")
	_, _ = fmt.Fprintf(w, "mode=%s run=%s total=%d success=%d failed=%d error_rate=%.4f\n",
		cfg.mode, runTarget(cfg),
		result.TotalScenarios, result.SuccessScenarios, result.FailedScenarios, result.ErrorRate,
	)
	_, _ = fmt.Fprintf(w, "duration=%.2fs rps=%.2f\n", result.DurationSeconds, result.RPS)
	lat := result.ScenarioLatencyMs
	_, _ = fmt.Fprintf(w, "scenario latency ms: min=%.2f avg=%.2f p50=%.2f p95=%.2f p99=%.2f max=%.2f\n",
		lat.Min, lat.Avg, lat.P50, lat.P95, lat.P99, lat.Max)

	names := make([]string, 0, len(result.Calls))
	for name := range result.Calls {
		if name != scenarioName {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		stats := result.Calls[name]
		_, _ = fmt.Fprintf(w, "%s: calls=%d success=%d failed=%d error_rate=%.4f p95=%.2fms\n",
			name, stats.Calls, stats.Success, stats.Failed, stats.ErrorRate, stats.LatencyMs.P95)
	}
}

func runTarget(cfg config) string {
	if cfg.duration <= 0 {
		return fmt.Sprintf("count:%d", cfg.total)
	}
	if cfg.totalSet {
		return fmt.Sprintf("duration:%s,max-total:%d", cfg.duration, cfg.total)
	}
	return fmt.Sprintf("duration:%s", cfg.duration)
}

func buildLatencySummary(values []float64) latencySummary {
	if len(values) == 0 {
		return latencySummary{}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	var sum float64
	for _, value := range sorted {
		sum += value
	}
	return latencySummary{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: sum / float64(len(sorted)),
		P50: percentile(sorted, 50),
		P95: percentile(sorted, 95),
		P99: percentile(sorted, 99),
	}
}

// percentile использует линейную интерполяцию между соседними рангами.
func percentile(sorted []float64, p float64) float64 {
	switch len(sorted) {
	case 0:
		return 0
	case 1:
		return sorted[0]
	}

	rank := (p / 100.0) * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}
	weight := rank - float64(lower)
	return sorted[lower] + (sorted[upper]-sorted[lower])*weight
}

func ratio(failed, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(failed) / float64(total)
}
