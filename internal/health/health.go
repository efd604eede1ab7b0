// Package health отдаёт состояние сервиса для probe-запросов оркестратора.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Status задаёт состояние компонента или сервиса целиком.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// severity упорядочивает статусы: итог сервиса равен худшему из компонентов.
func (s Status) severity() int {
	switch s {
	case StatusHealthy:
		return 0
	case StatusDegraded:
		return 1
	default:
		return 2
	}
}

const defaultCheckTimeout = 2 * time.Second

// Check хранит результат одной проверки.
type Check struct {
	Name       string        `json:"name"`
	Status     Status        `json:"status"`
	Message    string        `json:"message,omitempty"`
	DurationMs int64         `json:"duration_ms"`
	Duration   time.Duration `json:"-"`
}

// Response отдаётся на /healthz.
type Response struct {
	Status        Status           `json:"status"`
	Timestamp     time.Time        `json:"timestamp"`
	Checks        map[string]Check `json:"checks,omitempty"`
	Version       string           `json:"version,omitempty"`
	UptimeSeconds int64            `json:"uptime_seconds"`
}

// Checker проверяет один компонент.
type Checker interface {
	Check(ctx context.Context) Check
}

// Handler собирает проверки компонентов и отвечает на probe-запросы.
type Handler struct {
	version      string
	started      time.Time
	checkTimeout time.Duration

	mu       sync.RWMutex
	checkers map[string]Checker
}

// NewHandler создаёт Handler без проверок: пустой набор считается healthy.
func NewHandler(version string) *Handler {
	return &Handler{
		version:      version,
		started:      time.Now(),
		checkTimeout: defaultCheckTimeout,
		checkers:     make(map[string]Checker),
	}
}

// RegisterChecker добавляет или заменяет проверку с именем name.
func (h *Handler) RegisterChecker(name string, checker Checker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers[name] = checker
}

// Evaluate запускает проверки параллельно, каждую с общим таймаутом checkTimeout.
func (h *Handler) Evaluate(ctx context.Context) Response {
	h.mu.RLock()
	checkers := make(map[string]Checker, len(h.checkers))
	for name, c := range h.checkers {
		checkers[name] = c
	}
	h.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, h.checkTimeout)
	defer cancel()

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		checks = make(map[string]Check, len(checkers))
	)
	for name, c := range checkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result := c.Check(ctx)
			mu.Lock()
			checks[name] = result
			mu.Unlock()
		}()
	}
	wg.Wait()

	overall := StatusHealthy
	for _, c := range checks {
		if c.Status.severity() > overall.severity() {
			overall = c.Status
		}
	}

	return Response{
		Status:        overall,
		Timestamp:     time.Now().UTC(),
		Checks:        checks,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
	}
}

// Ready ложно только при unhealthy: degraded-сервис остаётся в балансировке.
func (h *Handler) Ready(ctx context.Context) bool {
	return h.Evaluate(ctx).Status != StatusUnhealthy
}

// ServeHTTP отдаёт полный отчёт; 503 только для unhealthy.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := h.Evaluate(r.Context())

	code := http.StatusOK
	if resp.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}

// LivenessHandler отвечает 200, пока процесс обслуживает HTTP.
func LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	writeProbe(w, http.StatusOK, "ok")
}

// ReadinessHandler отвечает 503, если сервис не готов принимать трафик.
func (h *Handler) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	if h.Ready(r.Context()) {
		writeProbe(w, http.StatusOK, "ready")
		return
	}
	writeProbe(w, http.StatusServiceUnavailable, "not ready")
}

func writeProbe(w http.ResponseWriter, code int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(body))
}

// checkFunc превращает функцию с ошибкой в Checker: ошибка означает unhealthy.
type checkFunc struct {
	name string
	fn   func(ctx context.Context) error
}

// NewSimpleChecker оборачивает fn в Checker.
func NewSimpleChecker(name string, fn func(ctx context.Context) error) Checker {
	return checkFunc{name: name, fn: fn}
}

// Pinger реализуется хранилищами с проверкой соединения.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewPingChecker проверяет компонент через Ping.
func NewPingChecker(name string, p Pinger) Checker {
	return NewSimpleChecker(name, p.Ping)
}

func (c checkFunc) Check(ctx context.Context) Check {
	started := time.Now()
	err := c.fn(ctx)
	elapsed := time.Since(started)

	check := Check{Name: c.name, Status: StatusHealthy, DurationMs: elapsed.Milliseconds(), Duration: elapsed}
	if err != nil {
		check.Status = StatusUnhealthy
		check.Message = err.Error()
	}
	return check
}

// degradedCheck сообщает degraded, пока reason возвращает непустую причину.
type degradedCheck struct {
	name   string
	reason func() string
}

// NewDegradedChecker создаёт проверку для необязательной зависимости (каталог):
// она не делает сервис unhealthy.
func NewDegradedChecker(name string, reason func() string) Checker {
	return degradedCheck{name: name, reason: reason}
}

func (c degradedCheck) Check(context.Context) Check {
	if msg := c.reason(); msg != "" {
		return Check{Name: c.name, Status: StatusDegraded, Message: msg}
	}
	return Check{Name: c.name, Status: StatusHealthy}
}
