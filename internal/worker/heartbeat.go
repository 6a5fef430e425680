package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"pharmacy-api/internal/util"

	"github.com/go-co-op/gocron/v2"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// Heartbeat periodically requests a URL so a hosted instance stays warm.
// Repeated failures open a circuit breaker that skips pings until it
// half-opens again.
type Heartbeat struct {
	url       string
	interval  time.Duration
	client    *http.Client
	breaker   *gobreaker.CircuitBreaker[int]
	scheduler gocron.Scheduler
	logger    *zap.Logger
}

// NewHeartbeat creates a heartbeat pinging url every interval
func NewHeartbeat(url string, interval time.Duration) (*Heartbeat, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("heartbeat interval must be positive, got %s", interval)
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	h := &Heartbeat{
		url:      url,
		interval: interval,
		client: &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		scheduler: scheduler,
		logger:    util.GetLogger(),
	}
	h.breaker = gobreaker.NewCircuitBreaker[int](gobreaker.Settings{
		Name:    "heartbeat",
		Timeout: interval,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			h.logger.Warn("Heartbeat circuit breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return h, nil
}

// Start schedules the ping job, firing once immediately
func (h *Heartbeat) Start() error {
	_, err := h.scheduler.NewJob(
		gocron.DurationJob(h.interval),
		gocron.NewTask(h.tick),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule heartbeat: %w", err)
	}

	h.scheduler.Start()
	h.logger.Info("Heartbeat started",
		zap.String("url", h.url),
		zap.Duration("interval", h.interval))
	return nil
}

// Stop waits for a running ping and stops the scheduler
func (h *Heartbeat) Stop() error {
	return h.scheduler.Shutdown()
}

func (h *Heartbeat) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := h.Ping(ctx); err != nil {
		h.logger.Warn("Heartbeat ping failed", zap.String("url", h.url), zap.Error(err))
	}
}

// Ping requests the URL once through the circuit breaker.
func (h *Heartbeat) Ping(ctx context.Context) error {
	status, err := h.breaker.Execute(func() (int, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
		if err != nil {
			return 0, err
		}

		resp, err := h.client.Do(req)
		if err != nil {
			return 0, err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)

		if resp.StatusCode >= http.StatusInternalServerError {
			return resp.StatusCode, fmt.Errorf("heartbeat returned status %d", resp.StatusCode)
		}
		return resp.StatusCode, nil
	})

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		util.HeartbeatPingsTotal.WithLabelValues("skipped").Inc()
		return err
	case err != nil:
		util.HeartbeatPingsTotal.WithLabelValues("error").Inc()
		return err
	}

	util.HeartbeatPingsTotal.WithLabelValues("ok").Inc()
	h.logger.Debug("Heartbeat ok", zap.String("url", h.url), zap.Int("status", status))
	return nil
}
