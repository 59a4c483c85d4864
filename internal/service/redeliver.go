package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	gocron "github.com/go-co-op/gocron/v2"
	"golang.org/x/time/rate"

	"github.com/vidfetch/vidfetch/internal/log"
	"github.com/vidfetch/vidfetch/internal/model"
)

// Redeliverer pushes payloads left in the fallback store through the
// callback again and removes those which were accepted.
type Redeliverer struct {
	plugin    string
	store     FallbackStore
	deliverer Deliverer
	limiter   *rate.Limiter
}

// NewRedeliverer paces deliveries at perSecond payloads, <= 0 means no limit.
func NewRedeliverer(plugin string, store FallbackStore, deliverer Deliverer, perSecond float64) *Redeliverer {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &Redeliverer{
		plugin:    plugin,
		store:     store,
		deliverer: deliverer,
		limiter:   rate.NewLimiter(limit, 1),
	}
}

type RedeliverReport struct {
	Delivered int
	Failed    int
}

// Run makes a single pass over the store.
func (r *Redeliverer) Run(ctx context.Context) (RedeliverReport, error) {
	var report RedeliverReport
	paths, err := r.store.List(r.plugin)
	if err != nil {
		return report, err
	}
	slog.DebugContext(ctx, "redelivery pass", "dir", r.store.Dir(), "files", len(paths))

	var errs []error
	for _, path := range paths {
		if err := r.limiter.Wait(ctx); err != nil {
			return report, err
		}
		pctx := log.ContextAttrs(ctx, slog.String("path", path))
		if err := r.one(pctx, path); err != nil {
			report.Failed++
			errs = append(errs, err)
			slog.WarnContext(pctx, "redelivery failed", "error", err)
			continue
		}
		report.Delivered++
	}
	return report, errors.Join(errs...)
}

func (r *Redeliverer) one(ctx context.Context, path string) error {
	body, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var head struct {
		RequestID string `json:"requestId"`
	}
	if err := json.Unmarshal(body, &head); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	if head.RequestID == "" {
		return fmt.Errorf("%s has no requestId", path)
	}
	// stored pretty printed, send compact
	compact, err := compactJSON(body)
	if err != nil {
		return err
	}
	if err := model.ValidatePayload(compact); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	ctx = log.ContextAttrs(ctx, slog.String("request_id", head.RequestID))
	if _, err := r.deliverer.Deliver(ctx, head.RequestID, compact); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("removing delivered payload: %w", err)
	}
	slog.InfoContext(ctx, "payload redelivered")
	return nil
}

// Schedule repeats Run according to the cron expression until ctx is done.
func (r *Redeliverer) Schedule(ctx context.Context, expr string) error {
	if err := ParseCron(expr); err != nil {
		return fmt.Errorf("parsing schedule: %w", err)
	}
	s, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("initializing gocron scheduler: %w", err)
	}
	_, err = s.NewJob(
		gocron.CronJob(strings.TrimSpace(expr), false),
		gocron.NewTask(func() {
			report, err := r.Run(ctx)
			if err != nil {
				slog.ErrorContext(ctx, "scheduled redelivery", "error", err, "delivered", report.Delivered, "failed", report.Failed)
				return
			}
			slog.InfoContext(ctx, "scheduled redelivery", "delivered", report.Delivered)
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("initializing gocron job: %w", err)
	}

	s.Start()
	<-ctx.Done()
	if err := s.Shutdown(); err != nil {
		slog.ErrorContext(ctx, "shutting down gocron has failed", "error", err)
	}
	return nil
}
