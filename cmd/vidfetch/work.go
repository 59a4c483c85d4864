package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/vidfetch/vidfetch/internal/log"
	"github.com/vidfetch/vidfetch/internal/model"
	"github.com/vidfetch/vidfetch/internal/service"

	"github.com/spf13/cobra"
)

var (
	flagSchedule string  // value of redeliver --schedule
	flagRate     float64 // value of redeliver --rate
)

// maxRequestSize bounds what is read from standard input.
const maxRequestSize = 8 << 20

// responded is set once the worker wrote its response line.
var responded bool

// protocolError writes the INTERNAL_ERROR line for a worker invocation which
// failed before producing a response, e.g. on a broken config.
func protocolError(w io.Writer, cmd *cobra.Command, err error) {
	if err == nil || cmd != rootCmd || responded {
		return
	}
	if werr := model.WriteError(w, model.CodeInternal, err, nil); werr != nil {
		slog.Error("writing error response", "err", werr)
	}
	responded = true
}

func doWork(cmd *cobra.Command, _ []string) error {
	ctx := log.ContextAttrs(cmd.Context(), slog.Group("vidfetch",
		slog.String("cmd", "work"),
		slog.Int("pid", os.Getpid()),
	))

	raw, err := io.ReadAll(io.LimitReader(cmd.InOrStdin(), maxRequestSize))
	if err != nil {
		return fmt.Errorf("reading request: %w", err)
	}

	task, err := service.NewWorker(config).Handle(ctx, raw, cmd.OutOrStdout())
	responded = true
	if err != nil {
		return err
	}
	if task == nil {
		return nil
	}

	// the acknowledgment is out, keep the process alive until the result
	// is delivered or stored
	outcome, err := task.Wait()
	if err != nil {
		slog.ErrorContext(ctx, "request result lost", "request_id", outcome.Payload.RequestID, "error", err)
		return nil
	}
	slog.DebugContext(ctx, "request done",
		"request_id", outcome.Payload.RequestID,
		"delivered", outcome.Delivery.Delivered,
		"fallback", outcome.FallbackPath,
	)
	return nil
}

func doRedeliver(cmd *cobra.Command, _ []string) error {
	ctx := log.ContextAttrs(cmd.Context(), slog.Group("vidfetch",
		slog.String("cmd", "redeliver"),
		slog.Int("pid", os.Getpid()),
	))

	store := service.NewFallbackStore(config.Fallback.Path())
	if !store.Enabled() {
		return fmt.Errorf("redeliver: set fallback.dir or PROJECT_BASE_PATH")
	}
	r := service.NewRedeliverer(config.Plugin, store, service.NewCallback(config.Callback, config.Plugin), flagRate)

	if flagSchedule != "" {
		return r.Schedule(ctx, flagSchedule)
	}

	report, err := r.Run(ctx)
	fmt.Fprintf(cmd.OutOrStdout(), "delivered: %d\nfailed:    %d\n", report.Delivered, report.Failed)
	return err
}
