package commands

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/google/uuid"
	slogmulti "github.com/samber/slog-multi"
	"github.com/spf13/cobra"

	"github.com/cloudshell-cp/aws/internal/cancellation"
	"github.com/cloudshell-cp/aws/internal/config"
	"github.com/cloudshell-cp/aws/internal/ec2"
	"github.com/cloudshell-cp/aws/internal/log"
	"github.com/cloudshell-cp/aws/internal/metrics"
	"github.com/cloudshell-cp/aws/internal/models"
	"github.com/cloudshell-cp/aws/internal/o11y"
	"github.com/cloudshell-cp/aws/internal/prepare"
)

// newClient builds the EC2 client for a run. Tests swap it for a fake.
var newClient = func(ctx context.Context, cfg ec2.ClientConfig) (ec2.API, error) {
	return ec2.NewClient(ctx, cfg)
}

const shutdownTimeout = 10 * time.Second

// run holds everything a command needs once setup succeeded.
type run struct {
	id          string
	cfg         *config.Config
	model       models.ResourceModel
	reservation models.Reservation
	client      ec2.API
	metrics     *metrics.Metrics
	token       *cancellation.Token

	closers []o11y.ShutdownFunc
}

// startRun loads the config and wires logging, tracing, metrics, the EC2
// client and the cancellation token for command. The caller must call
// finish when done.
func startRun(cmd *cobra.Command, opts *rootOptions, command string) (context.Context, *run, error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if err := opts.reservation.Validate(); err != nil {
		return ctx, nil, err
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return ctx, nil, err
	}
	model, err := cfg.ResourceModel()
	if err != nil {
		return ctx, nil, err
	}

	r := &run{
		id:          uuid.NewString(),
		cfg:         cfg,
		model:       model,
		reservation: opts.reservation,
		metrics:     metrics.New(),
		token:       cancellation.NewToken(),
	}

	ctx, err = r.setupLogging(ctx, cmd, command)
	if err != nil {
		return ctx, nil, err
	}

	shutdownTracing, err := o11y.SetupTracing(ctx)
	if err != nil {
		r.finish(ctx)
		return ctx, nil, fmt.Errorf("setting up tracing: %w", err)
	}
	r.closers = append(r.closers, shutdownTracing)

	r.client, err = newClient(ctx, cfg.ClientConfig(model.Region))
	if err != nil {
		r.finish(ctx)
		return ctx, nil, err
	}

	stop := r.token.WatchContext(ctx)
	r.closers = append(r.closers, func(context.Context) error {
		stop()
		return nil
	})

	log.Info(ctx, "starting command", "region", model.Region)
	return ctx, r, nil
}

func (r *run) setupLogging(ctx context.Context, cmd *cobra.Command, command string) (context.Context, error) {
	level, err := log.ParseLevel(r.cfg.Log.Level)
	if err != nil {
		return ctx, err
	}
	console, err := log.NewHandler(cmd.ErrOrStderr(), level, r.cfg.Log.Format)
	if err != nil {
		return ctx, err
	}

	handlers := []slog.Handler{console}
	otelHandler, shutdownLogs, err := o11y.SetupLogExport(ctx)
	if err != nil {
		return ctx, fmt.Errorf("setting up log export: %w", err)
	}
	if otelHandler != nil {
		handlers = append(handlers, otelHandler)
	}
	r.closers = append(r.closers, shutdownLogs)

	ctx = clog.WithLogger(ctx, clog.New(slogmulti.Fanout(handlers...)))
	ctx = log.With(ctx, o11y.AttrRunID, r.id, o11y.AttrCommand, command)

	ctx, closeFile := log.SetupReservationLogging(ctx, r.cfg.Log.Dir, r.reservation.ID, command)
	r.closers = append(r.closers, func(context.Context) error {
		closeFile()
		return nil
	})
	return ctx, nil
}

func (r *run) strategy() *prepare.Strategy {
	return prepare.New(r.client, prepare.Options{
		SubnetWaitTimeout: r.cfg.SubnetWaitTimeout,
		TagRetryAttempts:  r.cfg.TagRetry.Attempts,
		TagRetryInterval:  r.cfg.TagRetry.Interval,
		Metrics:           r.metrics,
	})
}

// finish writes the metrics textfile and flushes the telemetry pipelines.
// Closers run in reverse order of setup.
func (r *run) finish(ctx context.Context) {
	if r.cfg.MetricsFile != "" {
		if err := r.metrics.WriteTextfile(r.cfg.MetricsFile); err != nil {
			log.Warn(ctx, "failed to write metrics textfile", "path", r.cfg.MetricsFile, log.Err(err))
		}
	}

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	fns := slices.Clone(r.closers)
	slices.Reverse(fns)
	if err := o11y.Shutdown(sctx, fns...); err != nil {
		log.Warn(ctx, "failed to shut down telemetry", log.Err(err))
	}
}
