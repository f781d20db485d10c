package main

import (
	"context"
	"log/slog"
	"os"

	portsrepo "github.com/SscSPs/allowance_wallet/internal/core/ports/repositories"
	portssvc "github.com/SscSPs/allowance_wallet/internal/core/ports/services"
	"github.com/SscSPs/allowance_wallet/internal/core/services"
	"github.com/SscSPs/allowance_wallet/internal/platform/clock"
	"github.com/SscSPs/allowance_wallet/internal/platform/config"
	"github.com/SscSPs/allowance_wallet/internal/platform/events"
	"github.com/SscSPs/allowance_wallet/internal/repositories/database/pgsql"
	"github.com/SscSPs/allowance_wallet/pkg/database"
	"github.com/aws/aws-lambda-go/lambda"
)

// reconciler recomputes the current period of every active window from the ledger.
type reconciler struct {
	windows portsrepo.LimitWindowReader
	ledger  portssvc.LedgerWriterSvc
	clock   clock.Clock
}

// ReconcileSummary is returned to the scheduler invoking the function.
type ReconcileSummary struct {
	Reconciled int      `json:"reconciled"`
	Failed     []string `json:"failed,omitempty"`
}

// HandleRequest is triggered by an EventBridge schedule. One window failing
// does not stop the sweep.
func (r *reconciler) HandleRequest(ctx context.Context) (ReconcileSummary, error) {
	slog.InfoContext(ctx, "Starting reconciliation of active limit windows...")

	windows, err := r.windows.ListActiveWindows(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to list active windows", slog.String("error", err.Error()))
		return ReconcileSummary{}, err
	}

	now := r.clock.Now()
	var summary ReconcileSummary
	for _, window := range windows {
		usage, err := r.ledger.Reconcile(ctx, nil, window.WindowID, now)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to reconcile window", slog.String("window_id", window.WindowID), slog.String("error", err.Error()))
			summary.Failed = append(summary.Failed, window.WindowID)
			continue
		}
		summary.Reconciled++
		slog.DebugContext(ctx, "Window reconciled", slog.String("window_id", window.WindowID), slog.String("consumed", usage.Consumed.String()))
	}

	slog.InfoContext(ctx, "Reconciliation finished", slog.Int("reconciled", summary.Reconciled), slog.Int("failed", len(summary.Failed)))
	return summary, nil
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("Failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx := context.Background()
	dbPool, err := database.NewPgxPool(ctx, cfg.DatabaseURL, cfg.EnableDBCheck)
	if err != nil {
		logger.Error("Failed to initialize database pool", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer database.ClosePgxPool(dbPool)

	var publisher portssvc.EventPublisher = events.Noop{}
	if cfg.EventsBackend == config.BackendSQS {
		sqsPublisher, err := events.NewSQSPublisherFromEnv(ctx, cfg.AWSRegion, cfg.SQSQueueURL)
		if err != nil {
			logger.Error("Failed to initialize SQS publisher", slog.String("error", err.Error()))
			os.Exit(1)
		}
		publisher = sqsPublisher
	}

	repos := pgsql.NewRepositoryProvider(dbPool)
	container := services.NewServiceContainer(cfg, repos, services.Integrations{Publisher: publisher})

	r := &reconciler{windows: repos.WindowRepo, ledger: container.Ledger, clock: clock.System{}}
	lambda.Start(r.HandleRequest)
}
