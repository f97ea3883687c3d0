package o11y

import (
	"context"
	"log/slog"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
)

const instrumentationName = "github.com/cloudshell-cp/aws"

// SetupLogExport returns an slog handler that ships records via OTLP/HTTP
// when OTEL_EXPORTER_OTLP_LOGS_ENDPOINT is set, and nil otherwise.
func SetupLogExport(ctx context.Context) (slog.Handler, ShutdownFunc, error) {
	if os.Getenv("OTEL_EXPORTER_OTLP_LOGS_ENDPOINT") == "" {
		return nil, noopShutdown, nil
	}

	exporter, err := otlploghttp.New(ctx)
	if err != nil {
		return nil, noopShutdown, err
	}

	res, err := resource.New(ctx, resource.WithFromEnv())
	if err != nil {
		return nil, noopShutdown, err
	}

	provider := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
		sdklog.WithResource(res),
	)
	handler := otelslog.NewHandler(instrumentationName, otelslog.WithLoggerProvider(provider))

	return handler, provider.Shutdown, nil
}
