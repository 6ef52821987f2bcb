package telemetry

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/riverajo/fitness-app/internal/logger"
)

func Test_Setup(t *testing.T) {
	shutdown, err := Setup(t.Context(), logger.EnvDevelopment)
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	tracer := otel.Tracer("test")
	_, span := tracer.Start(t.Context(), "noop")
	span.End()

	require.NoError(t, shutdown(t.Context()))
}
