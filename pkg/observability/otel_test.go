package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestInitOTel_Disabled(t *testing.T) {
	providers, err := InitOTel(context.Background(), OTelConfig{Enabled: false}, quietLogger())
	assert.NoError(t, err)
	assert.Nil(t, providers)
}

func TestInitOTel_RequiresEndpoint(t *testing.T) {
	_, err := InitOTel(context.Background(), OTelConfig{Enabled: true}, quietLogger())
	assert.Error(t, err)
}

func TestOTelConfig_Sampler(t *testing.T) {
	assert.Equal(t, sdktrace.AlwaysSample().Description(), OTelConfig{}.sampler().Description())
	assert.Equal(t, sdktrace.AlwaysSample().Description(), OTelConfig{SampleRatio: 1}.sampler().Description())
	assert.Contains(t, OTelConfig{SampleRatio: 0.25}.sampler().Description(), "TraceIDRatioBased")
}

func TestShutdownOTel(t *testing.T) {
	assert.NoError(t, ShutdownOTel(context.Background(), nil, quietLogger()))

	providers := &OTelProviders{
		TracerProvider: sdktrace.NewTracerProvider(),
		MeterProvider:  sdkmetric.NewMeterProvider(),
	}
	assert.NoError(t, ShutdownOTel(context.Background(), providers, quietLogger()))
}

func TestTracer_NoopByDefault(t *testing.T) {
	_, span := Tracer().Start(context.Background(), "staging.run")
	defer span.End()
	assert.NotNil(t, span)
}
