package observability_test

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aretw0/weft"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_RecordInterpreterActivity(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := observability.NewMetrics(reg)
	require.NoError(t, err)

	interp := weft.New(weft.WithLifecycleHooks(m.Hooks()))
	e := domain.NewEffect("fetch", "a")
	h := interp.Subscribe(e)

	_, err = interp.Evaluate(context.Background(), h, nil)
	require.NoError(t, err)
	_, err = interp.Evaluate(context.Background(), h, domain.EffectTable{}.Resolve(e, 1))
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.EffectYields.WithLabelValues("fetch", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EffectYields.WithLabelValues("fetch", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NodesCreated.WithLabelValues("effect", "true")))

	interp.Unsubscribe(h)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FreedEffects.WithLabelValues("major")))
	assert.NotZero(t, testutil.ToFloat64(m.Collected.WithLabelValues("major")))
}

func TestMetrics_DoubleRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := observability.NewMetrics(reg)
	require.NoError(t, err)
	_, err = observability.NewMetrics(reg)
	assert.Error(t, err)
}

func TestHandler_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := observability.NewMetrics(reg)
	require.NoError(t, err)
	m.EffectYields.WithLabelValues("fetch", "true").Inc()

	rec := httptest.NewRecorder()
	observability.Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `weft_effect_yields_total{resolved="true",type="fetch"} 1`)
}

func TestChain_DeliversToEverySet(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	count := 0
	hooks := observability.Chain(
		observability.LoggingHooks(logger),
		domain.LifecycleHooks{OnEffectYield: func(context.Context, *domain.EffectEvent) { count++ }},
		domain.LifecycleHooks{},
	)

	hooks.OnEffectYield(context.Background(), &domain.EffectEvent{Effect: domain.NewEffect("fetch", nil)})
	assert.Equal(t, 1, count)
	assert.Contains(t, buf.String(), "effect_yield")
	assert.NotNil(t, hooks.OnCollect)
}
