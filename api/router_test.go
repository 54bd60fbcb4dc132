package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/maxpoletaev/replicated/internal/telemetry"
	"github.com/maxpoletaev/replicated/prober"
	"github.com/maxpoletaev/replicated/router"
)

func TestCreateRouter(t *testing.T) {
	metrics := telemetry.New()

	conf := router.DefaultConfig()
	conf.Metrics = metrics

	rt, err := router.New(conf, prober.Funcs{})
	require.NoError(t, err)

	mux := CreateRouter(rt, metrics.Handler())

	for _, path := range []string{"/healthz", "/metrics", "/members", "/topology", "/resolve/write"} {
		recorder := httptest.NewRecorder()
		mux.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, recorder.Code, path)
	}
}
