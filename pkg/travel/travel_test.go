package travel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leynos/wildside-engine/pkg/model"
)

func TestGetTravelTimeMatrixEmptyInput(t *testing.T) {
	p := NewOSRMProvider("http://example.invalid")
	_, err := p.GetTravelTimeMatrix(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestGetTravelTimeMatrixParsesDurationsWithNull(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"code":"Ok","durations":[[0,120],[null,0]]}`))
	}))
	defer srv.Close()

	p := NewOSRMProvider(srv.URL)
	matrix, err := p.GetTravelTimeMatrix(context.Background(), []model.Coordinate{{Lon: 0, Lat: 0}, {Lon: 1, Lat: 1}})
	require.NoError(t, err)

	assert.Equal(t, 2, matrix.N)
	assert.Equal(t, 0.0, matrix.At(0, 0))
	assert.Equal(t, 120.0, matrix.At(0, 1))
	assert.Equal(t, MaxDuration, matrix.At(1, 0))
}

func TestGetTravelTimeMatrixHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	p := NewOSRMProvider(srv.URL)
	_, err := p.GetTravelTimeMatrix(context.Background(), []model.Coordinate{{Lon: 0, Lat: 0}})
	assert.ErrorIs(t, err, ErrHTTP)
}

func TestGetTravelTimeMatrixServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"code":"NoRoute","message":"no route found"}`))
	}))
	defer srv.Close()

	p := NewOSRMProvider(srv.URL)
	_, err := p.GetTravelTimeMatrix(context.Background(), []model.Coordinate{{Lon: 0, Lat: 0}})
	assert.ErrorIs(t, err, ErrService)
}

func TestGetTravelTimeMatrixRetriesOn5xx(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"code":"Ok","durations":[[0]]}`))
	}))
	defer srv.Close()

	p := NewOSRMProvider(srv.URL)
	matrix, err := p.GetTravelTimeMatrix(context.Background(), []model.Coordinate{{Lon: 0, Lat: 0}})
	require.NoError(t, err)
	assert.Equal(t, 1, matrix.N)
	assert.GreaterOrEqual(t, attempts, 2)
}
