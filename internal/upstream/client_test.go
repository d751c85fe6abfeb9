package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/workstat/internal/config"
)

func testConfig(baseURL string) config.UpstreamConfig {
	return config.UpstreamConfig{
		BaseURL:    baseURL,
		APIKey:     "test-key",
		PageSize:   100,
		RatePerSec: 1000,
	}
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := NewClient(config.UpstreamConfig{BaseURL: "http://localhost"})
	require.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestFetchPassesCredentialAndLimit(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`{"records":[{"district_id":"D1"}]}`))
	}))
	defer srv.Close()

	c, err := NewClient(testConfig(srv.URL))
	require.NoError(t, err)

	records, err := c.Fetch(context.Background(), EndpointDistricts, nil)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "D1", records[0]["district_id"])

	assert.Contains(t, gotQuery, "api-key=test-key")
	assert.Contains(t, gotQuery, "format=json")
	assert.Contains(t, gotQuery, "limit=100")
}

func TestFetchMissingRecordsFieldIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	c, err := NewClient(testConfig(srv.URL))
	require.NoError(t, err)

	records, err := c.Fetch(context.Background(), EndpointEmployment, nil)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestFetchWrapsFailuresWithEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, err := NewClient(testConfig(srv.URL))
	require.NoError(t, err)

	_, err = c.Fetch(context.Background(), EndpointWages, nil)
	require.Error(t, err)

	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, EndpointWages, fe.Endpoint)
	assert.Contains(t, err.Error(), "wages")
}

func TestFetchUnknownEndpoint(t *testing.T) {
	c, err := NewClient(testConfig("http://localhost"))
	require.NoError(t, err)

	_, err = c.Fetch(context.Background(), Endpoint("bogus"), nil)
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
}

func TestFetchAllSettlesPartialFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "districts"):
			w.Write([]byte(`{"records":[{"district_id":"D1","district_name":"Pune"}]}`))
		case strings.Contains(r.URL.Path, "employment"):
			w.Write([]byte(`{"records":[{"district_id":"D1","total_households":100}]}`))
		case strings.Contains(r.URL.Path, "works"):
			w.WriteHeader(http.StatusBadGateway)
		case strings.Contains(r.URL.Path, "wages"):
			w.Write([]byte(`{"records":[{"district_id":"D1","total_wages":5000}]}`))
		}
	}))
	defer srv.Close()

	c, err := NewClient(testConfig(srv.URL))
	require.NoError(t, err)

	bundle, err := c.FetchAll(context.Background())
	require.NoError(t, err)

	assert.Len(t, bundle.Districts, 1)
	assert.Len(t, bundle.Employment, 1)
	assert.Empty(t, bundle.Works)
	assert.Len(t, bundle.Wages, 1)
	assert.Equal(t, 3, bundle.TotalRecords())

	require.Len(t, bundle.Errors, 1)
	var fe *FetchError
	require.ErrorAs(t, bundle.Errors[EndpointWorks], &fe)
	assert.Equal(t, EndpointWorks, fe.Endpoint)
}

func TestFetchAllAllEndpointsDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := NewClient(testConfig(srv.URL))
	require.NoError(t, err)

	bundle, err := c.FetchAll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, bundle.TotalRecords())
	assert.Len(t, bundle.Errors, len(AllEndpoints))
}

func TestFetchContextCancellation(t *testing.T) {
	c, err := NewClient(testConfig("http://localhost:0"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = c.Fetch(ctx, EndpointDistricts, nil)
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, EndpointDistricts, fe.Endpoint)
}
