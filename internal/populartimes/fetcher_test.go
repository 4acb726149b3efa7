package populartimes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func intPtr(v int) *int { return &v }

func sampleCurve(base int) []int {
	data := make([]int, 24)
	for i := range data {
		data[i] = Clamp(base + i)
	}
	return data
}

func TestPlaceQuery_SearchString(t *testing.T) {
	query := PlaceQuery{
		Name:    "Charlie Browns",
		Address: "123 Main St, City, State, Country",
	}
	assert.Equal(t, "Charlie Browns, 123 Main St, City, State, Country", query.SearchString())
}

func TestClient_Fetch(t *testing.T) {
	logger, _ := zap.NewDevelopment()

	t.Run("successful fetch sends combined query string", func(t *testing.T) {
		var gotQuery string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotQuery = r.URL.Query().Get("q")
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{
				"name": "Charlie Browns",
				"address": "123 Main St",
				"current_popularity": 61,
				"populartimes": [
					{"name": "Monday", "data": [0,0,0,0,0,0,0,10,20,30,40,50,60,70,80,90,80,70,60,50,40,30,20,10]}
				]
			}`))
		}))
		defer server.Close()

		client := NewClient(server.URL, time.Second, logger)
		result, err := client.Fetch(context.Background(), PlaceQuery{Name: "Charlie Browns", Address: "123 Main St"})
		require.NoError(t, err)

		assert.Equal(t, "Charlie Browns, 123 Main St", gotQuery)
		assert.Equal(t, "Charlie Browns", result.Name)
		require.NotNil(t, result.CurrentPopularity)
		assert.Equal(t, 61, *result.CurrentPopularity)
		assert.True(t, result.HasHistorical())
	})

	t.Run("empty payload is ErrNoData", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"name": "Somewhere", "address": "Nowhere"}`))
		}))
		defer server.Close()

		client := NewClient(server.URL, time.Second, logger)
		_, err := client.Fetch(context.Background(), PlaceQuery{Name: "Somewhere", Address: "Nowhere"})
		assert.ErrorIs(t, err, ErrNoData)
	})

	t.Run("unresolved place is ErrNoData", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.NotFound(w, r)
		}))
		defer server.Close()

		client := NewClient(server.URL, time.Second, logger)
		_, err := client.Fetch(context.Background(), PlaceQuery{Name: "Ghost Bar", Address: "404 Nowhere"})
		assert.ErrorIs(t, err, ErrNoData)
	})

	t.Run("server error is reported", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		client := NewClient(server.URL, time.Second, logger)
		_, err := client.Fetch(context.Background(), PlaceQuery{Name: "Bar", Address: "Street 1"})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unexpected HTTP status")
	})

	t.Run("network error is reported", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		server.Close()

		client := NewClient(server.URL, time.Second, logger)
		_, err := client.Fetch(context.Background(), PlaceQuery{Name: "Bar", Address: "Street 1"})
		assert.Error(t, err)
	})

	t.Run("malformed JSON is reported", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"name": `))
		}))
		defer server.Close()

		client := NewClient(server.URL, time.Second, logger)
		_, err := client.Fetch(context.Background(), PlaceQuery{Name: "Bar", Address: "Street 1"})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse")
	})
}

func TestResult_HistoricalAt(t *testing.T) {
	result := &Result{
		Populartimes: []DayPopularity{
			{Name: "Monday", Data: sampleCurve(10)},
			{Name: "Tuesday", Data: sampleCurve(20)},
			{Name: "Wednesday", Data: sampleCurve(30)},
			{Name: "Thursday", Data: sampleCurve(40)},
			{Name: "Friday", Data: sampleCurve(50)},
			{Name: "Saturday", Data: sampleCurve(60)},
			{Name: "Sunday", Data: sampleCurve(70)},
		},
	}

	// 2024-01-01 is a Monday.
	monday := time.Date(2024, 1, 1, 14, 0, 0, 0, time.UTC)
	value, ok := result.HistoricalAt(monday)
	require.True(t, ok)
	assert.Equal(t, 24, value)

	// Sunday maps to the last curve despite Go's Sunday-first weekdays.
	sunday := time.Date(2024, 1, 7, 9, 0, 0, 0, time.UTC)
	value, ok = result.HistoricalAt(sunday)
	require.True(t, ok)
	assert.Equal(t, 79, value)
}

func TestResult_HistoricalAt_MissingData(t *testing.T) {
	result := &Result{CurrentPopularity: intPtr(42)}
	_, ok := result.HistoricalAt(time.Now())
	assert.False(t, ok)
	assert.True(t, result.HasLive())
	assert.False(t, result.HasHistorical())
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0, Clamp(-5))
	assert.Equal(t, 100, Clamp(140))
	assert.Equal(t, 61, Clamp(61))
}
