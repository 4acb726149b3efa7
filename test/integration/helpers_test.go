package integration

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"populartimes/internal/clock"
	"populartimes/internal/config"
	"populartimes/internal/ha"
	"populartimes/internal/populartimes"
	"populartimes/internal/registry"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// MockHAServer stands in for Home Assistant: the WebSocket endpoint used for
// service calls and the REST states API used for entity publishing.
type MockHAServer struct {
	Server *httptest.Server
	Token  string

	mu           sync.Mutex
	serviceCalls []ha.CallServiceRequest
	states       map[string]ha.StatePayload
}

// NewMockHAServer starts a mock Home Assistant accepting the given token.
func NewMockHAServer(t *testing.T, token string) *MockHAServer {
	t.Helper()

	s := &MockHAServer{
		Token:  token,
		states: make(map[string]ha.StatePayload),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/websocket", s.handleWebSocket)
	mux.HandleFunc("/api/states/", s.handleStates)
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Server.Close)
	return s
}

func (s *MockHAServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	conn.WriteJSON(ha.Message{Type: "auth_required"})

	var authMsg ha.AuthMessage
	if err := conn.ReadJSON(&authMsg); err != nil {
		return
	}
	if authMsg.AccessToken != s.Token {
		conn.WriteJSON(ha.Message{Type: "auth_invalid"})
		return
	}
	conn.WriteJSON(ha.Message{Type: "auth_ok"})

	for {
		var raw json.RawMessage
		if err := conn.ReadJSON(&raw); err != nil {
			return
		}

		var req ha.CallServiceRequest
		if err := json.Unmarshal(raw, &req); err != nil || req.Type != "call_service" {
			continue
		}

		s.mu.Lock()
		s.serviceCalls = append(s.serviceCalls, req)
		s.mu.Unlock()

		success := true
		conn.WriteJSON(ha.Message{ID: req.ID, Type: "result", Success: &success})
	}
}

func (s *MockHAServer) handleStates(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer "+s.Token {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	var payload ha.StatePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	entityID := r.URL.Path[len("/api/states/"):]

	s.mu.Lock()
	_, existed := s.states[entityID]
	s.states[entityID] = payload
	s.mu.Unlock()

	if existed {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusCreated)
	}
}

// State returns the last payload published for an entity.
func (s *MockHAServer) State(entityID string) (ha.StatePayload, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	payload, ok := s.states[entityID]
	return payload, ok
}

// ServiceCalls returns a copy of all recorded service calls.
func (s *MockHAServer) ServiceCalls() []ha.CallServiceRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	calls := make([]ha.CallServiceRequest, len(s.serviceCalls))
	copy(calls, s.serviceCalls)
	return calls
}

// PopularityServer is a mock popularity data endpoint. Results are keyed by
// the q search string; unknown queries resolve to 404.
type PopularityServer struct {
	Server *httptest.Server

	mu      sync.Mutex
	results map[string]*populartimes.Result
	fail    bool
}

// NewPopularityServer starts a mock popularity data service.
func NewPopularityServer(t *testing.T) *PopularityServer {
	t.Helper()

	s := &PopularityServer{results: make(map[string]*populartimes.Result)}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Server.Close)
	return s
}

func (s *PopularityServer) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	fail := s.fail
	result, ok := s.results[r.URL.Query().Get("q")]
	s.mu.Unlock()

	if fail {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// SetResult registers the payload returned for a search string.
func (s *PopularityServer) SetResult(query string, result *populartimes.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[query] = result
}

// SetFailing toggles a transient outage of the data service.
func (s *PopularityServer) SetFailing(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = fail
}

// liveResult builds a payload with both a live value and full weekly curves.
func liveResult(name, address string, live int) *populartimes.Result {
	days := []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}
	result := &populartimes.Result{
		Name:              name,
		Address:           address,
		CurrentPopularity: &live,
	}
	for d, day := range days {
		data := make([]int, 24)
		for h := range data {
			data[h] = (d*10 + h) % 101
		}
		result.Populartimes = append(result.Populartimes, populartimes.DayPopularity{Name: day, Data: data})
	}
	return result
}

// setupTest wires the full bridge: mock HA, mock data service, a connected
// client and a registry driven by a mock clock.
func setupTest(t *testing.T) (*MockHAServer, *PopularityServer, *registry.Registry, *clock.MockClock) {
	t.Helper()
	logger, _ := zap.NewDevelopment()

	haServer := NewMockHAServer(t, "test_token")
	dataServer := NewPopularityServer(t)

	client := ha.NewClient(haServer.Server.URL, "test_token", logger)
	require.NoError(t, client.Connect(), "client should connect to mock HA")
	t.Cleanup(func() { client.Disconnect() })

	store := config.NewStore(filepath.Join(t.TempDir(), "entries.json"), logger)
	require.NoError(t, store.Load())

	fetcher := populartimes.NewClient(dataServer.Server.URL, 5*time.Second, logger)
	clk := clock.NewMockClock(time.Date(2024, 1, 3, 14, 30, 0, 0, time.UTC))

	reg := registry.New(store, fetcher, client, clk, logger, 10*time.Minute)
	t.Cleanup(reg.Stop)

	return haServer, dataServer, reg, clk
}

// waitFor polls until the condition holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}
