package ha

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockClient implements HAClient interface for testing
type MockClient struct {
	connected     bool
	connMu        sync.RWMutex
	published     []PublishedState
	notifications []Notification
	callsMu       sync.Mutex
	publishErr    error
}

// PublishedState records one PublishState call for test verification
type PublishedState struct {
	EntityID   string
	State      string
	Attributes map[string]interface{}
	Time       time.Time
}

// Notification records one Notify call for test verification
type Notification struct {
	Title   string
	Message string
}

// NewMockClient creates a new mock HA client
func NewMockClient() *MockClient {
	return &MockClient{}
}

// Connect simulates connecting to Home Assistant
func (m *MockClient) Connect() error {
	m.connMu.Lock()
	defer m.connMu.Unlock()

	if m.connected {
		return fmt.Errorf("already connected")
	}

	m.connected = true
	return nil
}

// Disconnect simulates disconnecting
func (m *MockClient) Disconnect() error {
	m.connMu.Lock()
	defer m.connMu.Unlock()

	m.connected = false
	return nil
}

// IsConnected returns connection status
func (m *MockClient) IsConnected() bool {
	m.connMu.RLock()
	defer m.connMu.RUnlock()
	return m.connected
}

// FailPublish makes subsequent PublishState calls fail with err
func (m *MockClient) FailPublish(err error) {
	m.callsMu.Lock()
	defer m.callsMu.Unlock()
	m.publishErr = err
}

// PublishState records a published entity state
func (m *MockClient) PublishState(ctx context.Context, entityID, state string, attributes map[string]interface{}) error {
	m.callsMu.Lock()
	defer m.callsMu.Unlock()

	if m.publishErr != nil {
		return m.publishErr
	}

	copied := make(map[string]interface{}, len(attributes))
	for k, v := range attributes {
		copied[k] = v
	}

	m.published = append(m.published, PublishedState{
		EntityID:   entityID,
		State:      state,
		Attributes: copied,
		Time:       time.Now(),
	})
	return nil
}

// Notify records a persistent notification
func (m *MockClient) Notify(ctx context.Context, title, message string) error {
	m.callsMu.Lock()
	defer m.callsMu.Unlock()

	m.notifications = append(m.notifications, Notification{
		Title:   title,
		Message: message,
	})
	return nil
}

// PublishedStates returns all recorded state publications
func (m *MockClient) PublishedStates() []PublishedState {
	m.callsMu.Lock()
	defer m.callsMu.Unlock()

	states := make([]PublishedState, len(m.published))
	copy(states, m.published)
	return states
}

// LastPublished returns the most recent publication for an entity
func (m *MockClient) LastPublished(entityID string) *PublishedState {
	m.callsMu.Lock()
	defer m.callsMu.Unlock()

	for i := len(m.published) - 1; i >= 0; i-- {
		if m.published[i].EntityID == entityID {
			state := m.published[i]
			return &state
		}
	}
	return nil
}

// Notifications returns all recorded notifications
func (m *MockClient) Notifications() []Notification {
	m.callsMu.Lock()
	defer m.callsMu.Unlock()

	notifications := make([]Notification, len(m.notifications))
	copy(notifications, m.notifications)
	return notifications
}
