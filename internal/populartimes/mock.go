package populartimes

import (
	"context"
	"sync"
)

// MockFetcher implements Fetcher for testing. Results and errors are
// scripted per call; Block can be used to hold a fetch open.
type MockFetcher struct {
	mu      sync.Mutex
	result  *Result
	err     error
	queries []PlaceQuery
	block   chan struct{}
}

// NewMockFetcher creates a mock fetcher returning the given result.
func NewMockFetcher() *MockFetcher {
	return &MockFetcher{}
}

// SetResult sets the result returned by subsequent fetches.
func (m *MockFetcher) SetResult(result *Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.result = result
	m.err = nil
}

// SetError makes subsequent fetches fail with err.
func (m *MockFetcher) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Block makes subsequent fetches wait until Unblock is called.
func (m *MockFetcher) Block() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.block = make(chan struct{})
}

// Unblock releases fetches held by Block.
func (m *MockFetcher) Unblock() {
	m.mu.Lock()
	block := m.block
	m.block = nil
	m.mu.Unlock()

	if block != nil {
		close(block)
	}
}

// Fetch records the query and returns the scripted result or error.
func (m *MockFetcher) Fetch(ctx context.Context, query PlaceQuery) (*Result, error) {
	m.mu.Lock()
	m.queries = append(m.queries, query)
	block := m.block
	m.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

// Queries returns all queries seen so far.
func (m *MockFetcher) Queries() []PlaceQuery {
	m.mu.Lock()
	defer m.mu.Unlock()
	queries := make([]PlaceQuery, len(m.queries))
	copy(queries, m.queries)
	return queries
}

// FetchCount returns the number of fetches started.
func (m *MockFetcher) FetchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queries)
}
