package oracle

import (
	"context"
	"sync"
)

// MockClient is an in-memory Oracle Client stand-in for
// state-transition tests.
type MockClient struct {
	mu sync.Mutex

	Events       map[string]*EventAnnouncement
	Attestations map[string]*Attestation
	SubmittedPicks map[string][][]EntryPick

	NextEventID string
}

func NewMockClient() *MockClient {
	return &MockClient{
		Events:         make(map[string]*EventAnnouncement),
		Attestations:   make(map[string]*Attestation),
		SubmittedPicks: make(map[string][][]EntryPick),
		NextEventID:    "mock-event",
	}
}

func (m *MockClient) CreateEvent(_ context.Context, _ EventSubmission) (*EventAnnouncement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := &EventAnnouncement{EventID: m.NextEventID}
	m.Events[a.EventID] = a
	return a, nil
}

func (m *MockClient) SubmitEntries(_ context.Context, eventID string, picks [][]EntryPick) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SubmittedPicks[eventID] = append(m.SubmittedPicks[eventID], picks...)
	return nil
}

func (m *MockClient) GetEvent(_ context.Context, eventID string) (*EventAnnouncement, *Attestation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Events[eventID], m.Attestations[eventID], nil
}

// SetAttestation lets a test simulate the oracle revealing an outcome.
func (m *MockClient) SetAttestation(eventID string, a *Attestation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Attestations[eventID] = a
}
