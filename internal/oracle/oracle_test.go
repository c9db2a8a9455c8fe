package oracle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

var _ Client = (*MockClient)(nil)
var _ Client = (*HTTPClient)(nil)

func TestMockClientCreateEventIsLaterGettable(t *testing.T) {
	client := NewMockClient()

	a, err := client.CreateEvent(context.Background(), EventSubmission{Stations: []string{"KSEA"}})
	require.NoError(t, err)
	require.Equal(t, "mock-event", a.EventID)

	got, attestation, err := client.GetEvent(context.Background(), a.EventID)
	require.NoError(t, err)
	require.Equal(t, a.EventID, got.EventID)
	require.Nil(t, attestation)
}

func TestMockClientSubmitEntriesAccumulates(t *testing.T) {
	client := NewMockClient()
	a, err := client.CreateEvent(context.Background(), EventSubmission{})
	require.NoError(t, err)

	picks := []EntryPick{{Station: "KSEA", Pick: "above"}}
	require.NoError(t, client.SubmitEntries(context.Background(), a.EventID, [][]EntryPick{picks}))
	require.NoError(t, client.SubmitEntries(context.Background(), a.EventID, [][]EntryPick{picks}))

	require.Len(t, client.SubmittedPicks[a.EventID], 2)
}

func TestMockClientGetEventReturnsSetAttestation(t *testing.T) {
	client := NewMockClient()
	a, err := client.CreateEvent(context.Background(), EventSubmission{})
	require.NoError(t, err)

	want := &Attestation{Scalar: [32]byte{9}, OutcomeIndex: 2}
	client.SetAttestation(a.EventID, want)

	_, got, err := client.GetEvent(context.Background(), a.EventID)
	require.NoError(t, err)
	require.Equal(t, want, got)
}
