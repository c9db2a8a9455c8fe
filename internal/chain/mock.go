package chain

import (
	"context"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// MockClient is an in-memory stand-in for Client, used by
// state-transition tests that shouldn't need a live backend. Grounded on
// htlcswitch's hand-written mock links: a struct of canned return values
// plus a record of what was called.
type MockClient struct {
	mu sync.Mutex

	CoordinatorKey *btcec.PrivateKey

	Confirmations map[chainhash.Hash]int32
	Height        int32
	FeeRate       int64
	Timestamps    map[chainhash.Hash]int64

	Broadcasted []string
}

func NewMockClient(coordinatorKey *btcec.PrivateKey) *MockClient {
	return &MockClient{
		CoordinatorKey: coordinatorKey,
		Confirmations:  make(map[chainhash.Hash]int32),
		Timestamps:     make(map[chainhash.Hash]int64),
		FeeRate:        2,
	}
}

func (m *MockClient) CoordinatorPrivateKey(context.Context) (*btcec.PrivateKey, error) {
	priv, _ := btcec.PrivKeyFromBytes(m.CoordinatorKey.Serialize())
	return priv, nil
}

func (m *MockClient) CoordinatorPublicKey(context.Context) (*btcec.PublicKey, error) {
	return m.CoordinatorKey.PubKey(), nil
}

func (m *MockClient) BuildPSBT(context.Context, []byte, int64, int64) (*psbt.Packet, error) {
	return nil, nil
}

func (m *MockClient) SignWithEscrow(_ context.Context, packet *psbt.Packet) (*psbt.Packet, error) {
	return packet, nil
}

func (m *MockClient) FinalizeWithEscrow(context.Context, *psbt.Packet) ([]byte, error) {
	return []byte{}, nil
}

func (m *MockClient) Broadcast(_ context.Context, rawTx []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Broadcasted = append(m.Broadcasted, string(rawTx))
	return nil
}

func (m *MockClient) BroadcastTx(_ context.Context, rawTxHex string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Broadcasted = append(m.Broadcasted, rawTxHex)
	return nil
}

func (m *MockClient) TxConfirmations(_ context.Context, txid chainhash.Hash) (int32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Confirmations[txid], nil
}

func (m *MockClient) BlockHeight(context.Context) (int32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Height, nil
}

func (m *MockClient) ConfirmedTimestamp(_ context.Context, txid chainhash.Hash, _ int32) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Timestamps[txid], nil
}

func (m *MockClient) EstimateFee(_ context.Context, confTarget uint32) (FeeEstimate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return FeeEstimate{ConfTarget: confTarget, SatPerVByte: m.FeeRate}, nil
}
