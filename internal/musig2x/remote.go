package musig2x

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/musig2"
	"github.com/go-errors/errors"
	"github.com/google/uuid"
)

// RemoteEngine delegates the two-round MuSig2 protocol to an external
// threshold-signing gateway (a "Keymeld"-style service, spec §4.4 "Remote
// path"), so the coordinator's own process never holds the funding key's
// share at all. Grounded on the three-call session lifecycle of
// keymeld.rs's Keymeld trait (init_keygen_session / register_participant
// / sign_dlc_batch), reimplemented here as a direct HTTP+JSON client
// rather than an SDK, the way np_webhook.go talks to NowPayments over a
// bare *http.Client.
type RemoteEngine struct {
	baseURL    string
	httpClient *http.Client
	apiKey     string
	poll       PollingConfig
}

// PollingConfig governs how RemoteEngine waits for asynchronous session
// state on the gateway side, grounded on keymeld.rs's PollingConfig
// (max_attempts / initial_delay / max_delay / backoff_multiplier).
type PollingConfig struct {
	MaxAttempts       int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
}

func DefaultPollingConfig() PollingConfig {
	return PollingConfig{
		MaxAttempts:       30,
		InitialDelay:      500 * time.Millisecond,
		MaxDelay:          10 * time.Second,
		BackoffMultiplier: 1.5,
	}
}

func NewRemoteEngine(baseURL, apiKey string, poll PollingConfig) *RemoteEngine {
	return &RemoteEngine{
		baseURL:    baseURL,
		apiKey:     apiKey,
		poll:       poll,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// KeygenSession is what the gateway hands back once a DLC's aggregate
// signing group has been established, spec §4.4 "Remote path":
// "competition creation registers a keygen session with every player's
// ephemeral key; the resulting aggregate key becomes the funding
// output's locking key."
type KeygenSession struct {
	SessionID    string `json:"session_id"`
	AggregateKey []byte `json:"aggregate_key"`
}

type createSessionRequest struct {
	CompetitionID uuid.UUID  `json:"competition_id"`
	Participants  [][]byte   `json:"participants"`
	Coordinator   []byte     `json:"coordinator"`
}

type createSessionResponse struct {
	SessionID string `json:"session_id"`
}

// InitKeygenSession registers the coordinator and every player's
// ephemeral pubkey with the gateway, spec §4.4 "Remote path" step 1.
func (e *RemoteEngine) InitKeygenSession(
	ctx context.Context,
	competitionID uuid.UUID,
	coordinatorPubkey *btcec.PublicKey,
	playerPubkeys []*btcec.PublicKey,
) (*KeygenSession, error) {

	req := createSessionRequest{
		CompetitionID: competitionID,
		Coordinator:   coordinatorPubkey.SerializeCompressed(),
	}
	for _, p := range playerPubkeys {
		req.Participants = append(req.Participants, p.SerializeCompressed())
	}

	var resp createSessionResponse
	if err := e.postJSON(ctx, "/api/v1/keygen/sessions", req, &resp); err != nil {
		return nil, errors.Errorf("create keygen session: %v", err)
	}

	return &KeygenSession{SessionID: resp.SessionID}, nil
}

type registerParticipantRequest struct {
	PublicKey          []byte `json:"public_key"`
	EncryptedPrivateKey string `json:"encrypted_private_key"`
	AuthPubkey         []byte `json:"auth_pubkey"`
}

// RegisterParticipant forwards a player's self-generated registration
// material to the gateway on their behalf, spec §4.4 "Remote path" step
// 2. The player's own share of the signing key never passes through the
// coordinator in cleartext; EncryptedPrivateKey is ciphertext the player
// produced client-side against the gateway's enclave key.
func (e *RemoteEngine) RegisterParticipant(
	ctx context.Context,
	session *KeygenSession,
	playerPubkey *btcec.PublicKey,
	encryptedPrivateKey string,
	authPubkey []byte,
) error {
	req := registerParticipantRequest{
		PublicKey:           playerPubkey.SerializeCompressed(),
		EncryptedPrivateKey: encryptedPrivateKey,
		AuthPubkey:          authPubkey,
	}
	path := fmt.Sprintf("/api/v1/keygen/%s/participants", session.SessionID)
	return e.postJSON(ctx, path, req, nil)
}

type keygenStatusResponse struct {
	Status       string `json:"status"`
	Registered   int    `json:"registered_participants"`
	Expected     int    `json:"expected_participants"`
	AggregateKey []byte `json:"aggregate_key,omitempty"`
}

// WaitForKeygenCompletion polls the gateway until every registered
// participant's share has been combined into the aggregate key, spec
// §4.4 "Remote path" step 3, or the polling budget is exhausted.
func (e *RemoteEngine) WaitForKeygenCompletion(ctx context.Context, session *KeygenSession) (*btcec.PublicKey, error) {
	delay := e.poll.InitialDelay
	path := fmt.Sprintf("/api/v1/keygen/%s/status", session.SessionID)

	for attempt := 0; attempt < e.poll.MaxAttempts; attempt++ {
		var status keygenStatusResponse
		if err := e.getJSON(ctx, path, &status); err != nil {
			return nil, errors.Errorf("poll keygen status: %v", err)
		}
		if status.Status == "completed" && len(status.AggregateKey) > 0 {
			pub, err := btcec.ParsePubKey(status.AggregateKey)
			if err != nil {
				return nil, errors.Errorf("parse aggregate key: %v", err)
			}
			return pub, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * e.poll.BackoffMultiplier)
		if delay > e.poll.MaxDelay {
			delay = e.poll.MaxDelay
		}
	}

	return nil, errors.Errorf(
		"keygen session %s did not complete after %d attempts",
		session.SessionID, e.poll.MaxAttempts)
}

// remoteSignRequest batches every (session key, message, adaptor point)
// tuple into one signing round, mirroring DlcBatchBuilder's grouping of
// outcome and split transactions into a single signing session rather
// than one request per outcome.
type remoteSignRequest struct {
	SessionID string                `json:"session_id"`
	Items     []remoteSignItem      `json:"items"`
}

type remoteSignItem struct {
	Key           string `json:"key"`
	Message       []byte `json:"message"`
	AdaptorPoint  []byte `json:"adaptor_point,omitempty"`
}

type remoteSignResponse struct {
	BatchID string                      `json:"batch_id"`
}

type remoteSignResultsResponse struct {
	Status  string            `json:"status"`
	Results map[string][]byte `json:"results,omitempty"`
}

// Round1 is a no-op for RemoteEngine: the gateway holds the coordinator's
// share and generates its own first-round nonces internally as part of
// sign_dlc_batch, so there is nothing for the coordinator process itself
// to derive or persist, spec §4.4 "Remote path" carries no determinism
// requirement of its own for this reason.
func (e *RemoteEngine) Round1(
	_ context.Context,
	_ []byte,
	sessionKeys []SessionKey,
) (map[SessionKey][musig2.PubNonceSize]byte, error) {
	return make(map[SessionKey][musig2.PubNonceSize]byte, len(sessionKeys)), nil
}

// Round2 submits the full signing batch to the gateway and polls for
// completion, returning the aggregated signature per session key.
func (e *RemoteEngine) Round2(
	ctx context.Context,
	_ []byte,
	sessionKeys []SessionKey,
	_ []*btcec.PublicKey,
	_ map[SessionKey]map[string][musig2.PubNonceSize]byte,
	_ map[SessionKey]map[string]*musig2.PartialSignature,
	messages map[SessionKey][32]byte,
	adaptorPoints map[SessionKey]*btcec.PublicKey,
) (map[SessionKey][]byte, error) {

	req := remoteSignRequest{}
	for _, key := range sessionKeys {
		msg := messages[key]
		item := remoteSignItem{Key: string(key), Message: msg[:]}
		if pt := adaptorPoints[key]; pt != nil {
			item.AdaptorPoint = pt.SerializeCompressed()
		}
		req.Items = append(req.Items, item)
	}

	var createResp remoteSignResponse
	if err := e.postJSON(ctx, "/api/v1/signing/batches", req, &createResp); err != nil {
		return nil, errors.Errorf("create signing batch: %v", err)
	}

	results, err := e.pollSigningBatch(ctx, createResp.BatchID)
	if err != nil {
		return nil, err
	}

	out := make(map[SessionKey][]byte, len(sessionKeys))
	for _, key := range sessionKeys {
		sig, ok := results[string(key)]
		if !ok {
			return nil, errors.Errorf("signing batch %s missing result for session %s", createResp.BatchID, key)
		}
		out[key] = sig
	}
	return out, nil
}

func (e *RemoteEngine) pollSigningBatch(ctx context.Context, batchID string) (map[string][]byte, error) {
	delay := e.poll.InitialDelay
	path := fmt.Sprintf("/api/v1/signing/batches/%s", batchID)

	for attempt := 0; attempt < e.poll.MaxAttempts; attempt++ {
		var resp remoteSignResultsResponse
		if err := e.getJSON(ctx, path, &resp); err != nil {
			return nil, errors.Errorf("poll signing batch: %v", err)
		}
		if resp.Status == "completed" {
			return resp.Results, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * e.poll.BackoffMultiplier)
		if delay > e.poll.MaxDelay {
			delay = e.poll.MaxDelay
		}
	}

	return nil, errors.Errorf("signing batch %s did not complete after %d attempts", batchID, e.poll.MaxAttempts)
}

func (e *RemoteEngine) postJSON(ctx context.Context, path string, body, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return errors.Errorf("marshal request: %v", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	return e.do(req, out)
}

func (e *RemoteEngine) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+path, nil)
	if err != nil {
		return err
	}
	return e.do(req, out)
}

func (e *RemoteEngine) do(req *http.Request, out any) error {
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return errors.Errorf("request %s: %v", req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return errors.Errorf("request %s returned status %d", req.URL.Path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
