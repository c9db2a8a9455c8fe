package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/go-errors/errors"
)

// HTTPClient is a direct HTTP+JSON Oracle Client, grounded on
// np_webhook.go's bare *http.Client idiom rather than a generated SDK.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewHTTPClient(baseURL, apiKey string) *HTTPClient {
	return &HTTPClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

type createEventRequest struct {
	Stations  []string  `json:"stations"`
	StartDate time.Time `json:"start_observation_date"`
	EndDate   time.Time `json:"end_observation_date"`
	SignDate  time.Time `json:"signing_date"`
}

type eventResponse struct {
	EventID       string     `json:"event_id"`
	LockingPoints [][]byte   `json:"locking_points"`
	Expiry        *time.Time `json:"expiry,omitempty"`
	Attestation   []byte     `json:"attestation,omitempty"`
	OutcomeIndex  *int       `json:"outcome_index,omitempty"`
}

func (c *HTTPClient) CreateEvent(ctx context.Context, submission EventSubmission) (*EventAnnouncement, error) {
	req := createEventRequest{
		Stations:  submission.Stations,
		StartDate: submission.StartObservationDate,
		EndDate:   submission.EndObservationDate,
		SignDate:  submission.SigningDate,
	}

	var resp eventResponse
	if err := c.postJSON(ctx, "/api/v1/events", req, &resp); err != nil {
		return nil, errors.Errorf("create event: %v", err)
	}

	return announcementFromResponse(resp)
}

type submitEntriesRequest struct {
	Picks [][]EntryPick `json:"picks"`
}

func (c *HTTPClient) SubmitEntries(ctx context.Context, eventID string, picks [][]EntryPick) error {
	req := submitEntriesRequest{Picks: picks}
	if err := c.postJSON(ctx, "/api/v1/events/"+eventID+"/entries", req, nil); err != nil {
		return errors.Errorf("submit entries: %v", err)
	}
	return nil
}

func (c *HTTPClient) GetEvent(ctx context.Context, eventID string) (*EventAnnouncement, *Attestation, error) {
	var resp eventResponse
	if err := c.getJSON(ctx, "/api/v1/events/"+eventID, &resp); err != nil {
		return nil, nil, errors.Errorf("get event: %v", err)
	}

	announcement, err := announcementFromResponse(resp)
	if err != nil {
		return nil, nil, err
	}

	if len(resp.Attestation) == 0 || resp.OutcomeIndex == nil {
		return announcement, nil, nil
	}

	var scalar [32]byte
	if len(resp.Attestation) != len(scalar) {
		return nil, nil, errors.Errorf("attestation scalar has wrong length %d", len(resp.Attestation))
	}
	copy(scalar[:], resp.Attestation)

	return announcement, &Attestation{Scalar: scalar, OutcomeIndex: *resp.OutcomeIndex}, nil
}

func announcementFromResponse(resp eventResponse) (*EventAnnouncement, error) {
	points := make([]*btcec.PublicKey, 0, len(resp.LockingPoints))
	for i, raw := range resp.LockingPoints {
		pub, err := btcec.ParsePubKey(raw)
		if err != nil {
			return nil, errors.Errorf("locking point %d: %v", i, err)
		}
		points = append(points, pub)
	}
	return &EventAnnouncement{
		EventID:       resp.EventID,
		LockingPoints: points,
		Expiry:        resp.Expiry,
	}, nil
}

func (c *HTTPClient) postJSON(ctx context.Context, path string, body, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return errors.Errorf("marshal request: %v", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *HTTPClient) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *HTTPClient) do(req *http.Request, out any) error {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
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
