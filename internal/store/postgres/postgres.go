// Package postgres is the Competition Store's concrete persistence
// layer: a pgx connection pool plus golang-migrate schema management,
// JSON-encoded complex columns, and text UUIDs, spec §6 "Persisted state
// layout". Ticket and payout timestamps are TIMESTAMPTZ columns; only the
// timestamps inside the JSON columns (milestones, errors) are RFC3339
// text.
package postgres

import (
	"context"
	"embed"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/go-errors/errors"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/5day4cast/coordinator-core/internal/build"
	"github.com/5day4cast/coordinator-core/internal/competition"
	"github.com/5day4cast/coordinator-core/internal/payout"
	"github.com/5day4cast/coordinator-core/internal/secret"
	"github.com/5day4cast/coordinator-core/internal/store"
	"github.com/5day4cast/coordinator-core/internal/ticket"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var log = build.Logger(build.SubsystemStore)

// Store is the postgres-backed implementation of store.Store. Writes are
// funneled through a store.SerializedWriter over the write pool; reads
// use a separate pool, spec §5 "reads use a separate read pool".
type Store struct {
	writePool *pgxpool.Pool
	readPool  *pgxpool.Pool
	writer    *store.SerializedWriter
}

// New connects two pools against dsn (a write pool sized to 1 so the
// driver itself enforces serialization even before SerializedWriter
// does, and a larger read pool) and runs pending migrations.
func New(ctx context.Context, dsn string) (*Store, error) {
	writeCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Errorf("parse dsn: %v", err)
	}
	writeCfg.MaxConns = 1

	writePool, err := pgxpool.ConnectConfig(ctx, writeCfg)
	if err != nil {
		return nil, errors.Errorf("connect write pool: %v", err)
	}

	readPool, err := pgxpool.Connect(ctx, dsn)
	if err != nil {
		writePool.Close()
		return nil, errors.Errorf("connect read pool: %v", err)
	}

	if err := runMigrations(dsn); err != nil {
		writePool.Close()
		readPool.Close()
		return nil, errors.Errorf("run migrations: %v", err)
	}

	writer := store.NewSerializedWriter(256)
	if err := writer.Start(); err != nil {
		writePool.Close()
		readPool.Close()
		return nil, errors.Errorf("start writer: %v", err)
	}

	return &Store{writePool: writePool, readPool: readPool, writer: writer}, nil
}

func runMigrations(dsn string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return errors.Errorf("open embedded migrations: %v", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return errors.Errorf("init migrator: %v", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return errors.Errorf("apply migrations: %v", err)
	}
	return nil
}

// Close stops the writer and both pools. It takes no context and puts no
// time limit on the shutdown: it waits for the writer's in-flight job to
// finish.
func (s *Store) Close() error {
	if err := s.writer.Stop(); err != nil {
		log.Errorf("stop writer: %v", err)
	}
	s.writePool.Close()
	s.readPool.Close()
	return nil
}

func (s *Store) write(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	return s.writer.Submit(ctx, func(ctx context.Context) error {
		tx, err := s.writePool.Begin(ctx)
		if err != nil {
			return errors.Errorf("begin tx: %v", err)
		}
		defer tx.Rollback(ctx)

		if err := fn(ctx, tx); err != nil {
			return err
		}
		return tx.Commit(ctx)
	})
}

// --- competitions ---

func (s *Store) CreateCompetition(ctx context.Context, c *competition.Competition) error {
	return s.write(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return upsertCompetition(ctx, tx, c)
	})
}

func (s *Store) SaveCompetition(ctx context.Context, c *competition.Competition) error {
	return s.write(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return upsertCompetition(ctx, tx, c)
	})
}

func upsertCompetition(ctx context.Context, tx pgx.Tx, c *competition.Competition) error {
	submission, err := json.Marshal(c.Submission)
	if err != nil {
		return errors.Errorf("marshal submission: %v", err)
	}
	publicNonces, err := json.Marshal(c.PublicNonces)
	if err != nil {
		return errors.Errorf("marshal public nonces: %v", err)
	}
	aggregatedNonces, err := json.Marshal(c.AggregatedNonces)
	if err != nil {
		return errors.Errorf("marshal aggregated nonces: %v", err)
	}
	partialSigs, err := json.Marshal(c.PartialSignatures)
	if err != nil {
		return errors.Errorf("marshal partial signatures: %v", err)
	}
	announcement, err := marshalEventAnnouncement(c.EventAnnouncement)
	if err != nil {
		return err
	}
	attestation, err := json.Marshal(c.Attestation)
	if err != nil {
		return errors.Errorf("marshal attestation: %v", err)
	}
	milestones, err := json.Marshal(c.Milestones)
	if err != nil {
		return errors.Errorf("marshal milestones: %v", err)
	}
	errorsJSON, err := json.Marshal(c.Errors)
	if err != nil {
		return errors.Errorf("marshal errors: %v", err)
	}
	splitOutputIndex, err := json.Marshal(c.SplitOutputIndex)
	if err != nil {
		return errors.Errorf("marshal split output index: %v", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO competitions (
			id, submission, total_entries, total_paid_entries, nonces_submitted,
			sigs_submitted, paid_out_entries, funding_psbt_base64, funding_outpoint,
			funding_tx_hex, outcome_tx_hex, expiry_tx_hex, coordinator_public_nonces,
			public_nonces, aggregated_nonces, partial_signatures, signed_contract_hex,
			event_announcement, attestation, milestones, errors, current_state,
			close_tx_hex, split_close_tx_hex, split_output_index
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25)
		ON CONFLICT (id) DO UPDATE SET
			submission = EXCLUDED.submission,
			total_entries = EXCLUDED.total_entries,
			total_paid_entries = EXCLUDED.total_paid_entries,
			nonces_submitted = EXCLUDED.nonces_submitted,
			sigs_submitted = EXCLUDED.sigs_submitted,
			paid_out_entries = EXCLUDED.paid_out_entries,
			funding_psbt_base64 = EXCLUDED.funding_psbt_base64,
			funding_outpoint = EXCLUDED.funding_outpoint,
			funding_tx_hex = EXCLUDED.funding_tx_hex,
			outcome_tx_hex = EXCLUDED.outcome_tx_hex,
			expiry_tx_hex = EXCLUDED.expiry_tx_hex,
			coordinator_public_nonces = EXCLUDED.coordinator_public_nonces,
			public_nonces = EXCLUDED.public_nonces,
			aggregated_nonces = EXCLUDED.aggregated_nonces,
			partial_signatures = EXCLUDED.partial_signatures,
			signed_contract_hex = EXCLUDED.signed_contract_hex,
			event_announcement = EXCLUDED.event_announcement,
			attestation = EXCLUDED.attestation,
			milestones = EXCLUDED.milestones,
			errors = EXCLUDED.errors,
			current_state = EXCLUDED.current_state,
			close_tx_hex = EXCLUDED.close_tx_hex,
			split_close_tx_hex = EXCLUDED.split_close_tx_hex,
			split_output_index = EXCLUDED.split_output_index
	`,
		c.ID.String(), submission, c.TotalEntries, c.TotalPaidEntries, c.NoncesSubmitted,
		c.SigsSubmitted, c.PaidOutEntries, c.FundingPSBTBase64, c.FundingOutpoint,
		c.FundingTxHex, c.OutcomeTxHex, c.ExpiryTxHex, c.CoordinatorPublicNonces,
		publicNonces, aggregatedNonces, partialSigs, c.SignedContractHex,
		announcement, attestation, milestones, errorsJSON, string(c.CurrentState),
		c.CloseTxHex, c.SplitCloseTxHex, splitOutputIndex,
	)
	if err != nil {
		return errors.Errorf("upsert competition: %v", err)
	}
	return nil
}

func (s *Store) CompetitionByID(ctx context.Context, id uuid.UUID) (*competition.Competition, error) {
	row := s.readPool.QueryRow(ctx, `
		SELECT id, submission, total_entries, total_paid_entries, nonces_submitted,
			sigs_submitted, paid_out_entries, funding_psbt_base64, funding_outpoint,
			funding_tx_hex, outcome_tx_hex, expiry_tx_hex, coordinator_public_nonces,
			public_nonces, aggregated_nonces, partial_signatures, signed_contract_hex,
			event_announcement, attestation, milestones, errors, current_state,
			close_tx_hex, split_close_tx_hex, split_output_index
		FROM competitions WHERE id = $1
	`, id.String())
	c, err := scanCompetition(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Errorf("query competition %s: %v", id, err)
	}
	return c, nil
}

func (s *Store) ListActiveCompetitions(ctx context.Context) ([]*competition.Competition, error) {
	rows, err := s.readPool.Query(ctx, `
		SELECT id, submission, total_entries, total_paid_entries, nonces_submitted,
			sigs_submitted, paid_out_entries, funding_psbt_base64, funding_outpoint,
			funding_tx_hex, outcome_tx_hex, expiry_tx_hex, coordinator_public_nonces,
			public_nonces, aggregated_nonces, partial_signatures, signed_contract_hex,
			event_announcement, attestation, milestones, errors, current_state,
			close_tx_hex, split_close_tx_hex, split_output_index
		FROM competitions
		WHERE current_state NOT IN ($1, $2, $3)
	`, string(competition.StateCompleted), string(competition.StateCancelled), string(competition.StateFailed))
	if err != nil {
		return nil, errors.Errorf("query active competitions: %v", err)
	}
	defer rows.Close()

	var out []*competition.Competition
	for rows.Next() {
		c, err := scanCompetition(rows)
		if err != nil {
			return nil, errors.Errorf("scan competition: %v", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCompetition(row rowScanner) (*competition.Competition, error) {
	var (
		idStr                                       string
		submission, publicNonces, aggregatedNonces  []byte
		partialSigs, announcement, attestation      []byte
		milestones, errorsJSON, splitOutputIndex    []byte
		currentState                                string
		c                                            competition.Competition
	)

	if err := row.Scan(
		&idStr, &submission, &c.TotalEntries, &c.TotalPaidEntries, &c.NoncesSubmitted,
		&c.SigsSubmitted, &c.PaidOutEntries, &c.FundingPSBTBase64, &c.FundingOutpoint,
		&c.FundingTxHex, &c.OutcomeTxHex, &c.ExpiryTxHex, &c.CoordinatorPublicNonces,
		&publicNonces, &aggregatedNonces, &partialSigs, &c.SignedContractHex,
		&announcement, &attestation, &milestones, &errorsJSON, &currentState,
		&c.CloseTxHex, &c.SplitCloseTxHex, &splitOutputIndex,
	); err != nil {
		return nil, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, errors.Errorf("parse competition id: %v", err)
	}
	c.ID = id
	c.CurrentState = competition.State(currentState)

	if err := json.Unmarshal(submission, &c.Submission); err != nil {
		return nil, errors.Errorf("unmarshal submission: %v", err)
	}
	if err := json.Unmarshal(publicNonces, &c.PublicNonces); err != nil {
		return nil, errors.Errorf("unmarshal public nonces: %v", err)
	}
	if err := json.Unmarshal(aggregatedNonces, &c.AggregatedNonces); err != nil {
		return nil, errors.Errorf("unmarshal aggregated nonces: %v", err)
	}
	if err := json.Unmarshal(partialSigs, &c.PartialSignatures); err != nil {
		return nil, errors.Errorf("unmarshal partial signatures: %v", err)
	}
	if err := json.Unmarshal(milestones, &c.Milestones); err != nil {
		return nil, errors.Errorf("unmarshal milestones: %v", err)
	}
	if err := json.Unmarshal(errorsJSON, &c.Errors); err != nil {
		return nil, errors.Errorf("unmarshal errors: %v", err)
	}
	if err := json.Unmarshal(splitOutputIndex, &c.SplitOutputIndex); err != nil {
		return nil, errors.Errorf("unmarshal split output index: %v", err)
	}

	announcementVal, err := unmarshalEventAnnouncement(announcement)
	if err != nil {
		return nil, err
	}
	c.EventAnnouncement = announcementVal

	if len(attestation) > 0 && string(attestation) != "null" {
		var a competition.Attestation
		if err := json.Unmarshal(attestation, &a); err != nil {
			return nil, errors.Errorf("unmarshal attestation: %v", err)
		}
		c.Attestation = &a
	}

	return &c, nil
}

// eventAnnouncementDTO is the JSON-friendly shape of
// competition.EventAnnouncement: locking points don't marshal as
// *btcec.PublicKey directly, so they're hex-encoded compressed points.
type eventAnnouncementDTO struct {
	EventID       string    `json:"event_id"`
	LockingPoints []string  `json:"locking_points"`
	Expiry        *time.Time `json:"expiry,omitempty"`
}

func marshalEventAnnouncement(a *competition.EventAnnouncement) ([]byte, error) {
	if a == nil {
		return json.Marshal(nil)
	}
	dto := eventAnnouncementDTO{EventID: a.EventID, Expiry: a.Expiry}
	for _, p := range a.LockingPoints {
		dto.LockingPoints = append(dto.LockingPoints, hex.EncodeToString(p.SerializeCompressed()))
	}
	return json.Marshal(dto)
}

func unmarshalEventAnnouncement(raw []byte) (*competition.EventAnnouncement, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var dto eventAnnouncementDTO
	if err := json.Unmarshal(raw, &dto); err != nil {
		return nil, errors.Errorf("unmarshal event announcement: %v", err)
	}
	a := &competition.EventAnnouncement{EventID: dto.EventID, Expiry: dto.Expiry}
	for i, hexPoint := range dto.LockingPoints {
		raw, err := hex.DecodeString(hexPoint)
		if err != nil {
			return nil, errors.Errorf("decode locking point %d: %v", i, err)
		}
		pub, err := btcec.ParsePubKey(raw)
		if err != nil {
			return nil, errors.Errorf("parse locking point %d: %v", i, err)
		}
		a.LockingPoints = append(a.LockingPoints, pub)
	}
	return a, nil
}

// --- tickets ---

func (s *Store) CreateTickets(ctx context.Context, tickets []*ticket.Ticket) error {
	return s.write(ctx, func(ctx context.Context, tx pgx.Tx) error {
		for _, t := range tickets {
			if err := upsertTicket(ctx, tx, t); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) SaveTicket(ctx context.Context, t *ticket.Ticket) error {
	return s.write(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return upsertTicket(ctx, tx, t)
	})
}

func upsertTicket(ctx context.Context, tx pgx.Tx, t *ticket.Ticket) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO tickets (
			id, competition_id, preimage, preimage_hash, payment_request,
			escrow_tx_hex, user_pubkey, expiry, reserved_at, paid_at, settled_at, used_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (id) DO UPDATE SET
			payment_request = EXCLUDED.payment_request,
			escrow_tx_hex = EXCLUDED.escrow_tx_hex,
			user_pubkey = EXCLUDED.user_pubkey,
			expiry = EXCLUDED.expiry,
			reserved_at = EXCLUDED.reserved_at,
			paid_at = EXCLUDED.paid_at,
			settled_at = EXCLUDED.settled_at,
			used_at = EXCLUDED.used_at
	`,
		t.ID.String(), t.CompetitionID.String(), t.Preimage.Reveal(), hex.EncodeToString(t.PreimageHash[:]),
		t.PaymentRequest, t.EscrowTxHex, t.UserPubkey, t.Expiry,
		t.ReservedAt, t.PaidAt, t.SettledAt, t.UsedAt,
	)
	if err != nil {
		return errors.Errorf("upsert ticket: %v", err)
	}
	return nil
}

func (s *Store) TicketByID(ctx context.Context, id uuid.UUID) (*ticket.Ticket, error) {
	return s.queryTicket(ctx, "id = $1", id.String())
}

func (s *Store) TicketByHash(ctx context.Context, hash [32]byte) (*ticket.Ticket, error) {
	return s.queryTicket(ctx, "preimage_hash = $1", hex.EncodeToString(hash[:]))
}

func (s *Store) queryTicket(ctx context.Context, whereClause string, arg any) (*ticket.Ticket, error) {
	row := s.readPool.QueryRow(ctx, `
		SELECT id, competition_id, preimage, preimage_hash, payment_request,
			escrow_tx_hex, user_pubkey, expiry, reserved_at, paid_at, settled_at, used_at
		FROM tickets WHERE `+whereClause, arg)
	t, err := scanTicket(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Errorf("query ticket: %v", err)
	}
	return t, nil
}

func (s *Store) TicketsForCompetition(ctx context.Context, competitionID uuid.UUID) ([]*ticket.Ticket, error) {
	rows, err := s.readPool.Query(ctx, `
		SELECT id, competition_id, preimage, preimage_hash, payment_request,
			escrow_tx_hex, user_pubkey, expiry, reserved_at, paid_at, settled_at, used_at
		FROM tickets WHERE competition_id = $1
	`, competitionID.String())
	if err != nil {
		return nil, errors.Errorf("query tickets for competition %s: %v", competitionID, err)
	}
	defer rows.Close()

	var out []*ticket.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, errors.Errorf("scan ticket: %v", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) AcceptedTicketsAwaitingSettlement(ctx context.Context, competitionID uuid.UUID) ([]*ticket.Ticket, error) {
	rows, err := s.readPool.Query(ctx, `
		SELECT id, competition_id, preimage, preimage_hash, payment_request,
			escrow_tx_hex, user_pubkey, expiry, reserved_at, paid_at, settled_at, used_at
		FROM tickets
		WHERE competition_id = $1 AND paid_at IS NOT NULL AND settled_at IS NULL
	`, competitionID.String())
	if err != nil {
		return nil, errors.Errorf("query accepted tickets: %v", err)
	}
	defer rows.Close()

	var out []*ticket.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, errors.Errorf("scan ticket: %v", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTicket(row rowScanner) (*ticket.Ticket, error) {
	var (
		idStr, competitionIDStr string
		preimage                []byte
		preimageHashHex         string
		t                       ticket.Ticket
	)

	if err := row.Scan(
		&idStr, &competitionIDStr, &preimage, &preimageHashHex, &t.PaymentRequest,
		&t.EscrowTxHex, &t.UserPubkey, &t.Expiry, &t.ReservedAt, &t.PaidAt, &t.SettledAt, &t.UsedAt,
	); err != nil {
		return nil, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, errors.Errorf("parse ticket id: %v", err)
	}
	competitionID, err := uuid.Parse(competitionIDStr)
	if err != nil {
		return nil, errors.Errorf("parse competition id: %v", err)
	}
	hashBytes, err := hex.DecodeString(preimageHashHex)
	if err != nil {
		return nil, errors.Errorf("decode preimage hash: %v", err)
	}

	t.ID = id
	t.CompetitionID = competitionID
	t.Preimage = secret.New(preimage)
	copy(t.PreimageHash[:], hashBytes)

	return &t, nil
}

func (s *Store) MarkTicketPaid(ctx context.Context, ticketID uuid.UUID, paidAt time.Time) error {
	return s.write(ctx, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `UPDATE tickets SET paid_at = $1 WHERE id = $2`, paidAt, ticketID.String())
		return err
	})
}

func (s *Store) MarkTicketSettled(ctx context.Context, ticketID uuid.UUID, settledAt time.Time) error {
	return s.write(ctx, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `UPDATE tickets SET settled_at = $1 WHERE id = $2`, settledAt, ticketID.String())
		return err
	})
}

func (s *Store) ResetTicket(ctx context.Context, ticketID uuid.UUID) error {
	return s.write(ctx, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			UPDATE tickets SET reserved_at = NULL, paid_at = NULL, user_pubkey = '' WHERE id = $1
		`, ticketID.String())
		return err
	})
}

func (s *Store) CompetitionFundingSettled(ctx context.Context, competitionID uuid.UUID) (bool, error) {
	var milestonesJSON []byte
	err := s.readPool.QueryRow(ctx, `SELECT milestones FROM competitions WHERE id = $1`, competitionID.String()).
		Scan(&milestonesJSON)
	if err != nil {
		return false, errors.Errorf("query milestones: %v", err)
	}
	var m competition.Milestones
	if err := json.Unmarshal(milestonesJSON, &m); err != nil {
		return false, errors.Errorf("unmarshal milestones: %v", err)
	}
	return m.FundingSettledAt != nil, nil
}

func (s *Store) CompetitionTerminalFailed(ctx context.Context, competitionID uuid.UUID) (bool, error) {
	var state string
	err := s.readPool.QueryRow(ctx, `SELECT current_state FROM competitions WHERE id = $1`, competitionID.String()).
		Scan(&state)
	if err != nil {
		return false, errors.Errorf("query state: %v", err)
	}
	return state == string(competition.StateFailed) || state == string(competition.StateCancelled), nil
}

// --- entries ---

func (s *Store) CreateEntry(ctx context.Context, e *store.Entry) error {
	return s.write(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return upsertEntry(ctx, tx, e)
	})
}

func (s *Store) SaveEntry(ctx context.Context, e *store.Entry) error {
	return s.write(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return upsertEntry(ctx, tx, e)
	})
}

func upsertEntry(ctx context.Context, tx pgx.Tx, e *store.Entry) error {
	picks, err := json.Marshal(e.Picks)
	if err != nil {
		return errors.Errorf("marshal picks: %v", err)
	}
	publicNonces, err := json.Marshal(e.PublicNonces)
	if err != nil {
		return errors.Errorf("marshal public nonces: %v", err)
	}
	partialSigs, err := json.Marshal(e.PartialSignatures)
	if err != nil {
		return errors.Errorf("marshal partial signatures: %v", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO entries (
			id, competition_id, ticket_id, ephemeral_pubkey,
			encrypted_ephemeral_key_for_player, encrypted_payout_preimage_for_player,
			payout_hash, picks, public_nonces, partial_signatures,
			claimed_ephemeral_private_key, claimed_payout_preimage, claimed_invoice,
			paid_out, weight
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT (id) DO UPDATE SET
			public_nonces = EXCLUDED.public_nonces,
			partial_signatures = EXCLUDED.partial_signatures,
			claimed_ephemeral_private_key = EXCLUDED.claimed_ephemeral_private_key,
			claimed_payout_preimage = EXCLUDED.claimed_payout_preimage,
			claimed_invoice = EXCLUDED.claimed_invoice,
			paid_out = EXCLUDED.paid_out,
			weight = EXCLUDED.weight
	`,
		e.ID.String(), e.CompetitionID.String(), e.TicketID.String(), hex.EncodeToString(e.EphemeralPubkey.SerializeCompressed()),
		e.EncryptedEphemeralKeyForPlayer, e.EncryptedPayoutPreimageForPlayer,
		hex.EncodeToString(e.PayoutHash[:]), picks, publicNonces, partialSigs,
		e.ClaimedEphemeralPrivateKey, e.ClaimedPayoutPreimage, e.ClaimedInvoice,
		e.PaidOut, e.Weight,
	)
	if err != nil {
		return errors.Errorf("upsert entry: %v", err)
	}
	return nil
}

func (s *Store) EntryByID(ctx context.Context, id uuid.UUID) (*store.Entry, error) {
	row := s.readPool.QueryRow(ctx, `
		SELECT id, competition_id, ticket_id, ephemeral_pubkey,
			encrypted_ephemeral_key_for_player, encrypted_payout_preimage_for_player,
			payout_hash, picks, public_nonces, partial_signatures,
			claimed_ephemeral_private_key, claimed_payout_preimage, claimed_invoice,
			paid_out, weight
		FROM entries WHERE id = $1
	`, id.String())
	e, err := scanEntry(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Errorf("query entry %s: %v", id, err)
	}
	return e, nil
}

func (s *Store) EntriesForCompetition(ctx context.Context, competitionID uuid.UUID) ([]*store.Entry, error) {
	rows, err := s.readPool.Query(ctx, `
		SELECT id, competition_id, ticket_id, ephemeral_pubkey,
			encrypted_ephemeral_key_for_player, encrypted_payout_preimage_for_player,
			payout_hash, picks, public_nonces, partial_signatures,
			claimed_ephemeral_private_key, claimed_payout_preimage, claimed_invoice,
			paid_out, weight
		FROM entries WHERE competition_id = $1
	`, competitionID.String())
	if err != nil {
		return nil, errors.Errorf("query entries for competition %s: %v", competitionID, err)
	}
	defer rows.Close()

	var out []*store.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, errors.Errorf("scan entry: %v", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEntry(row rowScanner) (*store.Entry, error) {
	var (
		idStr, competitionIDStr, ticketIDStr string
		ephemeralPubkeyHex, payoutHashHex    string
		picks, publicNonces, partialSigs     []byte
		e                                    store.Entry
	)

	if err := row.Scan(
		&idStr, &competitionIDStr, &ticketIDStr, &ephemeralPubkeyHex,
		&e.EncryptedEphemeralKeyForPlayer, &e.EncryptedPayoutPreimageForPlayer,
		&payoutHashHex, &picks, &publicNonces, &partialSigs,
		&e.ClaimedEphemeralPrivateKey, &e.ClaimedPayoutPreimage, &e.ClaimedInvoice,
		&e.PaidOut, &e.Weight,
	); err != nil {
		return nil, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, errors.Errorf("parse entry id: %v", err)
	}
	competitionID, err := uuid.Parse(competitionIDStr)
	if err != nil {
		return nil, errors.Errorf("parse competition id: %v", err)
	}
	ticketID, err := uuid.Parse(ticketIDStr)
	if err != nil {
		return nil, errors.Errorf("parse ticket id: %v", err)
	}
	pubBytes, err := hex.DecodeString(ephemeralPubkeyHex)
	if err != nil {
		return nil, errors.Errorf("decode ephemeral pubkey: %v", err)
	}
	pub, err := btcec.ParsePubKey(pubBytes)
	if err != nil {
		return nil, errors.Errorf("parse ephemeral pubkey: %v", err)
	}
	hashBytes, err := hex.DecodeString(payoutHashHex)
	if err != nil {
		return nil, errors.Errorf("decode payout hash: %v", err)
	}

	e.ID = id
	e.CompetitionID = competitionID
	e.TicketID = ticketID
	e.EphemeralPubkey = pub
	copy(e.PayoutHash[:], hashBytes)

	if err := json.Unmarshal(picks, &e.Picks); err != nil {
		return nil, errors.Errorf("unmarshal picks: %v", err)
	}
	if err := json.Unmarshal(publicNonces, &e.PublicNonces); err != nil {
		return nil, errors.Errorf("unmarshal public nonces: %v", err)
	}
	if err := json.Unmarshal(partialSigs, &e.PartialSignatures); err != nil {
		return nil, errors.Errorf("unmarshal partial signatures: %v", err)
	}

	return &e, nil
}

// --- payouts ---

func (s *Store) CreatePayout(ctx context.Context, p *payout.Payout) error {
	return s.write(ctx, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO payouts (id, entry_id, invoice, payment_hash, amount_sats, initiated_at, finished_at, status, failure_reason)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`,
			p.ID.String(), p.EntryID.String(), p.Invoice, hex.EncodeToString(p.PaymentHash[:]),
			p.AmountSats, p.InitiatedAt, p.FinishedAt, string(p.Status), p.FailureReason,
		)
		return err
	})
}

func (s *Store) PayoutByPaymentHash(ctx context.Context, hash [32]byte) (*payout.Payout, error) {
	row := s.readPool.QueryRow(ctx, `
		SELECT id, entry_id, invoice, payment_hash, amount_sats, initiated_at, finished_at, status, failure_reason
		FROM payouts WHERE payment_hash = $1
		ORDER BY initiated_at DESC LIMIT 1
	`, hex.EncodeToString(hash[:]))

	var (
		idStr, entryIDStr, paymentHashHex, statusStr string
		p                                            payout.Payout
	)
	if err := row.Scan(
		&idStr, &entryIDStr, &p.Invoice, &paymentHashHex, &p.AmountSats,
		&p.InitiatedAt, &p.FinishedAt, &statusStr, &p.FailureReason,
	); err == pgx.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, errors.Errorf("query payout: %v", err)
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, errors.Errorf("parse payout id: %v", err)
	}
	entryID, err := uuid.Parse(entryIDStr)
	if err != nil {
		return nil, errors.Errorf("parse entry id: %v", err)
	}
	hashBytes, err := hex.DecodeString(paymentHashHex)
	if err != nil {
		return nil, errors.Errorf("decode payment hash: %v", err)
	}

	p.ID = id
	p.EntryID = entryID
	p.Status = payout.Status(statusStr)
	copy(p.PaymentHash[:], hashBytes)

	return &p, nil
}

func (s *Store) MarkPayoutSucceeded(ctx context.Context, payoutID uuid.UUID, finishedAt time.Time) error {
	return s.write(ctx, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			UPDATE payouts SET status = $1, finished_at = $2 WHERE id = $3
		`, string(payout.StatusSucceeded), finishedAt, payoutID.String())
		return err
	})
}

func (s *Store) MarkPayoutFailed(ctx context.Context, payoutID uuid.UUID, finishedAt time.Time, reason string) error {
	return s.write(ctx, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			UPDATE payouts SET status = $1, finished_at = $2, failure_reason = $3 WHERE id = $4
		`, string(payout.StatusFailed), finishedAt, reason, payoutID.String())
		return err
	})
}

func (s *Store) MarkEntryPaidOut(ctx context.Context, entryID uuid.UUID) error {
	return s.write(ctx, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `UPDATE entries SET paid_out = TRUE WHERE id = $1`, entryID.String())
		return err
	})
}

// --- coordinator metadata ---

func (s *Store) CoordinatorMetadata(ctx context.Context) (*store.CoordinatorMetadata, error) {
	var pubkeyHex string
	err := s.readPool.QueryRow(ctx, `SELECT public_key FROM coordinator_metadata WHERE id = 1`).Scan(&pubkeyHex)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Errorf("query coordinator metadata: %v", err)
	}
	raw, err := hex.DecodeString(pubkeyHex)
	if err != nil {
		return nil, errors.Errorf("decode coordinator pubkey: %v", err)
	}
	pub, err := btcec.ParsePubKey(raw)
	if err != nil {
		return nil, errors.Errorf("parse coordinator pubkey: %v", err)
	}
	return &store.CoordinatorMetadata{PublicKey: pub}, nil
}

func (s *Store) SaveCoordinatorMetadata(ctx context.Context, m *store.CoordinatorMetadata) error {
	return s.write(ctx, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO coordinator_metadata (id, public_key) VALUES (1, $1)
			ON CONFLICT (id) DO UPDATE SET public_key = EXCLUDED.public_key
		`, hex.EncodeToString(m.PublicKey.SerializeCompressed()))
		return err
	})
}
