package ticket

import (
	"crypto/rand"
	"time"

	"github.com/go-errors/errors"
	"github.com/google/uuid"

	"github.com/5day4cast/coordinator-core/internal/build"
	"github.com/5day4cast/coordinator-core/internal/secret"
)

var log = build.Logger(build.SubsystemTicket)

// Mint creates count fresh tickets for a competition, each with its own
// 32-byte preimage, spec §4.5 "at competition creation, N tickets are
// minted with fresh 32-byte preimages; hashes stored."
func Mint(competitionID uuid.UUID, count int, expiry time.Time) ([]*Ticket, error) {
	if count <= 0 {
		return nil, errors.Errorf("mint count must be positive, got %d", count)
	}

	tickets := make([]*Ticket, 0, count)
	for i := 0; i < count; i++ {
		var raw [32]byte
		if _, err := rand.Read(raw[:]); err != nil {
			return nil, errors.Errorf("generate ticket preimage: %v", err)
		}

		t := &Ticket{
			ID:            uuid.New(),
			CompetitionID: competitionID,
			Preimage:      secret.New(raw[:]),
			PreimageHash:  hashPreimage(raw[:]),
			Expiry:        expiry,
		}
		tickets = append(tickets, t)
	}

	log.Debugf("minted %d tickets for competition %s", count, competitionID)
	return tickets, nil
}
