package competition

import "github.com/go-errors/errors"

// Validate checks the §3 invariants that must hold at creation time and
// after every mutation: places-to-win bounds, entry bounds, and the
// observation/signing date ordering.
func (c *Competition) Validate() error {
	s := c.Submission

	if s.NumberOfPlacesWin < 1 || s.NumberOfPlacesWin > 5 {
		return errors.Errorf("number_of_places_win %d out of range [1,5]", s.NumberOfPlacesWin)
	}
	if c.TotalEntries > s.TotalAllowedEntries {
		return errors.Errorf("total_entries %d exceeds total_allowed_entries %d",
			c.TotalEntries, s.TotalAllowedEntries)
	}
	if !s.StartObservationDate.Before(s.EndObservationDate) {
		return errors.Errorf("start_observation_date must precede end_observation_date")
	}
	if !s.EndObservationDate.Before(s.SigningDate) {
		return errors.Errorf("end_observation_date must precede signing_date")
	}
	if s.EntryFeeSats <= 0 {
		return errors.Errorf("entry_fee must be positive")
	}
	if s.TotalAllowedEntries < 1 {
		return errors.Errorf("total_allowed_entries must be positive")
	}

	return nil
}
