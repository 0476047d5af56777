package validation

import (
	"fmt"
	"net/url"

	"cardposter/api/dto"
)

// MaxCardsPerJob caps one submission; beyond this the poster spans an
// unreasonable number of pages and the request is almost certainly a
// caller bug.
const MaxCardsPerJob = 2000

// ValidateRequest checks a job submission before it is persisted or
// queued. The config is validated (and normalized in place) with the
// same rules the worker applies, so a job accepted here never bounces
// at planning time.
func ValidateRequest(req *dto.CreateExportRequest) error {
	if len(req.Cards) == 0 {
		return ErrNoCards
	}
	if len(req.Cards) > MaxCardsPerJob {
		return fmt.Errorf("%w: %d > %d", ErrTooManyCards, len(req.Cards), MaxCardsPerJob)
	}

	for i, card := range req.Cards {
		if card.ID == "" {
			return fmt.Errorf("%w (index %d)", ErrMissingCardID, i)
		}
		// An absent URL is allowed; the worker renders a placeholder.
		if card.ImageURL == "" {
			continue
		}
		u, err := url.Parse(card.ImageURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("%w (card %s)", ErrBadImageURL, card.ID)
		}
	}

	return req.Config.Validate()
}
