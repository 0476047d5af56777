package validation

import "errors"

var (
	ErrNoCards       = errors.New("card list is empty")
	ErrTooManyCards  = errors.New("card list exceeds the per-job limit")
	ErrMissingCardID = errors.New("card is missing an id")
	ErrBadImageURL   = errors.New("card image url must be http or https")
)
