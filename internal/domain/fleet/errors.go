package fleet

import "errors"

var (
	// Record validation errors
	ErrMissingVehicleID     = errors.New("missing vehicle id")
	ErrMissingVehicleOrCard = errors.New("missing vehicle id and card id")
	ErrMissingTimestamp     = errors.New("missing timestamp")
	ErrInvalidCoordinates   = errors.New("coordinates out of range")
	ErrNegativeSpeed        = errors.New("negative speed")
	ErrMissingAmount        = errors.New("missing total amount")
	ErrNegativeAmount       = errors.New("negative total amount")
	ErrNegativeGallons      = errors.New("negative gallons")
	ErrMissingScheduledTime = errors.New("missing scheduled time")
	ErrMissingJobSite       = errors.New("missing job address and coordinates")

	// Dataset errors
	ErrNoSources = errors.New("no data source loaded")
)
