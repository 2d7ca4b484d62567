package services

import "errors"

// Shared error values used across services and the HTTP mapping layer.
var (
	// Absent resources.
	ErrNotFound           = errors.New("requested resource not found")
	ErrTournamentNotFound = errors.New("tournament not found")
	ErrMatchNotFound      = errors.New("match not found")

	// Validation and business rules, rejected before any mutation.
	ErrValidationFailed    = errors.New("validation failed")
	ErrArenaRequired       = errors.New("arena is required")
	ErrNameRequired        = errors.New("tournament name is required")
	ErrInvalidPrizePool    = errors.New("prize pool must be positive")
	ErrInvalidMaxRounds    = errors.New("max rounds must be positive")
	ErrInvalidCapacity     = errors.New("tournament max participants must be at least 2")
	ErrDuplicateEntrant    = errors.New("agent is already entered in this tournament")
	ErrTooManySeedEntrants = errors.New("seed entrants exceed max participants")

	// Lifecycle-state violations, state unchanged.
	ErrTournamentNotOpen = errors.New("tournament is not open for registration")
	ErrTournamentNotLive = errors.New("tournament is not live")
	ErrNotEnoughEntrants = errors.New("at least two entrants are required to start")

	// Capacity.
	ErrTournamentFull = errors.New("tournament registration is full")

	// Optional collaborators.
	ErrStorageNotConfigured = errors.New("object storage is not configured")

	// Persistence collaborator failures on critical writes.
	ErrPersistenceFailed = errors.New("persistence operation failed")
)
