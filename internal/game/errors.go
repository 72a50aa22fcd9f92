package game

import "errors"

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindStateConflict
	KindAuthorization
	KindNotFound
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindStateConflict:
		return "state_conflict"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	case KindFatal:
		return "fatal"
	default:
		return "internal"
	}
}

// Error is a classified failure. Sentinels are compared with errors.Is;
// call sites attach detail with fmt.Errorf("%w: ...").
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func newError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

var (
	ErrInvalidPartition = newError(KindFatal, "invalid_partition", "invalid partition")
	ErrSeedingFailed    = newError(KindFatal, "seeding_failed", "seeding failed")

	ErrInvalidInput   = newError(KindValidation, "invalid_input", "invalid input")
	ErrUnknownCountry = newError(KindValidation, "unknown_country", "unknown country")
	ErrUnknownProduct = newError(KindValidation, "unknown_product", "unknown product")
	ErrRateOutOfRange = newError(KindValidation, "rate_out_of_range", "rate out of range")

	ErrRoundNotActive       = newError(KindStateConflict, "round_not_active", "round not active")
	ErrAlreadyStarted       = newError(KindStateConflict, "already_started", "game already started")
	ErrNoMoreRounds         = newError(KindStateConflict, "no_more_rounds", "no more rounds")
	ErrInvalidTransition    = newError(KindStateConflict, "invalid_transition", "invalid transition")
	ErrGameEnded            = newError(KindStateConflict, "game_ended", "game ended")
	ErrNoAvailableCountries = newError(KindStateConflict, "no_available_countries", "no available countries")
	ErrConflict             = newError(KindStateConflict, "conflict", "conflict")
	ErrNotSeeded            = newError(KindStateConflict, "economy_not_seeded", "economy not seeded")

	ErrNotAProducer    = newError(KindAuthorization, "not_a_producer", "not a producer")
	ErrSelfTariff      = newError(KindAuthorization, "self_tariff_rejected", "cannot set self tariff")
	ErrForbidden       = newError(KindAuthorization, "forbidden", "forbidden")
	ErrNotAssigned     = newError(KindAuthorization, "not_assigned", "not assigned to a country")
	ErrUnauthenticated = newError(KindAuthorization, "unauthenticated", "authentication required")

	ErrNotFound = newError(KindNotFound, "not_found", "not found")
)

// KindOf classifies err; unclassified errors are KindInternal.
func KindOf(err error) Kind {
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr.Kind
	}
	return KindInternal
}

// CodeOf returns the stable code of a classified error, or "internal".
func CodeOf(err error) string {
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr.Code
	}
	return "internal"
}
