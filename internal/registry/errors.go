package registry

import "errors"

// Common errors
var (
	// ErrGatewayExists is returned when creating a gateway with an explicit id
	// that is already taken.
	ErrGatewayExists = errors.New("gateway id already exists")

	// ErrUnknownDatabase is returned when a gateway references a database id
	// that is not registered.
	ErrUnknownDatabase = errors.New("unknown database")

	// ErrNoDatabases is returned when a gateway would end up with an empty
	// database set.
	ErrNoDatabases = errors.New("gateway requires at least one database")

	// ErrRegistryInconsistent is returned when the interning lookup misses
	// both before and after a conflicting insert. It indicates a store that
	// does not enforce interning-key uniqueness atomically.
	ErrRegistryInconsistent = errors.New("gateway registry inconsistent")

	// ErrInvalidTransition is returned when a query state update would move
	// the record backwards or sideways in its lifecycle.
	ErrInvalidTransition = errors.New("invalid query state transition")

	// ErrQueryFinished is returned when attempting to modify a query record
	// that has already reached the finished state.
	ErrQueryFinished = errors.New("query already finished")

	// ErrUnsupportedEndpoint is returned for query endpoints other than
	// structures.
	ErrUnsupportedEndpoint = errors.New("unsupported query endpoint")
)
