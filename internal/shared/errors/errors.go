package errors

import "errors"

// Domain errors
var (
	// Input errors
	ErrInvalidInput    = errors.New("invalid audit input")
	ErrInvalidPolicy   = errors.New("invalid scoring policy")
	ErrEmptyHost       = errors.New("host cannot be empty")
	ErrUnsupportedType = errors.New("unsupported input format")

	// Collection errors
	ErrHostNotFound   = errors.New("host not found")
	ErrCollectFailed  = errors.New("collecting host facts failed")
	ErrSnapshotLayout = errors.New("snapshot directory layout invalid")

	// Serialization errors
	ErrSerializationFailed   = errors.New("serialization failed")
	ErrDeserializationFailed = errors.New("deserialization failed")
)
