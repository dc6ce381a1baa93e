package connection

import "errors"

var (
	errConnIDRequired  = errors.New("connection: id is required")
	errPoolSizeInvalid = errors.New("connection: processorPoolSize must be >= 1")
)
