package core

import "errors"

// Common errors.
var (
	ErrInvalidDocument  = errors.New("invalid document")
	ErrCrossKindReorder = errors.New("cannot reorder an item relative to a folder")
	ErrUnknownEvent     = errors.New("unknown event")
)
