package tempo

import "errors"

// Tempo format errors
var (
	ErrNotTempoMapData    = errors.New("not tempo map data")
	ErrUnknownVersion     = errors.New("unknown tempo map version")
	ErrMapCountOutOfRange = errors.New("map count out of range")
	ErrCountInOutOfRange  = errors.New("count-in out of range")
	ErrTruncated          = errors.New("truncated tempo map data")
	ErrPageOrder          = errors.New("pages out of order")
	ErrInvalidBar         = errors.New("invalid bar")
	ErrNameTooLong        = errors.New("map name too long")
	ErrInvalidLayout      = errors.New("bars do not match map layout")
)
