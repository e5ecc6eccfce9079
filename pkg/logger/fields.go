package logger

import "go.uber.org/zap"

// Field constructors re-exported so callers only import this package for the common cases.
var (
	Error      = zap.Error
	String     = zap.String
	Int        = zap.Int
	Int64      = zap.Int64
	Bool       = zap.Bool
	Duration   = zap.Duration
	ByteString = zap.ByteString
)
