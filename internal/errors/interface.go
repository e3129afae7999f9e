package errors

// ErrorCode identifies one failure class: configuration, process
// supervision, sampling, or trace output. Fatal codes surface in the
// exit diagnostic; sampling codes only ever reach the log.
type ErrorCode string

// Error is a coded error. Sampling-time wrappers attach the sensor
// path or column through WithData so a warning names its source.
type Error interface {
	error
	Code() ErrorCode
	WithMessage(msg string) Error
	WithData(data any) Error
	GetData() any
	Unwrap() error
}

// Factory constructs coded errors. Wrap preserves the underlying
// cause (a failed read, a spawn error) for errors.Is/As.
type Factory interface {
	New(code ErrorCode) Error
	Wrap(code ErrorCode, err error) Error
	WithMessage(code ErrorCode, msg string) Error
	WithData(code ErrorCode, data any) Error
}
