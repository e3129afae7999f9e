package errors

// Common error codes
const (
	// System errors
	ErrInternal        ErrorCode = "internal_error"
	ErrInvalidArgument ErrorCode = "invalid_argument"
	ErrNotImplemented  ErrorCode = "not_implemented"
	ErrAlreadyRunning  ErrorCode = "already_running"

	// Configuration errors
	ErrInvalidConfig     ErrorCode = "invalid_configuration"
	ErrInvalidSensorSpec ErrorCode = "invalid_sensor_spec"
	ErrInvalidExecSpec   ErrorCode = "invalid_exec_spec"
	ErrInvalidPeriod     ErrorCode = "invalid_period"
	ErrConflictingOutput ErrorCode = "conflicting_output_flags"
	ErrOutputExists      ErrorCode = "output_file_exists"
	ErrMissingCommand    ErrorCode = "missing_benchmark_command"
	ErrReadConfig        ErrorCode = "read_config_failed"

	// Logging errors
	ErrInvalidLogLevel ErrorCode = "invalid_log_level"

	// Process errors
	ErrSpawnFailed  ErrorCode = "spawn_failed"
	ErrSignalFailed ErrorCode = "signal_failed"
	ErrWaitFailed   ErrorCode = "wait_failed"

	// Sampling errors
	ErrSensorRead    ErrorCode = "sensor_read_failed"
	ErrSensorParse   ErrorCode = "sensor_parse_failed"
	ErrExecSensor    ErrorCode = "exec_sensor_failed"
	ErrNoSensors     ErrorCode = "no_sensors_found"
	ErrCPUSample     ErrorCode = "cpu_sample_failed"
	ErrColumnSealed  ErrorCode = "column_registry_sealed"
	ErrUnknownColumn ErrorCode = "unknown_stdout_column"
	ErrWaitInterrupt ErrorCode = "wait_temperature_interrupted"

	// Trace output errors
	ErrTraceWrite ErrorCode = "trace_write_failed"
	ErrTraceOpen  ErrorCode = "trace_open_failed"
	ErrTraceClose ErrorCode = "trace_close_failed"

	// Operation errors
	ErrOperationFailed ErrorCode = "operation_failed"
	ErrTimeout         ErrorCode = "operation_timeout"
	ErrInitFailed      ErrorCode = "initialization_failed"
	ErrShutdownFailed  ErrorCode = "shutdown_failed"
	ErrMainLoop        ErrorCode = "main_loop_failed"
)

// Common error messages
var errorMessages = map[ErrorCode]string{
	ErrInternal:          "Internal error occurred",
	ErrInvalidArgument:   "Invalid argument provided",
	ErrNotImplemented:    "Operation not implemented",
	ErrAlreadyRunning:    "Another instance is already running",
	ErrInvalidConfig:     "Invalid configuration",
	ErrInvalidSensorSpec: "Malformed sensor specification",
	ErrInvalidExecSpec:   "Malformed exec sensor specification",
	ErrInvalidPeriod:     "Invalid sampling period",
	ErrConflictingOutput: "Conflicting output flags",
	ErrOutputExists:      "Output file already exists",
	ErrMissingCommand:    "No benchmark command given",
	ErrReadConfig:        "Failed to read configuration",
	ErrInvalidLogLevel:   "Invalid log level",
	ErrSpawnFailed:       "Failed to spawn process",
	ErrSignalFailed:      "Failed to signal process",
	ErrWaitFailed:        "Failed to wait for process",
	ErrSensorRead:        "Failed to read sensor",
	ErrSensorParse:       "Failed to parse sensor value",
	ErrExecSensor:        "Exec sensor failed",
	ErrNoSensors:         "No sensors found",
	ErrCPUSample:         "Failed to sample CPU counters",
	ErrColumnSealed:      "Column registry is sealed",
	ErrUnknownColumn:     "Unknown stdout column",
	ErrWaitInterrupt:     "Wait for temperature interrupted",
	ErrTraceWrite:        "Failed to write trace",
	ErrTraceOpen:         "Failed to open trace file",
	ErrTraceClose:        "Failed to close trace file",
	ErrOperationFailed:   "Operation failed",
	ErrTimeout:           "Operation timed out",
	ErrInitFailed:        "Initialization failed",
	ErrShutdownFailed:    "Shutdown failed",
	ErrMainLoop:          "Error in main loop",
}

// GetErrorMessage returns the message for a given error code
func GetErrorMessage(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}

	return string(code)
}
