package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// Trace fields, propagated through the call chain on the context logger.
const (
	FieldRequestID   = "request_id"
	FieldJobID       = "job_id"
	FieldJobName     = "job_name"
	FieldComponent   = "component"
	FieldOwnerID     = "owner_id"
	FieldAssetID     = "asset_id"
	FieldDuplicateID = "duplicate_id"
)

// Metric fields, attached per entry for aggregation and alerting.
const (
	// FieldDurationMs is the execution duration in milliseconds
	FieldDurationMs = "duration_ms"

	// FieldCount is a generic count field
	FieldCount = "count"

	// FieldSize is the data size in bytes
	FieldSize = "size"

	// FieldStatus is the operation or job status
	FieldStatus = "status"
)
