package ir

// Version constants for the stored record schema and the engine.
const (
	// SchemaVersion is the version of the persisted batch record layout.
	SchemaVersion = "1"

	// EngineVersion is the Synchrony engine version.
	EngineVersion = "0.1.0"
)
