package config

// Index defaults. DefaultStorageLevel keeps fingerprints so that removal
// and ranked queries work on an index created with no configuration.
const (
	DefaultThreshold        = 0.75
	DefaultMaxFalseNegative = 0.05
	DefaultMaxFalsePositive = 0.05
	DefaultStorageLevel     = "fingerprint"
	DefaultTokenizer        = "words:3"
	DefaultSeed             = 42
)

// Storage defaults.
const (
	DefaultBackend     = BackendMemory
	DefaultPath        = "narrowdown.snap"
	DefaultCompress    = false
	DefaultRedisAddr   = "localhost:6379"
	DefaultRedisDB     = 0
	DefaultRedisPrefix = "narrowdown"
)

// Logging defaults.
const (
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
)

// Telemetry defaults.
const (
	DefaultSampleRatio = 1.0
)
