package constants

// Application constants
const (
	// Application metadata
	AppName        = "vusic-encoder"
	AppDescription = "Bidirectional GRU context encoder for source separation"
	AppVersion     = "0.1.0"

	// Environment prefix for configuration overrides (VUSIC_ENCODER_INPUT_SIZE, ...)
	EnvPrefix = "VUSIC"

	// Default configuration values
	DefaultContextLength = 0
	DefaultDebug         = false
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "text"
	DefaultMetricsPort   = 9090
	DefaultMetricsPath   = "/metrics"

	// Gate blocks stacked in the GRU parameter matrices (reset, update, candidate)
	GRUGateCount = 3

	// Tolerance used when checking hidden-to-hidden orthogonality
	OrthogonalityTolerance = 1e-6
)

// Keys recognized by the encoder factory mapping
const (
	ParamInputSize     = "input_size"
	ParamContextLength = "context_length"
	ParamDebug         = "debug"
	ParamSeed          = "seed"
)

// RequiredParams lists the keys the factory mapping must contain.
var RequiredParams = []string{ParamInputSize, ParamContextLength, ParamDebug}

// Direction prefixes and parameter names of the serializable state
const (
	DirectionForward  = "forward"
	DirectionBackward = "backward"

	WeightIH = "weight_ih"
	WeightHH = "weight_hh"
	BiasIH   = "bias_ih"
	BiasHH   = "bias_hh"
)

// Compute devices
const (
	DeviceHost        = "host"
	DeviceAccelerated = "accelerated"
)

// Metric naming
const (
	MetricsNamespace = "vusic"
	MetricsSubsystem = "encoder"

	StatusSuccess = "success"
	StatusError   = "error"
)
