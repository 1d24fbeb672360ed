package configkeys

const (
	delimiter = "."

	EnginePrefix     = "engine"
	EngineBufferSize = EnginePrefix + delimiter + "buffer_size"
	EngineNumWorkers = EnginePrefix + delimiter + "num_workers"

	LogPrefix      = "log"
	LogLevel       = LogPrefix + delimiter + "level"
	LogDevelopment = LogPrefix + delimiter + "development"

	DemoPrefix        = "demo"
	DemoTickInterval  = DemoPrefix + delimiter + "tick_interval"
	DemoPulseInterval = DemoPrefix + delimiter + "pulse_interval"
	DemoDuration      = DemoPrefix + delimiter + "duration"

	MetricsPrefix = "metrics"
	MetricsAddr   = MetricsPrefix + delimiter + "addr"
)

// Split breaks a dotted key into its path segments.
func Split(key string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(key); i++ {
		if key[i] == delimiter[0] {
			parts = append(parts, key[start:i])
			start = i + 1
		}
	}
	return append(parts, key[start:])
}
