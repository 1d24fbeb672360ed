package effectmodel

// EffectScopeConfig sizes the delivery workers of an engine.
type EffectScopeConfig struct {
	BufferSize int // default: 1
	NumWorkers int // default: 1, more workers partition deliveries by token
}

func NewEffectScopeConfig(bufferSize int, numWorkers int) EffectScopeConfig {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	if numWorkers <= 0 {
		numWorkers = 1
	}
	return EffectScopeConfig{
		BufferSize: bufferSize,
		NumWorkers: numWorkers,
	}
}

// Partitionable messages are routed to a worker by key.
// Messages sharing a key are handled in order by the same worker.
type Partitionable interface {
	PartitionKey() string
}
