package domain

// KeyPrefix namespaces every Redis key written by this service.
const KeyPrefix = "retrieval:"

// VectorConfig holds vector index parameters.
type VectorConfig struct {
	Dimensions int
}

// DefaultVectorConfig matches text-embedding-3-small.
func DefaultVectorConfig() VectorConfig {
	return VectorConfig{Dimensions: 1536}
}
