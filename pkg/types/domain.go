package types

// ModelDetails carries catalog metadata about a model.
type ModelDetails struct {
	// Model format on disk.
	// example: q4nx
	Format string `json:"format" example:"q4nx"`
	// Catalog family.
	// example: llama3.2
	Family string `json:"family" example:"llama3.2"`
	// Parameter count label.
	// example: 1B
	ParameterSize string `json:"parameter_size" example:"1B"`
	// Quantization level.
	// example: Q4_1
	QuantizationLevel string `json:"quantization_level" example:"Q4_1"`
	// Whether the model emits a reasoning block.
	Think bool `json:"think"`
	// Whether think mode may be switched per request.
	ThinkToggleable bool `json:"think_toggleable"`
}

// Model represents a loadable model directory.
type Model struct {
	// Tag the model is requested by.
	// example: llama3.2:1b
	ID string `json:"id" example:"llama3.2:1b"`
	// Directory name under the models root.
	// example: Llama-3.2-1B-NPU2
	Name string `json:"name" example:"Llama-3.2-1B-NPU2"`
	// Absolute path to the model directory.
	// example: /home/user/.npud/models/Llama-3.2-1B-NPU2
	Path string `json:"path" example:"/home/user/.npud/models/Llama-3.2-1B-NPU2"`
	// Download location, when the catalog provides one.
	URL string `json:"url,omitempty"`
	// Size of the model files in bytes.
	// example: 1321205760
	Size int64 `json:"size,omitempty" example:"1321205760"`
	// Context length used when the model is loaded.
	// example: 4096
	ContextLength int `json:"context_length,omitempty" example:"4096"`
	// Catalog metadata.
	Details ModelDetails `json:"details"`
}
