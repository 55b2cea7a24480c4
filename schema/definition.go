package schema

// Definition is the uncompiled, serializable form of a structural schema.
// Schema documents are authored in YAML or JSON and addressed by a stable
// URI of the form db://<space>/<database>/schemas/v1/<relative-path>, so
// references between schemas remain valid regardless of physical location.
type Definition struct {
	// ID is the stable URI this schema is registered under.
	ID string `yaml:"id" json:"id"`

	// Type is one of "object", "array", "string", "number", "integer",
	// "boolean", "null". Empty means any type.
	Type string `yaml:"type,omitempty" json:"type,omitempty"`

	// Required lists object fields that must be present.
	Required []string `yaml:"required,omitempty" json:"required,omitempty"`

	// Properties validates named object fields.
	Properties map[string]*Definition `yaml:"properties,omitempty" json:"properties,omitempty"`

	// PatternProperties validates dynamic field names matched by regexp.
	PatternProperties map[string]*Definition `yaml:"patternProperties,omitempty" json:"patternProperties,omitempty"`

	// AdditionalProperties, when explicitly false, closes the object: fields
	// matched by neither Properties nor PatternProperties are violations.
	AdditionalProperties *bool `yaml:"additionalProperties,omitempty" json:"additionalProperties,omitempty"`

	// Items validates every element of an array.
	Items *Definition `yaml:"items,omitempty" json:"items,omitempty"`

	// Pattern is a regexp a string value must match.
	Pattern string `yaml:"pattern,omitempty" json:"pattern,omitempty"`

	// Ref points at another schema: "#/definitions/<name>" within the same
	// document, or a registry URI (optionally with a "#/definitions/<name>"
	// fragment).
	Ref string `yaml:"$ref,omitempty" json:"$ref,omitempty"`

	// Default is inserted for a missing object field by the compute pass.
	Default any `yaml:"default,omitempty" json:"default,omitempty"`

	// XCompute declares the field as derived. See Computer.
	XCompute *ComputeSpec `yaml:"x_compute,omitempty" json:"x_compute,omitempty"`

	// Definitions holds named sub-schemas addressable via internal refs.
	Definitions map[string]*Definition `yaml:"definitions,omitempty" json:"definitions,omitempty"`
}
