package codec

import (
	"encoding/json"
)

// JSON is the standard-library JSON codec.
//
// Use it when you need the most portable/lowest-dependency option. Document
// files written with JSON remain readable by any JSON tooling, which is part
// of the appeal of a file-per-document store.
type JSON struct{}

// Marshal encodes the value to JSON.
func (JSON) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

// Unmarshal decodes the JSON data into v.
func (JSON) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// Name returns the unique name of the codec ("json").
func (JSON) Name() string { return "json" }

// Default is the default codec used by the library.
//
// NOTE: This affects newly-created files. The journal is self-describing (it
// stores the codec name in its header) and is opened by selecting the
// appropriate codec by name.
var Default Codec = GoJSON{}
