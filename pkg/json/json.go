// Package json pins the jsoniter configuration used for every wire frame
// and cache entry in the service.
package json

import jsoniter "github.com/json-iterator/go"

var (
	// JSON is the jsoniter instance used throughout the codebase.
	JSON = jsoniter.ConfigCompatibleWithStandardLibrary

	// Marshal is a shorthand for JSON.Marshal.
	Marshal = JSON.Marshal

	// Unmarshal is a shorthand for JSON.Unmarshal.
	Unmarshal = JSON.Unmarshal

	// NewDecoder is a shorthand for JSON.NewDecoder.
	NewDecoder = JSON.NewDecoder
)
