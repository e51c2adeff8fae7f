// Package api holds the embedded OpenAPI specification.
package api

import _ "embed"

// OpenAPISpec is the OpenAPI 3.0 specification for the gateway API.
//
//go:embed openapi.yaml
var OpenAPISpec []byte
