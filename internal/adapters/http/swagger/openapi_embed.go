package swagger

import _ "embed"

// OpenAPI contains the embedded OpenAPI YAML document for the reputation API.
//
//go:embed openapi.yaml
var OpenAPI []byte
