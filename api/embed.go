// Package api embeds the OpenAPI description served at /api/docs.
package api

import _ "embed"

//go:embed openapi.yaml
var OpenAPISpec []byte
