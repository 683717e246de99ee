// Package docs publica la especificación OpenAPI del servicio.
package docs

import _ "embed"

// SwaggerJSON es el documento servido en /docs.
//
//go:embed swagger.json
var SwaggerJSON []byte
