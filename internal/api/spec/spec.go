// Package spec embeds the OpenAPI document for the HTTP API.
package spec

import (
	"bytes"
	_ "embed"
	"net/http"
	"time"
)

//go:embed openapi.yaml
var openapi []byte

// loadedAt stands in for a modification time so clients can revalidate.
var loadedAt = time.Now()

// OpenAPIHandler serves the embedded OpenAPI document.
func OpenAPIHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		w.Header().Set("Cache-Control", "public, max-age=300")
		http.ServeContent(w, r, "openapi.yaml", loadedAt, bytes.NewReader(openapi))
	}
}
