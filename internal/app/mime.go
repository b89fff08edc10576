package app

import (
	"log"
	"mime"
)

// Minimal container images can ship without /etc/mime.types, and the
// stylesheet served as text/plain renders every page unstyled.
func init() {
	ensureMimeType(".css", "text/css; charset=utf-8")
}

func ensureMimeType(ext, typ string) {
	if mime.TypeByExtension(ext) != "" {
		return
	}
	if err := mime.AddExtensionType(ext, typ); err != nil {
		log.Printf("app: register MIME type for %s: %v", ext, err)
	}
}
