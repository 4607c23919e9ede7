package models

// Video type constants carried inside the internal provider payload. The
// numeric values are part of the payload contract and must not change.
const (
	VideoTypeHTTPProgressive = 1
	VideoTypeHLS             = 2
	VideoTypeMPEGDash        = 3
)
