package domain

import (
	"mime"
	"strings"
)

// MediaType is a declared MIME type of an uploaded document.
type MediaType string

const (
	MediaTypeJPEG    MediaType = "image/jpeg"
	MediaTypeJPG     MediaType = "image/jpg"
	MediaTypePNG     MediaType = "image/png"
	MediaTypePDF     MediaType = "application/pdf"
	MediaTypeXPDF    MediaType = "application/x-pdf"
	MediaTypeUnknown MediaType = ""
)

// AllowedMediaTypes is the upload allow-list.
var AllowedMediaTypes = map[MediaType]bool{
	MediaTypeJPEG: true,
	MediaTypeJPG:  true,
	MediaTypePNG:  true,
	MediaTypePDF:  true,
	MediaTypeXPDF: true,
}

// ParseMediaType normalizes a Content-Type value and checks it against the
// allow-list. Parameters are dropped and comparison is case-insensitive.
func ParseMediaType(contentType string) (MediaType, error) {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(contentType))
	}
	t := MediaType(strings.ToLower(mt))
	if !AllowedMediaTypes[t] {
		return MediaTypeUnknown, ErrInvalidMediaType
	}
	return t, nil
}

// Canonical maps aliases to the type upstream services understand.
func (m MediaType) Canonical() MediaType {
	switch m {
	case MediaTypeJPG:
		return MediaTypeJPEG
	case MediaTypeXPDF:
		return MediaTypePDF
	default:
		return m
	}
}

// IsPDF reports whether the media type is a PDF variant.
func (m MediaType) IsPDF() bool {
	return m.Canonical() == MediaTypePDF
}

// Extension returns the file extension (without dot) for the media type.
func (m MediaType) Extension() string {
	switch m.Canonical() {
	case MediaTypeJPEG:
		return "jpg"
	case MediaTypePNG:
		return "png"
	case MediaTypePDF:
		return "pdf"
	default:
		return "bin"
	}
}
