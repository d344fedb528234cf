package extract

import (
	"net/http"
	"path/filepath"
	"strings"
)

const octetStream = "application/octet-stream"

// MimeTypeFromExtension returns the MIME type for a file extension
func MimeTypeFromExtension(ext string) string {
	switch strings.ToLower(ext) {
	case ".pdf":
		return "application/pdf"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".bmp":
		return "image/bmp"
	case ".tif", ".tiff":
		return "image/tiff"
	case ".md", ".markdown":
		return "text/markdown"
	case ".txt":
		return "text/plain"
	default:
		return octetStream
	}
}

// IsImageType reports whether a MIME type is one Preprocess can decode
func IsImageType(mimeType string) bool {
	switch baseType(mimeType) {
	case "image/jpeg", "image/jpg", "image/png", "image/gif", "image/webp", "image/bmp", "image/tiff":
		return true
	}
	return false
}

// IsPDFType reports whether a MIME type names a PDF
func IsPDFType(mimeType string) bool {
	return baseType(mimeType) == "application/pdf"
}

// DetectMime resolves the MIME type of an upload. A specific declared type
// wins, then the file extension, then content sniffing.
func DetectMime(name, declared string, data []byte) string {
	if t := baseType(declared); t != "" && t != octetStream {
		return t
	}
	if t := MimeTypeFromExtension(filepath.Ext(name)); t != octetStream {
		return t
	}
	if len(data) == 0 {
		return octetStream
	}
	if IsPDF(data) {
		return "application/pdf"
	}
	return baseType(http.DetectContentType(data))
}

func baseType(mimeType string) string {
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}
