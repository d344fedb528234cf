package extract

import (
	"bytes"
)

var (
	streamKeyword    = []byte("stream")
	endstreamKeyword = []byte("endstream")
	objKeyword       = []byte("obj")
	dctFilter        = []byte("/DCTDecode")
	jpegSOI          = []byte{0xFF, 0xD8, 0xFF}
)

// EmbeddedJPEGs returns up to limit JPEG images stored as DCTDecode streams in
// a PDF. These are the raster pages of scanned documents and can be handed to
// an OCR engine directly.
func EmbeddedJPEGs(data []byte, limit int) [][]byte {
	var images [][]byte
	offset := 0
	for limit <= 0 || len(images) < limit {
		idx := bytes.Index(data[offset:], streamKeyword)
		if idx < 0 {
			break
		}
		start := offset + idx
		offset = start + len(streamKeyword)

		// skip the "stream" suffix of "endstream"
		if start >= 3 && bytes.Equal(data[start-3:start], []byte("end")) {
			continue
		}

		// the stream dictionary sits between "N 0 obj" and "stream"
		header := bytes.LastIndex(data[:start], objKeyword)
		if header < 0 || !bytes.Contains(data[header:start], dctFilter) {
			continue
		}

		body := data[offset:]
		body = bytes.TrimPrefix(body, []byte("\r"))
		body = bytes.TrimPrefix(body, []byte("\n"))
		end := bytes.Index(body, endstreamKeyword)
		if end < 0 {
			break
		}
		img := bytes.TrimRight(body[:end], "\r\n")
		if bytes.HasPrefix(img, jpegSOI) {
			images = append(images, img)
		}
		offset += end
	}
	return images
}
