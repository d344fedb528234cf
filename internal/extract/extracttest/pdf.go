// Package extracttest builds small, valid documents for tests.
package extracttest

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
)

// TextPDF returns a PDF with one page per string, each drawn with a single
// Helvetica text-show operator
func TextPDF(pages ...string) []byte {
	b := newBuilder()
	font := b.add("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")
	var kids []int
	for _, text := range pages {
		content := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", escape(text))
		contentRef := b.addStream("", []byte(content))
		kids = append(kids, b.add(fmt.Sprintf(
			"<< /Type /Page /Parent %%PAGES%% 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 %d 0 R >> >> /Contents %d 0 R >>",
			font, contentRef)))
	}
	return b.finish(kids)
}

// ScannedPDF returns a PDF whose pages only draw the given JPEG images
func ScannedPDF(jpegs ...[]byte) []byte {
	b := newBuilder()
	var kids []int
	for _, img := range jpegs {
		cfg, _ := jpeg.DecodeConfig(bytes.NewReader(img))
		imgRef := b.addStream(fmt.Sprintf(
			"/Type /XObject /Subtype /Image /Width %d /Height %d /ColorSpace /DeviceGray /BitsPerComponent 8 /Filter /DCTDecode ",
			cfg.Width, cfg.Height), img)
		contentRef := b.addStream("", []byte("q 200 0 0 200 72 500 cm /Im1 Do Q"))
		kids = append(kids, b.add(fmt.Sprintf(
			"<< /Type /Page /Parent %%PAGES%% 0 R /MediaBox [0 0 612 792] /Resources << /XObject << /Im1 %d 0 R >> >> /Contents %d 0 R >>",
			imgRef, contentRef)))
	}
	return b.finish(kids)
}

// JPEG returns a w x h grayscale JPEG of a dark square on a light background
func JPEG(w, h int) []byte {
	var buf bytes.Buffer
	_ = jpeg.Encode(&buf, testImage(w, h), &jpeg.Options{Quality: 90})
	return buf.Bytes()
}

// PNG returns the same low-contrast image as JPEG, PNG-encoded
func PNG(w, h int) []byte {
	var buf bytes.Buffer
	_ = png.Encode(&buf, testImage(w, h))
	return buf.Bytes()
}

func testImage(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(200)
			if x > w/4 && x < 3*w/4 && y > h/4 && y < 3*h/4 {
				v = 60
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return img
}

func escape(s string) string {
	return strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`).Replace(s)
}

type builder struct {
	objects [][]byte
}

func newBuilder() *builder {
	// object 1 is the catalog and object 2 the page tree
	return &builder{objects: [][]byte{nil, nil}}
}

func (b *builder) add(body string) int {
	b.objects = append(b.objects, []byte(body))
	return len(b.objects)
}

func (b *builder) addStream(dict string, data []byte) int {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "<< %s/Length %d >>\nstream\n", dict, len(data))
	buf.Write(data)
	buf.WriteString("\nendstream")
	b.objects = append(b.objects, buf.Bytes())
	return len(b.objects)
}

func (b *builder) finish(kids []int) []byte {
	refs := make([]string, len(kids))
	for i, k := range kids {
		refs[i] = fmt.Sprintf("%d 0 R", k)
	}
	b.objects[0] = []byte("<< /Type /Catalog /Pages 2 0 R >>")
	b.objects[1] = []byte(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(refs, " "), len(kids)))

	var out bytes.Buffer
	out.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(b.objects))
	for i, body := range b.objects {
		offsets[i] = out.Len()
		body = bytes.ReplaceAll(body, []byte("%PAGES%"), []byte("2"))
		fmt.Fprintf(&out, "%d 0 obj\n", i+1)
		out.Write(body)
		out.WriteString("\nendobj\n")
	}

	xref := out.Len()
	fmt.Fprintf(&out, "xref\n0 %d\n", len(b.objects)+1)
	out.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&out, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&out, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(b.objects)+1, xref)
	return out.Bytes()
}
