//go:build !tesseract

package main

import (
	"github.com/sirupsen/logrus"

	"blackhole/internal/ocr"
)

// ocrEngine returns nil; image agents then answer with a placeholder
func ocrEngine(log *logrus.Entry) ocr.Engine {
	log.Warn("Built without -tags tesseract, OCR returns placeholder text")
	return nil
}
