//go:build tesseract

package main

import (
	"github.com/sirupsen/logrus"

	"blackhole/internal/ocr"
	"blackhole/internal/ocr/tesseract"
)

func ocrEngine(log *logrus.Entry) ocr.Engine {
	log.Info("OCR engine: tesseract")
	return tesseract.New()
}
