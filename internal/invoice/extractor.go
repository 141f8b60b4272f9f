package invoice

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"
)

type Method string

const (
	MethodPDFText    Method = "pdf-text"
	MethodPDFTextRaw Method = "pdf-text-raw"
	MethodPDFOCR     Method = "pdf-ocr"
	MethodImageOCR   Method = "image-ocr"
	MethodNone       Method = "none"
)

// File is an uploaded invoice held in memory
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Result describes what text was recovered and how
type Result struct {
	Text         string
	Method       Method
	PagesScanned int
}

// Rasterizer renders the first pages of a PDF to images
type Rasterizer interface {
	Rasterize(ctx context.Context, pdf []byte, pages int, dpi int) ([][]byte, error)
}

// Recognizer runs OCR over a single image
type Recognizer interface {
	Recognize(ctx context.Context, image []byte) (string, error)
}

type Config struct {
	PDFTimeout time.Duration
	OCRTimeout time.Duration
	OCRPages   int
	OCRScale   float64
}

// Extractor recovers invoice text from PDFs and images. Extraction never
// fails: every stage is time-boxed and a failed stage yields empty text.
type Extractor struct {
	config     Config
	rasterizer Rasterizer
	recognizer Recognizer
	logger     *zap.Logger
}

// NewExtractor creates an extractor. A nil rasterizer or recognizer disables
// the OCR stages that need it.
func NewExtractor(config Config, rasterizer Rasterizer, recognizer Recognizer, logger *zap.Logger) *Extractor {
	if config.PDFTimeout <= 0 {
		config.PDFTimeout = 20 * time.Second
	}
	if config.OCRTimeout <= 0 {
		config.OCRTimeout = 8 * time.Second
	}
	if config.OCRPages < 1 {
		config.OCRPages = 1
	}
	if config.OCRScale <= 0 {
		config.OCRScale = 1.25
	}
	return &Extractor{
		config:     config,
		rasterizer: rasterizer,
		recognizer: recognizer,
		logger:     logger,
	}
}

func IsPDF(name, contentType string) bool {
	return strings.EqualFold(strings.TrimSpace(contentType), "application/pdf") ||
		strings.EqualFold(filepath.Ext(name), ".pdf")
}

func IsImage(name, contentType string) bool {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "image/") {
		return true
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg":
		return true
	}
	return false
}

// ExtractText returns the recovered text, or "" when nothing could be read
func (e *Extractor) ExtractText(ctx context.Context, file File) string {
	return e.Extract(ctx, file).Text
}

func (e *Extractor) Extract(ctx context.Context, file File) Result {
	if len(file.Data) == 0 {
		return Result{Method: MethodNone}
	}

	switch {
	case IsPDF(file.Name, file.ContentType):
		return e.extractPDF(ctx, file.Data)
	case IsImage(file.Name, file.ContentType):
		if e.recognizer == nil {
			return Result{Method: MethodNone}
		}
		text, _ := withStageTimeout(ctx, e.logger, e.config.OCRTimeout, "image OCR", func(ctx context.Context) (string, error) {
			return e.recognizer.Recognize(ctx, file.Data)
		})
		text = strings.TrimSpace(text)
		if text == "" {
			return Result{Method: MethodNone}
		}
		return Result{Text: text, Method: MethodImageOCR, PagesScanned: 1}
	default:
		e.logger.Warn("Unsupported file type for text extraction",
			zap.String("file", file.Name),
			zap.String("content_type", file.ContentType))
		return Result{Method: MethodNone}
	}
}

func (e *Extractor) extractPDF(ctx context.Context, data []byte) Result {
	text, _ := withStageTimeout(ctx, e.logger, e.config.PDFTimeout, "PDF text", func(context.Context) (string, error) {
		return plainText(data)
	})
	if strings.TrimSpace(text) != "" {
		return Result{Text: text, Method: MethodPDFText}
	}

	text, _ = withStageTimeout(ctx, e.logger, e.config.PDFTimeout, "PDF text (rows)", func(context.Context) (string, error) {
		return rowText(data)
	})
	if strings.TrimSpace(text) != "" {
		return Result{Text: text, Method: MethodPDFTextRaw}
	}

	if e.rasterizer == nil || e.recognizer == nil {
		return Result{Method: MethodNone}
	}

	dpi := int(72 * e.config.OCRScale)
	images, ok := withStageTimeout(ctx, e.logger, e.config.PDFTimeout, "PDF render", func(ctx context.Context) ([][]byte, error) {
		return e.rasterizer.Rasterize(ctx, data, e.config.OCRPages, dpi)
	})
	if !ok || len(images) == 0 {
		return Result{Method: MethodNone}
	}
	if len(images) > e.config.OCRPages {
		images = images[:e.config.OCRPages]
	}

	var combined strings.Builder
	for i, img := range images {
		img := img
		pageText, _ := withStageTimeout(ctx, e.logger, e.config.OCRTimeout, fmt.Sprintf("PDF OCR page %d", i+1), func(ctx context.Context) (string, error) {
			return e.recognizer.Recognize(ctx, img)
		})
		if pageText != "" {
			combined.WriteString(pageText)
			combined.WriteString("\n")
		}
	}

	out := strings.TrimSpace(combined.String())
	if out == "" {
		return Result{Method: MethodNone, PagesScanned: len(images)}
	}
	return Result{Text: out, Method: MethodPDFOCR, PagesScanned: len(images)}
}

// withStageTimeout runs fn with its own deadline and turns errors, panics and
// timeouts into a zero value. The caller is released at the deadline even if
// fn ignores its context.
func withStageTimeout[T any](ctx context.Context, logger *zap.Logger, d time.Duration, label string, fn func(context.Context) (T, error)) (T, bool) {
	var zero T

	stageCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type outcome struct {
		value T
		err   error
	}
	done := make(chan outcome, 1)

	start := time.Now()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		v, err := fn(stageCtx)
		done <- outcome{value: v, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			logger.Warn("Extraction stage failed",
				zap.String("stage", label),
				zap.Error(res.err))
			return zero, false
		}
		return res.value, true
	case <-stageCtx.Done():
		logger.Warn("Extraction stage timed out",
			zap.String("stage", label),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(stageCtx.Err()))
		return zero, false
	}
}

func openPDF(data []byte) (*pdf.Reader, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}
	return r, nil
}

func plainText(data []byte) (string, error) {
	r, err := openPDF(data)
	if err != nil {
		return "", err
	}
	reader, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("failed to read pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, reader); err != nil {
		return "", fmt.Errorf("failed to read pdf text: %w", err)
	}
	return buf.String(), nil
}

// rowText walks every page row by row and joins text runs with single spaces
func rowText(data []byte) (string, error) {
	r, err := openPDF(data)
	if err != nil {
		return "", err
	}

	var lines []string
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			return "", fmt.Errorf("failed to read page %d: %w", i, err)
		}
		for _, row := range rows {
			parts := make([]string, 0, len(row.Content))
			for _, t := range row.Content {
				parts = append(parts, t.S)
			}
			if line := collapseSpaces(strings.Join(parts, " ")); line != "" {
				lines = append(lines, line)
			}
		}
	}
	return strings.Join(lines, "\n"), nil
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
