package invoice

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// PdftoppmRasterizer renders PDF pages with poppler's pdftoppm
type PdftoppmRasterizer struct {
	Binary string
}

func NewPdftoppmRasterizer(binary string) *PdftoppmRasterizer {
	if binary == "" {
		binary = "pdftoppm"
	}
	return &PdftoppmRasterizer{Binary: binary}
}

func (p *PdftoppmRasterizer) Rasterize(ctx context.Context, data []byte, pages int, dpi int) ([][]byte, error) {
	dir, err := os.MkdirTemp("", "invoice-pages-")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	args := []string{
		"-png",
		"-r", strconv.Itoa(dpi),
		"-f", "1",
		"-l", strconv.Itoa(pages),
		"-", filepath.Join(dir, "page"),
	}
	cmd := exec.CommandContext(ctx, p.Binary, args...)
	cmd.Stdin = bytes.NewReader(data)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("pdftoppm failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	files, err := filepath.Glob(filepath.Join(dir, "page*.png"))
	if err != nil {
		return nil, err
	}
	// page-1.png, page-2.png ... sort by page number, not lexically
	sort.Slice(files, func(i, j int) bool {
		return pageNumber(files[i]) < pageNumber(files[j])
	})

	images := make([][]byte, 0, len(files))
	for _, f := range files {
		b, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read rendered page: %w", err)
		}
		images = append(images, b)
	}
	return images, nil
}

func pageNumber(path string) int {
	base := strings.TrimSuffix(filepath.Base(path), ".png")
	idx := strings.LastIndex(base, "-")
	if idx < 0 {
		return 0
	}
	n, _ := strconv.Atoi(base[idx+1:])
	return n
}

// TesseractRecognizer shells out to the tesseract CLI
type TesseractRecognizer struct {
	Binary   string
	Language string
}

func NewTesseractRecognizer(binary, language string) *TesseractRecognizer {
	if binary == "" {
		binary = "tesseract"
	}
	if language == "" {
		language = "eng"
	}
	return &TesseractRecognizer{Binary: binary, Language: language}
}

func (t *TesseractRecognizer) Recognize(ctx context.Context, image []byte) (string, error) {
	cmd := exec.CommandContext(ctx, t.Binary, "stdin", "stdout", "-l", t.Language)
	cmd.Stdin = bytes.NewReader(image)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("tesseract failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// Available reports whether the binary can be found on PATH
func Available(binary string) bool {
	_, err := exec.LookPath(binary)
	return err == nil
}
