package extract

import (
	"context"
	"errors"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// Tesseract runs the tesseract binary over stdin/stdout. The page
// segmentation settings match what worked well for full-screen grabs
// (--oem 3 --psm 6).
type Tesseract struct {
	Binary string
	runner Runner
	log    *zap.SugaredLogger
}

// NewTesseract builds the engine. An empty binary defaults to
// "tesseract"; a nil runner defaults to real subprocess execution.
func NewTesseract(log *zap.SugaredLogger, binary string, runner Runner) *Tesseract {
	if binary == "" {
		binary = "tesseract"
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Tesseract{Binary: binary, runner: runner, log: log}
}

func (t *Tesseract) Name() string { return "tesseract" }

// Recognize extracts text from a PNG image. Empty output is a valid
// result: the image simply contained no recognizable text.
func (t *Tesseract) Recognize(ctx context.Context, image []byte, lang string) (string, error) {
	if lang == "" {
		lang = "eng"
	}
	args := []string{"stdin", "stdout", "-l", lang, "--oem", "3", "--psm", "6"}
	out, err := t.runner.Output(ctx, image, t.Binary, args...)
	if err != nil {
		var execErr *exec.Error
		if errors.As(err, &execErr) {
			return "", &OCRError{Engine: t.Name(), Err: errors.New("tesseract binary not found")}
		}
		return "", &OCRError{Engine: t.Name(), Err: err}
	}

	text := normalizeText(string(out))
	t.log.Debugw("ocr complete", "engine", t.Name(), "chars", len(text))
	return text, nil
}

// normalizeText collapses runs of whitespace the way the OCR output is
// consumed downstream: single spaces, no leading/trailing blanks.
func normalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
