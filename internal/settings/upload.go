package settings

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

var pdfMagic = []byte("%PDF-")

// SaveUpload stores an uploaded tariff document under dir and returns its
// path. Bodies that do not start like a PDF are rejected before anything
// touches the disk. The document only appears under its final name once it
// is fully written.
func SaveUpload(dir string, r io.Reader) (string, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(len(pdfMagic))
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read upload: %w", err)
	}
	if !bytes.Equal(head, pdfMagic) {
		return "", fmt.Errorf("%w: upload is not a PDF", ErrUnreadableDocument)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	name := "tarif-" + time.Now().UTC().Format("20060102T150405.000000000") + ".pdf"
	final := filepath.Join(dir, name)

	partial, err := os.CreateTemp(dir, name+".partial-*")
	if err != nil {
		return "", fmt.Errorf("store upload: %w", err)
	}
	if err := fill(partial, br); err != nil {
		os.Remove(partial.Name())
		return "", fmt.Errorf("store upload: %w", err)
	}
	if err := os.Rename(partial.Name(), final); err != nil {
		os.Remove(partial.Name())
		return "", fmt.Errorf("store upload: %w", err)
	}
	return final, nil
}

// fill copies src into f, flushes it to stable storage and closes it.
func fill(f *os.File, src io.Reader) error {
	_, copyErr := io.Copy(f, src)
	if copyErr == nil {
		copyErr = f.Sync()
	}
	return errors.Join(copyErr, f.Close())
}
