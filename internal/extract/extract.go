package extract

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrCorruptDocument   = errors.New("corrupt document")
	ErrReadFailure       = errors.New("read failure")
)

var whitespaceRE = regexp.MustCompile(`\s+`)

// Result carries everything the pipeline needs from one file. The fingerprint
// is computed from raw bytes, never from extracted text, so byte-identical
// files always fingerprint-match even when extraction fails.
type Result struct {
	Path         string
	Kind         Kind
	Text         string
	Hash         string
	SizeBytes    int64
	LastModified int64
}

// File fingerprints path and, when its kind has text content, extracts and
// normalizes it. Extraction failures surface as errors alongside a Result
// that still carries the fingerprint.
func File(path string) (Result, error) {
	res := Result{Path: path, Kind: Classify(path)}

	info, err := os.Stat(path)
	if err != nil {
		return res, fmt.Errorf("%w: %v", ErrReadFailure, err)
	}
	res.SizeBytes = info.Size()
	res.LastModified = info.ModTime().Unix()

	hash, err := Fingerprint(path)
	if err != nil {
		return res, err
	}
	res.Hash = hash

	if !IsComparable(res.Kind) {
		if res.Kind == KindLegacy {
			return res, ErrUnsupportedFormat
		}
		return res, nil
	}

	text, err := Text(path, res.Kind)
	if err != nil {
		return res, err
	}
	res.Text = text
	return res, nil
}

// Fingerprint streams the file through SHA-256 and returns the hex digest.
func Fingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrReadFailure, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("%w: %v", ErrReadFailure, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Text extracts normalized plain text for the given kind.
func Text(path string, kind Kind) (string, error) {
	switch kind {
	case KindText:
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrReadFailure, err)
		}
		return normalize(string(data)), nil
	case KindHTML:
		return extractHTML(path)
	case KindWord:
		return extractDocx(path)
	case KindPresentation:
		return extractPptx(path)
	case KindSpreadsheet:
		return extractXlsx(path)
	case KindPageDescribed:
		return extractPDF(path)
	default:
		return "", ErrUnsupportedFormat
	}
}

// normalize collapses runs of whitespace and strips invalid UTF-8 so every
// extractor variant feeds the vectorizer the same shape of text.
func normalize(text string) string {
	text = strings.ToValidUTF8(text, "")
	text = whitespaceRE.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
