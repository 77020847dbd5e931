package extract

import (
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// Kind is the closed set of extractor variants. Classification is pure:
// extension tables first, well-known extensionless names, then a UTF-8 sniff.
type Kind string

const (
	KindText          Kind = "text"
	KindHTML          Kind = "html"
	KindWord          Kind = "word"
	KindSpreadsheet   Kind = "spreadsheet"
	KindPresentation  Kind = "presentation"
	KindPageDescribed Kind = "pdf"
	KindLegacy        Kind = "legacy"
	KindBinary        Kind = "binary"
)

var documentExtensions = map[string]Kind{
	".docx": KindWord,
	".xlsx": KindSpreadsheet,
	".pptx": KindPresentation,
	".pdf":  KindPageDescribed,
	".doc":  KindLegacy,
	".xls":  KindLegacy,
	".ppt":  KindLegacy,
	".odt":  KindLegacy,
	".rtf":  KindLegacy,
}

var htmlExtensions = map[string]bool{
	".html": true,
	".htm":  true,
}

var textExtensions = map[string]bool{
	".py": true, ".pyw": true, ".pyi": true,
	".java": true,
	".c":    true, ".h": true, ".cpp": true, ".hpp": true, ".cc": true, ".hh": true,
	".cs": true,
	".js": true, ".jsx": true, ".ts": true, ".tsx": true, ".mjs": true, ".cjs": true,
	".css": true, ".scss": true, ".sass": true, ".less": true,
	".json": true, ".xml": true, ".yaml": true, ".yml": true, ".toml": true,
	".ini": true, ".cfg": true, ".conf": true,
	".sh": true, ".bash": true, ".zsh": true, ".ps1": true, ".bat": true, ".cmd": true,
	".rb": true, ".rake": true, ".gemspec": true,
	".go": true, ".rs": true, ".swift": true, ".m": true, ".mm": true,
	".kt": true, ".kts": true, ".scala": true, ".php": true, ".sql": true,
	".md": true, ".markdown": true, ".txt": true, ".text": true, ".rst": true,
	".r": true, ".jl": true, ".lua": true, ".pl": true, ".pm": true,
	".groovy": true, ".gradle": true, ".cmake": true,
}

var wellKnownNames = map[string]bool{
	"dockerfile":    true,
	"makefile":      true,
	"gemfile":       true,
	"rakefile":      true,
	"procfile":      true,
	".gitignore":    true,
	".dockerignore": true,
	".env":          true,
	".editorconfig": true,
}

func Classify(path string) Kind {
	ext := strings.ToLower(filepath.Ext(path))
	name := strings.ToLower(filepath.Base(path))

	if kind, ok := documentExtensions[ext]; ok {
		return kind
	}
	if htmlExtensions[ext] {
		return KindHTML
	}
	if textExtensions[ext] {
		return KindText
	}
	if wellKnownNames[name] {
		return KindText
	}
	if sniffUTF8(path) {
		return KindText
	}
	return KindBinary
}

// IsComparable reports whether a kind has extractable text content.
// Binary files are still fingerprinted for exact-duplicate detection.
func IsComparable(kind Kind) bool {
	return kind != KindBinary && kind != KindLegacy
}

// sniffUTF8 reads the first KiB and accepts the file as text when it decodes
// cleanly as UTF-8 with no NUL bytes.
func sniffUTF8(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	buf := make([]byte, 1024)
	n, err := f.Read(buf)
	if err != nil && n == 0 {
		return false
	}
	buf = buf[:n]

	for _, b := range buf {
		if b == 0 {
			return false
		}
	}
	// A read boundary can split a multi-byte rune; trim at most a rune's worth
	// of tail bytes before validating.
	for i := 0; i < utf8.UTFMax-1 && len(buf) > 0 && !utf8.Valid(buf); i++ {
		if buf[len(buf)-1] < utf8.RuneSelf {
			break
		}
		buf = buf[:len(buf)-1]
	}
	return utf8.Valid(buf)
}
