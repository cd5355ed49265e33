package catalog

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

const sniffLen = 512

// binaryExtensions are skipped without opening the file.
var binaryExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".bmp": true, ".ico": true,
	".webp": true, ".tiff": true, ".psd": true,
	".mp3": true, ".mp4": true, ".wav": true, ".ogg": true, ".flac": true, ".avi": true,
	".mov": true, ".mkv": true, ".webm": true,
	".zip": true, ".tar": true, ".gz": true, ".tgz": true, ".bz2": true, ".xz": true,
	".7z": true, ".rar": true, ".zst": true,
	".exe": true, ".dll": true, ".so": true, ".dylib": true, ".a": true, ".o": true,
	".obj": true, ".lib": true, ".bin": true, ".class": true, ".jar": true, ".war": true,
	".pyc": true, ".pyo": true, ".wasm": true,
	".pdf": true, ".doc": true, ".docx": true, ".xls": true, ".xlsx": true, ".ppt": true,
	".pptx": true,
	".ttf": true, ".otf": true, ".woff": true, ".woff2": true, ".eot": true,
	".db": true, ".sqlite": true, ".sqlite3": true,
}

func hasBinaryExtension(p string) bool {
	return binaryExtensions[strings.ToLower(filepath.Ext(p))]
}

// sniff reads the first bytes of a file and reports whether it looks
// binary: a NUL byte, or more than 30% non-printable bytes. Empty files are
// text. The head is returned for shebang detection.
func sniff(filePath string) (bool, []byte, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return false, nil, err
	}
	defer file.Close()

	buffer := make([]byte, sniffLen)
	n, err := io.ReadFull(file, buffer)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return false, nil, err
	}
	buffer = buffer[:n]
	return isBinary(buffer), buffer, nil
}

func isBinary(buffer []byte) bool {
	if len(buffer) == 0 {
		return false
	}
	if bytes.IndexByte(buffer, 0) >= 0 {
		return true
	}

	// Multi-byte UTF-8 counts as printable when the head decodes cleanly.
	utf8Text := utf8.Valid(trimPartialRune(buffer))

	nonPrintable := 0
	for _, b := range buffer {
		if b >= 0x80 && utf8Text {
			continue
		}
		if !isPrintable(b) {
			nonPrintable++
		}
	}
	return float64(nonPrintable)/float64(len(buffer)) > 0.3
}

func isPrintable(b byte) bool {
	return (b >= 32 && b <= 126) || b == '\n' || b == '\r' || b == '\t' || b == '\f'
}

// trimPartialRune drops a rune cut off by the sniff window.
func trimPartialRune(b []byte) []byte {
	for i := 0; i < utf8.UTFMax && i < len(b); i++ {
		r, size := utf8.DecodeLastRune(b[:len(b)-i])
		if r != utf8.RuneError || size > 1 {
			return b[:len(b)-i]
		}
	}
	return b
}
