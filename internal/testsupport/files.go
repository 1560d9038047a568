package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// PatternByte is the byte stored at offset i by WriteMedia. Range tests use it
// to check that a response body came from the right place in the file.
func PatternByte(i int64) byte {
	return byte(i % 251)
}

// WriteMedia writes size bytes of position-derived content to path.
func WriteMedia(t testing.TB, path string, size int64) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	const chunkSize = 32 * 1024
	buf := make([]byte, chunkSize)
	var offset int64
	for offset < size {
		n := int64(chunkSize)
		if size-offset < n {
			n = size - offset
		}
		for i := int64(0); i < n; i++ {
			buf[i] = PatternByte(offset + i)
		}
		if _, err := f.Write(buf[:n]); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
		offset += n
	}
}

// ExpectedBytes returns the WriteMedia content for [start, start+length).
func ExpectedBytes(start, length int64) []byte {
	out := make([]byte, length)
	for i := range out {
		out[i] = PatternByte(start + int64(i))
	}
	return out
}

// WriteFile writes content to path, creating parent directories.
func WriteFile(t testing.TB, path string, content []byte) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
