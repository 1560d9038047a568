package mediastream_test

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"elicit/internal/mediastream"
	"elicit/internal/testsupport"
)

func newMediaFile(t *testing.T, size int64) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.mp4")
	testsupport.WriteMedia(t, path, size)
	return path
}

func serve(t *testing.T, srv *mediastream.Server, req *http.Request, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.ServeFile(rec, req, path)
	return rec
}

func TestServeFileWithoutRange(t *testing.T) {
	path := newMediaFile(t, 20000)
	srv := mediastream.NewServer(0, nil)

	rec := serve(t, srv, httptest.NewRequest(http.MethodGet, "/media", nil), path)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Accept-Ranges"); got != "bytes" {
		t.Fatalf("expected Accept-Ranges bytes, got %q", got)
	}
	if got := rec.Header().Get("Content-Length"); got != "20000" {
		t.Fatalf("expected Content-Length 20000, got %q", got)
	}
	if got := rec.Header().Get("Content-Type"); got != "video/mp4" {
		t.Fatalf("expected video/mp4, got %q", got)
	}
	if rec.Header().Get("Content-Range") != "" {
		t.Fatal("full response must not carry Content-Range")
	}
	if !bytes.Equal(rec.Body.Bytes(), testsupport.ExpectedBytes(0, 20000)) {
		t.Fatal("body does not match file content")
	}
}

func TestServeFilePartialContent(t *testing.T) {
	path := newMediaFile(t, 1000)
	// An odd chunk size forces several short reads per window.
	srv := mediastream.NewServer(7, nil)

	cases := []struct {
		header       string
		start, count int64
		contentRange string
	}{
		{"bytes=500-799", 500, 300, "bytes 500-799/1000"},
		{"bytes=900-", 900, 100, "bytes 900-999/1000"},
		{"bytes=-3", 997, 3, "bytes 997-999/1000"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/media", nil)
		req.Header.Set("Range", tc.header)
		rec := serve(t, srv, req, path)
		if rec.Code != http.StatusPartialContent {
			t.Fatalf("%s: expected 206, got %d", tc.header, rec.Code)
		}
		if got := rec.Header().Get("Content-Range"); got != tc.contentRange {
			t.Fatalf("%s: expected Content-Range %q, got %q", tc.header, tc.contentRange, got)
		}
		if got := rec.Header().Get("Content-Length"); got != strconv.FormatInt(tc.count, 10) {
			t.Fatalf("%s: unexpected Content-Length %q", tc.header, got)
		}
		if !bytes.Equal(rec.Body.Bytes(), testsupport.ExpectedBytes(tc.start, tc.count)) {
			t.Fatalf("%s: body mismatch", tc.header)
		}
	}
}

func TestServeFileUnsatisfiable(t *testing.T) {
	path := newMediaFile(t, 1000)
	srv := mediastream.NewServer(0, nil)

	req := httptest.NewRequest(http.MethodGet, "/media", nil)
	req.Header.Set("Range", "bytes=2000-")
	rec := serve(t, srv, req, path)
	if rec.Code != http.StatusRequestedRangeNotSatisfiable {
		t.Fatalf("expected 416, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Range"); got != "bytes */1000" {
		t.Fatalf("unexpected Content-Range %q", got)
	}
	if got := rec.Header().Get("Accept-Ranges"); got != "bytes" {
		t.Fatalf("expected Accept-Ranges on 416, got %q", got)
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("expected empty body, got %d bytes", rec.Body.Len())
	}
}

func TestServeFileHead(t *testing.T) {
	path := newMediaFile(t, 4096)
	srv := mediastream.NewServer(0, nil)

	req := httptest.NewRequest(http.MethodHead, "/media", nil)
	req.Header.Set("Range", "bytes=0-99")
	rec := serve(t, srv, req, path)
	if rec.Code != http.StatusPartialContent {
		t.Fatalf("expected 206, got %d", rec.Code)
	}
	if rec.Header().Get("Content-Length") != "100" || rec.Body.Len() != 0 {
		t.Fatalf("unexpected HEAD response: length=%q body=%d", rec.Header().Get("Content-Length"), rec.Body.Len())
	}
}

func TestServeFileMissing(t *testing.T) {
	path := newMediaFile(t, 10)
	if err := os.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}
	srv := mediastream.NewServer(0, nil)
	rec := serve(t, srv, httptest.NewRequest(http.MethodGet, "/media", nil), path)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestServeFileStopsWhenClientGone(t *testing.T) {
	path := newMediaFile(t, 64*1024)
	srv := mediastream.NewServer(1024, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/media", nil).WithContext(ctx)
	rec := serve(t, srv, req, path)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected headers to be written, got %d", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("expected no body after cancellation, got %d bytes", rec.Body.Len())
	}
}

func TestServeFileOverHTTP(t *testing.T) {
	path := newMediaFile(t, 100000)
	srv := mediastream.NewServer(0, nil)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		srv.ServeFile(w, r, path)
	}))
	t.Cleanup(ts.Close)

	req, err := http.NewRequest(http.MethodGet, ts.URL, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Range", "bytes=50000-50999")
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if resp.StatusCode != http.StatusPartialContent || !bytes.Equal(body, testsupport.ExpectedBytes(50000, 1000)) {
		t.Fatalf("unexpected response %d with %d bytes", resp.StatusCode, len(body))
	}
}

// truncatingWriter shrinks the file once headers go out, after ServeFile has
// sized the response from the original length.
type truncatingWriter struct {
	http.ResponseWriter
	t    *testing.T
	path string
	size int64
}

func (w *truncatingWriter) WriteHeader(code int) {
	if err := os.Truncate(w.path, w.size); err != nil {
		w.t.Errorf("truncate: %v", err)
	}
	w.ResponseWriter.WriteHeader(code)
}

func TestServeFileAbortsWhenFileShrinks(t *testing.T) {
	const total = 256 * 1024
	path := newMediaFile(t, total)
	srv := mediastream.NewServer(4096, nil)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		srv.ServeFile(&truncatingWriter{ResponseWriter: w, t: t, path: path, size: 10000}, r, path)
	}))
	t.Cleanup(ts.Close)

	resp, err := ts.Client().Get(ts.URL)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.ContentLength != total {
		t.Fatalf("expected 200 sized for the original file, got %d with length %d", resp.StatusCode, resp.ContentLength)
	}
	body, err := io.ReadAll(resp.Body)
	if err == nil {
		t.Fatalf("expected the client to see a failed body, read %d bytes cleanly", len(body))
	}
	if int64(len(body)) >= total {
		t.Fatalf("expected a truncated body, got %d bytes", len(body))
	}
}
