package mediastream

import (
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"strconv"

	"elicit/internal/logging"
)

// DefaultChunkSize is the read and write unit for streamed bodies.
const DefaultChunkSize = 8 * 1024

// Server streams media files. It is safe for concurrent use; each request
// opens and releases its own file handle.
type Server struct {
	chunkSize int
	logger    *slog.Logger
}

// NewServer constructs a Server. A chunkSize <= 0 selects DefaultChunkSize.
func NewServer(chunkSize int, logger *slog.Logger) *Server {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Server{
		chunkSize: chunkSize,
		logger:    logging.NewComponentLogger(logger, "mediastream"),
	}
}

// ServeFile answers r with the file at path, honoring its Range header.
// The file size is read on every request; it is never cached.
func (s *Server) ServeFile(w http.ResponseWriter, r *http.Request, path string) {
	file, err := os.Open(path)
	if err != nil {
		s.openFailed(w, path, err)
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		s.openFailed(w, path, err)
		return
	}
	if info.IsDir() {
		http.Error(w, "media not found", http.StatusNotFound)
		return
	}
	total := info.Size()

	header := w.Header()
	header.Set("Accept-Ranges", "bytes")

	plan, err := Resolve(r.Header.Get("Range"), total)
	if err != nil {
		s.logger.Debug("range rejected",
			logging.String("path", path),
			logging.String("range", r.Header.Get("Range")),
			logging.Error(err),
		)
		header.Set("Content-Range", UnsatisfiedRange(total))
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
		return
	}

	header.Set("Content-Type", ContentType(path))
	header.Set("Content-Length", strconv.FormatInt(plan.Length, 10))
	if cr := plan.ContentRange(); cr != "" {
		header.Set("Content-Range", cr)
	}
	w.WriteHeader(plan.Status())
	if r.Method == http.MethodHead {
		return
	}

	if err := s.copyRange(w, r, file, plan); err != nil {
		if errors.Is(err, errClientGone) {
			return
		}
		logging.WarnWithContext(s.logger, "media stream aborted", "stream_aborted",
			logging.String("path", path),
			logging.Int64("offset", plan.Offset),
			logging.Int64("length", plan.Length),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check that the media file is readable and not being truncated"),
			logging.String(logging.FieldImpact, "client received a truncated response"),
		)
		// Headers are already out; aborting the handler resets the connection
		// so the client cannot mistake a short body for success.
		panic(http.ErrAbortHandler)
	}
}

var errClientGone = errors.New("client disconnected")

func (s *Server) copyRange(w http.ResponseWriter, r *http.Request, file io.ReaderAt, plan Plan) error {
	buf := make([]byte, s.chunkSize)
	offset := plan.Offset
	remaining := plan.Length
	ctx := r.Context()
	for remaining > 0 {
		if ctx.Err() != nil {
			return errClientGone
		}
		n := int64(len(buf))
		if remaining < n {
			n = remaining
		}
		read, err := file.ReadAt(buf[:n], offset)
		if int64(read) < n {
			if err == nil || errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return err
		}
		if _, err := w.Write(buf[:read]); err != nil {
			return errClientGone
		}
		offset += int64(read)
		remaining -= int64(read)
	}
	return nil
}

func (s *Server) openFailed(w http.ResponseWriter, path string, err error) {
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Info("media file missing", logging.String("path", path))
		http.Error(w, "media not found", http.StatusNotFound)
		return
	}
	logging.ErrorWithContext(s.logger, "open media failed", "media_open_failed",
		logging.String("path", path),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check file permissions"),
	)
	http.Error(w, "media unavailable", http.StatusInternalServerError)
}
