package dms

import (
	"context"
	"errors"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/anacrolix/log"
	"github.com/nfnt/resize"

	"github.com/gomedia/dlnasrv/dlna/dlna"
	"github.com/gomedia/dlnasrv/internal/mimetable"
)

// streamChunkSize bounds how much of a file is copied per io.CopyN call, so
// a slow client never forces the whole response to buffer (spec §4.6.4:
// "stream in chunks (e.g. 64-256 KiB)").
const streamChunkSize = 128 * 1024

const artThumbnailSide = 256

// handleMedia serves both GET/HEAD /media/{id} (byte-range streaming) and
// GET /media/{id}/art (image thumbnail), split on the trailing path
// segment. Grounded on the teacher's dlna/dms/dms.go resourceHandler, which
// opens os.File directly and drives http.ServeContent; this version
// implements the range parsing itself to get the exact 206/416 contract
// spec §4.6.4 requires rather than relying on net/http's own (slightly
// different) range semantics.
func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, mediaPathPrefix)
	if art := strings.TrimSuffix(rest, "/art"); art != rest {
		s.handleArt(w, r, art)
		return
	}
	s.handleStream(w, r, rest)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request, objectID string) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	row, err := s.store.GetByID(r.Context(), objectID)
	if err != nil || row == nil || row.Item == nil {
		http.NotFound(w, r)
		return
	}
	item := *row.Item

	f, err := os.Open(item.AbsolutePath)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Levelf(log.Warning, "dms: stream: open %s: %v", item.AbsolutePath, err)
		}
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		http.Error(w, "stat failed", http.StatusInternalServerError)
		return
	}
	total := info.Size()

	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Type", item.MimeType)
	w.Header().Set(dlna.TransferModeDomain, transferModeFor(item.MediaClass))
	w.Header().Set(dlna.ContentFeaturesDomain, dlna.ContentFeaturesDefault)

	start, end, status, ok := parseRange(r.Header.Get("Range"), total)
	if !ok {
		w.Header().Set("Content-Range", "bytes */"+strconv.FormatInt(total, 10))
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
		return
	}
	length := end - start + 1
	if status == http.StatusPartialContent {
		w.Header().Set("Content-Range", "bytes "+strconv.FormatInt(start, 10)+"-"+strconv.FormatInt(end, 10)+"/"+strconv.FormatInt(total, 10))
	}
	w.Header().Set("Content-Length", strconv.FormatInt(length, 10))
	w.WriteHeader(status)

	if s.metrics != nil {
		s.metrics.RangeRequestsServed.Inc()
	}
	if r.Method == http.MethodHead {
		return
	}
	if start > 0 {
		if _, err := f.Seek(start, io.SeekStart); err != nil {
			return
		}
	}
	copyChunked(w, f, length)
}

// copyChunked streams exactly n bytes from f to w in bounded chunks,
// stopping silently on write error (client disconnect) without treating it
// as a server-side failure.
func copyChunked(w io.Writer, f io.Reader, n int64) {
	remaining := n
	for remaining > 0 {
		chunk := int64(streamChunkSize)
		if remaining < chunk {
			chunk = remaining
		}
		written, err := io.CopyN(w, f, chunk)
		remaining -= written
		if err != nil {
			return
		}
	}
}

func transferModeFor(class mimetable.Class) string {
	if class == mimetable.ClassImage {
		return dlna.TransferModeBackground
	}
	return dlna.TransferModeStreaming
}

// parseRange implements spec §4.6.4's range grammar: a single
// bytes=start-end / bytes=start- / bytes=-suffix spec, or no header at all.
// ok=false means the range is unsatisfiable (416).
func parseRange(header string, total int64) (start, end int64, status int, ok bool) {
	if header == "" {
		return 0, total - 1, http.StatusOK, true
	}
	spec := strings.TrimPrefix(header, "bytes=")
	if spec == header { // no "bytes=" prefix
		return 0, 0, 0, false
	}
	spec = strings.Split(spec, ",")[0] // first range spec only
	dash := strings.IndexByte(spec, '-')
	if dash < 0 {
		return 0, 0, 0, false
	}
	startStr, endStr := spec[:dash], spec[dash+1:]

	if startStr == "" {
		// bytes=-suffix
		suffix, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || suffix <= 0 {
			return 0, 0, 0, false
		}
		if suffix > total {
			suffix = total
		}
		return total - suffix, total - 1, http.StatusPartialContent, true
	}

	s, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || s < 0 || s >= total {
		return 0, 0, 0, false
	}
	if endStr == "" {
		return s, total - 1, http.StatusPartialContent, true
	}
	e, err := strconv.ParseInt(endStr, 10, 64)
	if err != nil || e < s {
		return 0, 0, 0, false
	}
	if e >= total {
		e = total - 1
	}
	return s, e, http.StatusPartialContent, true
}

// handleArt serves a downscaled JPEG thumbnail for image items, decoded and
// resized on the fly via nfnt/resize to fit within 256x256 (aspect ratio
// kept, smaller images not enlarged). Only JPEG, PNG and GIF sources can be
// decoded; other image formats 404, as does every other class, since spec
// §4.6 only promises this endpoint "may 404".
func (s *Server) handleArt(w http.ResponseWriter, r *http.Request, objectID string) {
	row, err := s.store.GetByID(r.Context(), objectID)
	if err != nil || row == nil || row.Item == nil || row.Item.MediaClass != mimetable.ClassImage {
		http.NotFound(w, r)
		return
	}
	f, err := os.Open(row.Item.AbsolutePath)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	thumb := resize.Thumbnail(artThumbnailSide, artThumbnailSide, img, resize.Lanczos3)

	w.Header().Set("Content-Type", "image/jpeg")
	if err := jpeg.Encode(w, thumb, &jpeg.Options{Quality: 85}); err != nil {
		s.logger.Levelf(log.Debug, "dms: art: encode %s: %v", row.Item.AbsolutePath, err)
	}
}
