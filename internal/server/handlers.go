package server

import (
	"context"
	"encoding/hex"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/conneroisu/comicshare/internal/catalog"
	"github.com/conneroisu/comicshare/internal/errors"
	"github.com/conneroisu/comicshare/internal/stats"
	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

// ThumbnailContentType is the media type of thumbnails in wire format.
const ThumbnailContentType = "application/vnd.comicshare.thumbnail"

// updateRequest is the body of a book PATCH.
type updateRequest struct {
	Field string          `json:"field"`
	Value json.RawMessage `json:"value"`
}

// register adds the routes of s to mux under /{share}/.
func (s *Service) register(mux *http.ServeMux) {
	prefix := "/" + s.Name()
	library := prefix + "/Library"

	mux.HandleFunc("GET "+prefix+"/Info", s.handleInfo)

	mux.Handle("GET "+library+"/library", s.requireLibraryAccess(http.HandlerFunc(s.handleLibrary)))
	mux.Handle("GET "+library+"/books/{id}/count", s.requireLibraryAccess(http.HandlerFunc(s.handleImageCount)))
	mux.Handle("GET "+library+"/books/{id}/pages/{index}", s.requireLibraryAccess(http.HandlerFunc(s.handleImage)))
	mux.Handle("GET "+library+"/books/{id}/thumbnails/{index}", s.requireLibraryAccess(http.HandlerFunc(s.handleThumbnail)))
	mux.Handle("PATCH "+library+"/books/{id}", s.requireLibraryAccess(http.HandlerFunc(s.handleUpdate)))
	mux.Handle("GET "+library+"/stats", s.requireLibraryAccess(http.HandlerFunc(s.handleStats)))
	mux.Handle("GET "+library+"/stats/live", s.requireLibraryAccess(http.HandlerFunc(s.handleLiveStats)))
}

// Handler returns an HTTP handler serving only this share.
func (s *Service) Handler() http.Handler {
	return newHandler([]*Service{s}, s.logger)
}

func (s *Service) handleInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.Info(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	if wantsHTML(r) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		cw := &countingWriter{w: w}
		if err := statusPage(info, s.Stats(), s.ProviderStats()).Render(r.Context(), cw); err != nil {
			s.logger.Error(r.Context(), err, "Failed to render status page")
		}
		s.account(r.Context(), stats.InfoRequest, cw.n)
		return
	}

	n := writeJSON(w, http.StatusOK, info)
	s.account(r.Context(), stats.InfoRequest, n)
}

func (s *Service) handleLibrary(w http.ResponseWriter, r *http.Request) {
	doc, err := s.Library(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	data, err := s.codec.Encode(doc)
	if err != nil {
		s.logger.Error(r.Context(), err, "Failed to encode catalog snapshot")
		w.WriteHeader(http.StatusNoContent)
		return
	}

	sum := blake3.Sum256(data)
	etag := `"` + hex.EncodeToString(sum[:16]) + `"`
	w.Header().Set("ETag", etag)
	w.Header().Set("Vary", "Accept-Encoding")

	if etagMatches(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		s.account(r.Context(), stats.LibraryRequest, 0)
		return
	}

	if acceptsEncoding(r, "zstd") {
		data = s.zstd.EncodeAll(data, make([]byte, 0, len(data)/2))
		w.Header().Set("Content-Encoding", "zstd")
	}

	if int64(len(data)) > s.maxMessageSize {
		s.logger.Warn(r.Context(), nil, "Catalog snapshot exceeds the message size limit", "size", len(data))
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", s.codec.ContentType())
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	n, _ := w.Write(data)
	s.account(r.Context(), stats.LibraryRequest, n)
}

func (s *Service) handleImageCount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	count := 0
	if id, ok := bookID(r); ok {
		var err error
		count, err = s.ImageCount(ctx, id)
		if errors.IsAuthorizationDenied(err) {
			writeError(w, err)
			return
		}
		if err != nil {
			s.logger.Warn(ctx, err, "Image count failed", "book", id)
			count = 0
		}
	}

	n := writeJSON(w, http.StatusOK, map[string]int{"count": count})
	s.account(ctx, stats.LibraryRequest, n)
}

func (s *Service) handleImage(w http.ResponseWriter, r *http.Request) {
	s.serveContent(w, r, stats.PageRequest, s.Image)
}

func (s *Service) handleThumbnail(w http.ResponseWriter, r *http.Request) {
	s.serveContent(w, r, stats.ThumbnailRequest, s.Thumbnail)
}

// serveContent answers a page or thumbnail request. Every failure other
// than an access denial becomes an empty 204 response.
func (s *Service) serveContent(
	w http.ResponseWriter,
	r *http.Request,
	t stats.RequestType,
	fetch func(ctx context.Context, id uuid.UUID, index int) ([]byte, error),
) {
	ctx := r.Context()

	id, ok := bookID(r)
	index, err := strconv.Atoi(r.PathValue("index"))
	if !ok || err != nil || index < 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	data, err := fetch(ctx, id, index)
	if errors.IsAuthorizationDenied(err) {
		writeError(w, err)
		return
	}
	if err == nil && int64(len(data)) > s.maxMessageSize {
		err = errors.NewTransientError(errors.ErrCodePayloadTooLarge, "response exceeds the message size limit", nil)
	}
	if err != nil {
		s.logger.Warn(ctx, err, "Content request failed",
			"type", t.String(),
			"book", id,
			"index", index)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	contentType := ThumbnailContentType
	if t == stats.PageRequest {
		contentType = http.DetectContentType(data)
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	n, _ := w.Write(data)
	s.account(ctx, t, n)
}

func (s *Service) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, ok := bookID(r)
	if !ok {
		http.Error(w, "invalid book id", http.StatusBadRequest)
		return
	}

	var req updateRequest
	body := http.MaxBytesReader(w, r.Body, s.maxMessageSize)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	update, err := catalog.ParseUpdate(req.Field, req.Value)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := s.Update(ctx, id, update); err != nil {
		s.logger.Info(ctx, "Update rejected", "book", id, "field", req.Field, "error", err.Error())
		writeError(w, err)
		return
	}

	s.logger.Info(ctx, "Book updated", "book", id, "field", req.Field)
	w.WriteHeader(http.StatusNoContent)
	s.account(ctx, stats.LibraryRequest, 0)
}

func (s *Service) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.report())
}

// statsReport is the body of the stats endpoints.
type statsReport struct {
	Share     string              `json:"share"`
	Clients   []stats.ClientStats `json:"clients"`
	Totals    stats.ClientStats   `json:"totals"`
	Providers providerReport      `json:"providers"`
}

type providerReport struct {
	Open      int   `json:"open"`
	Capacity  int   `json:"capacity"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
}

func (s *Service) report() statsReport {
	snapshot := s.Stats()
	providers := s.ProviderStats()
	return statsReport{
		Share:   s.Name(),
		Clients: snapshot.Clients,
		Totals:  snapshot.Totals(),
		Providers: providerReport{
			Open:      providers.Entries,
			Capacity:  providers.Capacity,
			Hits:      providers.Hits,
			Misses:    providers.Misses,
			Evictions: providers.Evictions,
		},
	}
}

func bookID(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// statusCode maps an error to the HTTP status sent to the peer.
func statusCode(err error) int {
	var se *errors.ShareError
	if !stderrors.As(err, &se) {
		return http.StatusInternalServerError
	}

	switch se.Type {
	case errors.ErrorTypeAuthorization:
		if se.Code == errors.ErrCodeNotEditable {
			return http.StatusForbidden
		}
		return http.StatusUnauthorized
	case errors.ErrorTypeNotFound:
		return http.StatusNotFound
	case errors.ErrorTypeValidation:
		return http.StatusBadRequest
	case errors.ErrorTypeTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := statusCode(err)
	message := http.StatusText(code)

	var se *errors.ShareError
	if stderrors.As(err, &se) && se.Type != errors.ErrorTypeInternal {
		message = se.Message
	}
	http.Error(w, message, code)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) int {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "encoding failed", http.StatusInternalServerError)
		return 0
	}
	data = append(data, '\n')

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	n, _ := w.Write(data)
	return n
}

func wantsHTML(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "text/html")
}

func acceptsEncoding(r *http.Request, encoding string) bool {
	for _, part := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		name, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		if !strings.EqualFold(strings.TrimSpace(name), encoding) {
			continue
		}
		return strings.ReplaceAll(strings.TrimSpace(params), " ", "") != "q=0"
	}
	return false
}

func etagMatches(header, etag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}
