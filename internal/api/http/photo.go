package apihttp

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"strconv"
	"strings"

	_ "golang.org/x/image/webp"
)

const (
	maxServedPhotoBytes = 8 * 1024 * 1024
	sniffLength         = 512
)

// photoContentType trusts the upstream type only when it names an image and
// otherwise sniffs the payload.
func photoContentType(declared string, data []byte) string {
	declared = strings.ToLower(strings.TrimSpace(declared))
	if strings.HasPrefix(declared, "image/") {
		return declared
	}
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	return http.DetectContentType(data[:min(len(data), sniffLength)])
}

func (s *Server) handlePhoto(w http.ResponseWriter, r *http.Request) {
	if !s.placesReady(w) {
		return
	}
	query := r.URL.Query()
	reference := strings.TrimSpace(query.Get("ref"))
	if reference == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing ref")
		return
	}
	maxWidth, err := parsePositiveInt(r, "maxWidth", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid maxWidth")
		return
	}

	photo, err := s.places.Photo(r.Context(), reference, maxWidth)
	if err != nil {
		s.writeServiceError(w, err, "photo failed")
		return
	}
	if len(photo.Data) > maxServedPhotoBytes {
		writeError(w, http.StatusBadGateway, "upstream_error", "image too large")
		return
	}
	contentType := photoContentType(photo.ContentType, photo.Data)
	if !strings.HasPrefix(contentType, "image/") {
		writeError(w, http.StatusBadGateway, "upstream_error", "not an image")
		return
	}

	header := w.Header()
	header.Set("Content-Type", contentType)
	header.Set("Content-Length", strconv.Itoa(len(photo.Data)))
	header.Set("Cache-Control", "public, max-age=86400")
	if config, _, err := image.DecodeConfig(bytes.NewReader(photo.Data)); err == nil {
		header.Set("X-Image-Width", strconv.Itoa(config.Width))
		header.Set("X-Image-Height", strconv.Itoa(config.Height))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(photo.Data)
}
