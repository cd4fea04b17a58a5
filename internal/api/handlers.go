package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/starford/framegrab/internal/apperr"
	"github.com/starford/framegrab/internal/capture"
	"github.com/starford/framegrab/internal/captureservice"
	"github.com/starford/framegrab/internal/models"
	"github.com/starford/framegrab/internal/pngtext"
)

const defaultMaxUploadBytes = 32 << 20

// Handler holds API route handlers.
type Handler struct {
	svc       *captureservice.Service
	maxUpload int64
	now       func() time.Time
}

// NewHandler creates a new Handler. maxUploadBytes <= 0 uses 32 MB.
func NewHandler(svc *captureservice.Service, maxUploadBytes int64) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	return &Handler{svc: svc, maxUpload: maxUploadBytes, now: time.Now}
}

// TagCapture handles POST /api/captures.
//
// Multipart form: "file" (PNG) plus source, captureTime, duration, fps and
// optional width, height, exportedAt. The response body is the frame, tagged
// when possible and untouched otherwise.
func (h *Handler) TagCapture(w http.ResponseWriter, r *http.Request) {
	png, form, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	c, err := h.captureFromForm(form, png)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	frame, err := h.svc.Tag(r.Context(), png, c)
	if err != nil {
		if errors.Is(err, apperr.ErrInvalidCapture) {
			writeError(w, http.StatusBadRequest, err.Error())
		} else {
			slog.Error("tag capture failed", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(frame.PNG)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", frame.Filename))
	w.Header().Set("ETag", `"`+frame.Checksum+`"`)
	w.Header().Set(HeaderCaptureID, frame.ID)
	w.Header().Set(HeaderMetadataEmbedded, strconv.FormatBool(frame.Embedded))
	if frame.Err != nil {
		w.Header().Set(HeaderMetadataError, frame.Err.Error())
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(frame.PNG)
}

// Inspect handles POST /api/inspect.
func (h *Handler) Inspect(w http.ResponseWriter, r *http.Request) {
	png, _, ok := h.readUpload(w, r)
	if !ok {
		return
	}
	out, err := h.svc.Inspect(r.Context(), png)
	if err != nil {
		if errors.Is(err, pngtext.ErrMalformed) {
			writeError(w, http.StatusBadRequest, err.Error())
		} else {
			slog.Error("inspect failed", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// readUpload parses the multipart body and returns the "file" field. It
// writes the error response itself and reports ok=false on failure.
func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, *multipart.Form, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		writeError(w, http.StatusBadRequest, "file too large or invalid multipart")
		return nil, nil, false
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing 'file' field in multipart form")
		return nil, nil, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read file")
		return nil, nil, false
	}
	if detected := http.DetectContentType(data); detected != "image/png" {
		writeError(w, http.StatusBadRequest, "file is not a PNG (detected: "+detected+")")
		return nil, nil, false
	}
	return data, r.MultipartForm, true
}

func (h *Handler) captureFromForm(form *multipart.Form, png []byte) (models.Capture, error) {
	var (
		c   models.Capture
		err error
	)
	c.Source = formValue(form, "source")
	if c.CaptureTime, err = formFloat(form, "captureTime", 0); err != nil {
		return c, err
	}
	if c.Duration, err = formFloat(form, "duration", 0); err != nil {
		return c, err
	}
	if c.FPS, err = formFloat(form, "fps", capture.DefaultFPS); err != nil {
		return c, err
	}
	if c.Width, err = formInt(form, "width"); err != nil {
		return c, err
	}
	if c.Height, err = formInt(form, "height"); err != nil {
		return c, err
	}
	if c.Width == 0 || c.Height == 0 {
		w, hgt, dimErr := h.svc.Dimensions(png)
		if dimErr != nil {
			return c, fmt.Errorf("width and height are required: %v", dimErr)
		}
		if c.Width == 0 {
			c.Width = w
		}
		if c.Height == 0 {
			c.Height = hgt
		}
	}
	c.ExportedAt = formValue(form, "exportedAt")
	if c.ExportedAt == "" {
		c.ExportedAt = capture.FormatTimestamp(h.now())
	}
	return c, nil
}

func formValue(form *multipart.Form, key string) string {
	if v := form.Value[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}

func formFloat(form *multipart.Form, key string, def float64) (float64, error) {
	raw := formValue(form, key)
	if raw == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid number %q", key, raw)
	}
	return f, nil
}

func formInt(form *multipart.Form, key string) (int, error) {
	raw := formValue(form, key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q", key, raw)
	}
	return n, nil
}
