package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/dunamismax/photoflow/internal/codec"
	"github.com/dunamismax/photoflow/internal/domain"
	"github.com/dunamismax/photoflow/internal/pipeline"
	"github.com/dunamismax/photoflow/internal/raster"
)

const (
	HeaderStages = "X-Photoflow-Stages"

	uploadField = "file"

	routeUpload    = "/upload"
	routeProcess   = "/process"
	routeTransform = "/transform"
)

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	file, _, err := r.FormFile(uploadField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeEditError(w, r, err)
			return
		}
		writeErrorMessage(w, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeEditError(w, r, err)
		return
	}

	img, err := s.decode(routeUpload, data)
	if err != nil {
		s.writeEditError(w, r, err)
		return
	}
	s.writePNG(w, r, img, nil)
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req domain.ProcessRequest
	if err := decodeJSON(w, r, &req, s.maxBodyBytes, false); err != nil {
		s.writeEditError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		s.writeEditError(w, r, err)
		return
	}

	img, err := s.decodeDataURI(routeProcess, req.Image)
	if err != nil {
		s.writeEditError(w, r, err)
		return
	}

	out := s.orchestrator.RunAdjustAndFilter(img, req.AdjustmentParameters)
	s.writePNG(w, r, out, pipeline.AdjustStages(req.AdjustmentParameters))
}

func (s *Server) handleTransform(w http.ResponseWriter, r *http.Request) {
	var req domain.TransformRequest
	if err := decodeJSON(w, r, &req, s.maxBodyBytes, false); err != nil {
		s.writeEditError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		s.writeEditError(w, r, err)
		return
	}

	img, err := s.decodeDataURI(routeTransform, req.Image)
	if err != nil {
		s.writeEditError(w, r, err)
		return
	}

	out, err := s.orchestrator.RunTransform(img, req.TransformParameters)
	if err != nil {
		s.writeEditError(w, r, err)
		return
	}
	s.writePNG(w, r, out, pipeline.TransformStages(req.TransformParameters))
}

func (s *Server) decodeDataURI(route, image string) (*raster.Buffer, error) {
	data, err := codec.ParseDataURI(image)
	if err != nil {
		return nil, err
	}
	return s.decode(route, data)
}

func (s *Server) decode(route string, data []byte) (*raster.Buffer, error) {
	img, err := s.decoder.Decode(data)
	if err != nil {
		return nil, err
	}
	s.metrics.observeImage(route, len(data), img.PixelCount())
	return img, nil
}

// writePNG encodes img and writes it with a content-derived ETag. A
// matching If-None-Match gets 304 without a body.
func (s *Server) writePNG(w http.ResponseWriter, r *http.Request, img *raster.Buffer, stages []string) {
	data, err := codec.EncodePNG(img)
	if err != nil {
		s.writeEditError(w, r, err)
		return
	}

	etag := `"` + codec.Digest(data) + `"`
	h := w.Header()
	h.Set("ETag", etag)
	h.Set(HeaderStages, strings.Join(stages, ","))
	if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	h.Set("Content-Type", codec.ContentType("png"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) writeEditError(w http.ResponseWriter, r *http.Request, err error) {
	status := editErrorStatus(err)
	if status == http.StatusInternalServerError {
		s.logger.Printf("edit failed path=%s err=%v", r.URL.Path, err)
		writeErrorMessage(w, status, "internal error")
		return
	}
	writeErrorMessage(w, status, err.Error())
}

func editErrorStatus(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge), errors.Is(err, codec.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errInvalidJSON),
		errors.Is(err, domain.ErrInvalidParameter),
		errors.Is(err, codec.ErrImageFormat),
		errors.Is(err, raster.ErrDimension):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
