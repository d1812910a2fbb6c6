package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MeKo-Tech/medscan/internal/extract"
	"github.com/MeKo-Tech/medscan/internal/recognize"
	"github.com/MeKo-Tech/medscan/internal/validate"
	"github.com/MeKo-Tech/medscan/internal/version"
)

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := HealthResponse{
		Status:  "healthy",
		Version: version.Version,
		Time:    time.Now().UTC().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("Failed to encode health response", "error", err)
	}
}

// verifyHandler runs the full pipeline on one uploaded label image and
// returns the verdict. Expected values arrive as form fields alongside
// the image.
func (s *Server) verifyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	imageData, ok := s.readImageUpload(w, r)
	if !ok {
		return
	}

	expected := validate.Expected{
		MedicationName: r.FormValue("medication_name"),
		Dosage:         r.FormValue("dosage"),
		PatientName:    r.FormValue("patient_name"),
		ScheduledTime:  r.FormValue("scheduled_time"),
	}
	if expected.PatientName == "" || expected.ScheduledTime == "" {
		s.writeVerifyError(w, "patient_name and scheduled_time are required", http.StatusBadRequest)
		return
	}

	start := time.Now()
	reading, err := s.recognize(r.Context(), imageData)
	if err != nil {
		if errors.Is(err, recognize.ErrNoText) {
			scanRequestsTotal.WithLabelValues("verify", "no_text").Inc()
			s.writeVerifyError(w, "No text recognized in image", http.StatusUnprocessableEntity)
			return
		}
		scanRequestsTotal.WithLabelValues("verify", "error").Inc()
		s.writeVerifyError(w, "Recognition failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	label := extract.Extract(reading)
	verdict := validate.Validate(label, expected)

	scanRequestsTotal.WithLabelValues("verify", "success").Inc()
	scanDuration.WithLabelValues("verify").Observe(time.Since(start).Seconds())
	result := "invalid"
	if verdict.IsValid {
		result = "valid"
	}
	verifyResultsTotal.WithLabelValues(result).Inc()

	w.Header().Set("Content-Type", "application/json")
	response := VerifyResponse{
		Success:    true,
		Verdict:    &verdict,
		Label:      &label,
		Text:       reading.Text,
		Confidence: reading.Confidence,
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("Failed to encode verify response", "error", err)
	}
}

// extractHandler recognizes and extracts label fields without validating
// them against anything.
func (s *Server) extractHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	imageData, ok := s.readImageUpload(w, r)
	if !ok {
		return
	}

	start := time.Now()
	reading, err := s.recognize(r.Context(), imageData)
	if err != nil {
		if errors.Is(err, recognize.ErrNoText) {
			scanRequestsTotal.WithLabelValues("extract", "no_text").Inc()
			s.writeExtractError(w, "No text recognized in image", http.StatusUnprocessableEntity)
			return
		}
		scanRequestsTotal.WithLabelValues("extract", "error").Inc()
		s.writeExtractError(w, "Recognition failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	label := extract.Extract(reading)

	scanRequestsTotal.WithLabelValues("extract", "success").Inc()
	scanDuration.WithLabelValues("extract").Observe(time.Since(start).Seconds())

	w.Header().Set("Content-Type", "application/json")
	response := ExtractResponse{
		Success: true,
		Label:   &label,
		Text:    reading.Text,
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("Failed to encode extract response", "error", err)
	}
}

// readImageUpload parses the multipart form and returns the uploaded
// image bytes. On failure it writes the error response and returns false.
func (s *Server) readImageUpload(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	maxBytes := s.maxUploadMB * 1024 * 1024
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	if err := r.ParseMultipartForm(maxBytes); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "too large") {
			s.writeVerifyError(w, "File too large", http.StatusRequestEntityTooLarge)
		} else {
			s.writeVerifyError(w, "Failed to parse form data", http.StatusBadRequest)
		}
		return nil, false
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		s.writeVerifyError(w, "No image file provided", http.StatusBadRequest)
		return nil, false
	}
	defer func() { _ = file.Close() }()

	if header.Size > maxBytes {
		s.writeVerifyError(w, "File too large", http.StatusRequestEntityTooLarge)
		return nil, false
	}
	uploadSizeBytes.Observe(float64(header.Size))

	imageData, err := io.ReadAll(file)
	if err != nil {
		s.writeVerifyError(w, "Failed to read image data", http.StatusInternalServerError)
		return nil, false
	}
	return imageData, true
}

// recognize runs the recognizer with the configured timeout.
func (s *Server) recognize(ctx context.Context, image []byte) (recognize.Reading, error) {
	rctx, cancel := context.WithTimeout(ctx, s.recognizeTimeout())
	defer cancel()
	return s.recognizer.Recognize(rctx, image)
}

func (s *Server) writeVerifyError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(VerifyResponse{Success: false, Error: message}); err != nil {
		slog.Error("Failed to encode error response", "error", err)
	}
}

func (s *Server) writeExtractError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(ExtractResponse{Success: false, Error: message}); err != nil {
		slog.Error("Failed to encode error response", "error", err)
	}
}
