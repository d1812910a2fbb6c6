package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/medscan/internal/capture"
	"github.com/MeKo-Tech/medscan/internal/match"
	"github.com/MeKo-Tech/medscan/internal/recognize"
	"github.com/MeKo-Tech/medscan/internal/record"
)

const (
	goodLabel  = "Patient: John Doe\nLISINOPRIL 10MG\nTake at 9:00 AM"
	wrongLabel = "Patient: Jane Smith\nIBUPROFEN 200MG\nTake at 3:00 PM"
)

// echoRecognizer treats the uploaded bytes as the recognized text, so
// tests can drive the pipeline without a real OCR engine.
var echoRecognizer = recognize.Func(func(_ context.Context, image []byte) (recognize.Reading, error) {
	if len(image) == 0 {
		return recognize.Reading{}, recognize.ErrNoText
	}
	return recognize.Reading{Text: string(image), Confidence: 0.9}, nil
})

type memEmitter struct {
	mu      sync.Mutex
	records []record.Record
}

func (e *memEmitter) Emit(_ context.Context, rec record.Record) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.records = append(e.records, rec)
}

func (e *memEmitter) all() []record.Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]record.Record(nil), e.records...)
}

func newTestServer(t *testing.T, rec recognize.Recognizer, emitter record.Emitter) *httptest.Server {
	t.Helper()
	cfg := Config{
		CORSOrigin:  "*",
		MaxUploadMB: 5,
		TimeoutSec:  5,
		Capture:     capture.DefaultConfig(),
	}
	s := NewServer(cfg, rec, emitter)
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

// multipartBody builds a multipart form with the given text as the image
// file plus extra form fields.
func multipartBody(t *testing.T, imageText string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if imageText != "" {
		fw, err := mw.CreateFormFile("image", "label.png")
		require.NoError(t, err)
		_, err = fw.Write([]byte(imageText))
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestHealthHandler(t *testing.T) {
	ts := newTestServer(t, echoRecognizer, nil)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var health HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "healthy", health.Status)
	assert.NotEmpty(t, health.Time)
}

func TestVerifyHandler_ValidLabel(t *testing.T) {
	ts := newTestServer(t, echoRecognizer, nil)

	body, contentType := multipartBody(t, goodLabel, map[string]string{
		"medication_name": "Lisinopril",
		"dosage":          "10mg",
		"patient_name":    "Doe, John",
		"scheduled_time":  "9:00 AM",
	})
	resp, err := http.Post(ts.URL+"/verify", contentType, body)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var vr VerifyResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&vr))
	assert.True(t, vr.Success)
	require.NotNil(t, vr.Verdict)
	assert.True(t, vr.Verdict.IsValid)
	assert.Equal(t, 2, vr.Verdict.PassedChecks)
	require.NotNil(t, vr.Label)
	assert.Equal(t, "john doe", vr.Label.PatientName)
	assert.Equal(t, goodLabel, vr.Text)
}

func TestVerifyHandler_WrongLabel(t *testing.T) {
	ts := newTestServer(t, echoRecognizer, nil)

	body, contentType := multipartBody(t, wrongLabel, map[string]string{
		"patient_name":   "Doe, John",
		"scheduled_time": "9:00 AM",
	})
	resp, err := http.Post(ts.URL+"/verify", contentType, body)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var vr VerifyResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&vr))
	require.NotNil(t, vr.Verdict)
	assert.False(t, vr.Verdict.IsValid)
	assert.False(t, vr.Verdict.Matches[match.KindPatient])
}

func TestVerifyHandler_MissingRequiredFields(t *testing.T) {
	ts := newTestServer(t, echoRecognizer, nil)

	body, contentType := multipartBody(t, goodLabel, map[string]string{
		"medication_name": "Lisinopril",
	})
	resp, err := http.Post(ts.URL+"/verify", contentType, body)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestVerifyHandler_NoImage(t *testing.T) {
	ts := newTestServer(t, echoRecognizer, nil)

	body, contentType := multipartBody(t, "", map[string]string{
		"patient_name":   "Doe, John",
		"scheduled_time": "9:00 AM",
	})
	resp, err := http.Post(ts.URL+"/verify", contentType, body)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestVerifyHandler_NoText(t *testing.T) {
	noText := recognize.Func(func(context.Context, []byte) (recognize.Reading, error) {
		return recognize.Reading{}, recognize.ErrNoText
	})
	ts := newTestServer(t, noText, nil)

	body, contentType := multipartBody(t, "blurry", map[string]string{
		"patient_name":   "Doe, John",
		"scheduled_time": "9:00 AM",
	})
	resp, err := http.Post(ts.URL+"/verify", contentType, body)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestVerifyHandler_MethodNotAllowed(t *testing.T) {
	ts := newTestServer(t, echoRecognizer, nil)

	resp, err := http.Get(ts.URL + "/verify")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestExtractHandler(t *testing.T) {
	ts := newTestServer(t, echoRecognizer, nil)

	body, contentType := multipartBody(t, goodLabel, nil)
	resp, err := http.Post(ts.URL+"/extract", contentType, body)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var er ExtractResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&er))
	assert.True(t, er.Success)
	require.NotNil(t, er.Label)
	assert.Equal(t, "john doe", er.Label.PatientName)
	assert.Equal(t, "lisinopril", er.Label.MedicationName)
	assert.Equal(t, "10mg", er.Label.Dosage)
}
