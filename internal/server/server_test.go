package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/pondvision/internal/certificate"
	"github.com/dharsanguruparan/pondvision/internal/config"
	"github.com/dharsanguruparan/pondvision/internal/model"
	"github.com/dharsanguruparan/pondvision/internal/processing"
	"github.com/dharsanguruparan/pondvision/internal/signing"
	"github.com/dharsanguruparan/pondvision/internal/storage"
	"github.com/dharsanguruparan/pondvision/internal/verdict"
)

// cycle repeats draws forever so every upload gets the same verdict shape.
type cycle struct {
	draws []float64
	n     atomic.Int64
}

func (c *cycle) Float64() float64 {
	i := c.n.Add(1) - 1
	return c.draws[int(i)%len(c.draws)]
}

type harness struct {
	srv   *Server
	http  *httptest.Server
	store *storage.MemoryStore
	slot  *storage.VerdictSlot
}

func newHarness(t *testing.T, draws ...float64) *harness {
	t.Helper()
	cfg := &config.Config{
		Address:       ":0",
		MaxFileSize:   1 << 20,
		SigningSecret: []byte("test-secret"),
		SignedURLTTL:  time.Minute,
	}
	store := storage.NewMemoryStore()
	slot := storage.NewVerdictSlot()
	if len(draws) == 0 {
		// Young, alive, no keyword override.
		draws = []float64{0.5, 0.2, 0.9, 0.3}
	}
	gen := verdict.NewGenerator(&cycle{draws: draws})
	proc := processing.New(store, slot, gen, processing.Options{QueueSize: 4})
	srv, err := New(cfg, store, slot, proc, signing.NewSigner(cfg.SigningSecret), certificate.NewRenderer())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = proc.Run(ctx)
	}()
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		cancel()
		<-done
	})
	return &harness{srv: srv, http: ts, store: store, slot: slot}
}

func pngPayload(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))))
	return buf.Bytes()
}

func (h *harness) upload(t *testing.T, filename, contentType string, payload []byte) *http.Response {
	t.Helper()
	return h.uploadForm(t, nil, filename, contentType, payload)
}

// uploadForm writes the extra fields ahead of the file part.
func (h *harness) uploadForm(t *testing.T, fields map[string]string, filename, contentType string, payload []byte) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for name, value := range fields {
		require.NoError(t, mw.WriteField(name, value))
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(payload)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(h.http.URL+"/upload", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	return resp
}

// paddedPNG returns a valid PNG header followed by zero bytes up to size.
func paddedPNG(t *testing.T, size int) []byte {
	t.Helper()
	payload := pngPayload(t)
	require.LessOrEqual(t, len(payload), size)
	return append(payload, make([]byte, size-len(payload))...)
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (h *harness) analyze(t *testing.T, filename string) model.UploadRecord {
	t.Helper()
	resp := h.upload(t, filename, "image/png", pngPayload(t))
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	accepted := decode[map[string]string](t, resp)
	id := accepted["id"]
	require.NotEmpty(t, id)

	var rec model.UploadRecord
	require.Eventually(t, func() bool {
		resp, err := http.Get(h.http.URL + "/uploads/" + id)
		if err != nil || resp.StatusCode != http.StatusOK {
			return false
		}
		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
			return false
		}
		return rec.Status == model.StatusComplete
	}, 3*time.Second, 10*time.Millisecond)
	return rec
}

func (h *harness) certificateURL(t *testing.T) string {
	t.Helper()
	resp, err := http.Get(h.http.URL + "/verdict/certificate-url")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return decode[map[string]string](t, resp)["url"]
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	resp, err := http.Get(h.http.URL + "/healthz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", decode[map[string]string](t, resp)["status"])
}

func TestUploadAnalyzeAndExport(t *testing.T) {
	h := newHarness(t)
	rec := h.analyze(t, "pond.png")
	assert.Equal(t, 100, rec.Progress)
	assert.Equal(t, verdict.MediaImage, rec.Kind)

	resp, err := http.Get(h.http.URL + "/verdict")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[verdictResponse](t, resp)
	assert.Equal(t, rec.VerdictID, body.Verdict.ID)
	assert.Equal(t, verdict.Young, body.Verdict.AgeCategory)
	assert.Equal(t, verdict.StatusHappy, body.Verdict.Status)
	assert.Equal(t, verdict.CauseNone, body.Verdict.Cause)
	assert.False(t, body.DarkMode)
	assert.Empty(t, body.Vibrate)

	link := h.certificateURL(t)
	resp, err = http.Get(h.http.URL + link)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "inline")

	pdfBytes, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	text, err := certificate.ExtractText(pdfBytes)
	require.NoError(t, err)
	assert.Contains(t, text, "Young (2.0 yrs)")
	assert.Contains(t, text, verdict.StatusHappy)
}

func TestDeadVerdictCues(t *testing.T) {
	// About to die, critical condition.
	h := newHarness(t, 0.95, 0.1, 0.1, 0.0)
	h.analyze(t, "pond.png")

	resp, err := http.Get(h.http.URL + "/verdict")
	require.NoError(t, err)
	body := decode[verdictResponse](t, resp)
	assert.True(t, body.Verdict.Dead)
	assert.True(t, body.DarkMode)
	assert.Equal(t, []int{300, 100, 200}, body.Vibrate)
}

func TestUnsupportedTypeKeepsCurrentVerdict(t *testing.T) {
	h := newHarness(t)
	rec := h.analyze(t, "pond.png")

	resp := h.upload(t, "notes.txt", "text/plain", []byte("hello fish"))
	resp.Body.Close()
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)

	current, ok := h.slot.Current()
	require.True(t, ok)
	assert.Equal(t, rec.VerdictID, current.ID)
}

func TestUploadRejectsEmptyAndMalformed(t *testing.T) {
	h := newHarness(t)
	resp := h.upload(t, "empty.png", "image/png", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err := http.Post(h.http.URL+"/upload", "application/json", bytes.NewBufferString("{}"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(h.http.URL + "/upload")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestUploadSizeLimit(t *testing.T) {
	h := newHarness(t)
	limit := int(h.srv.cfg.MaxFileSize)
	note := map[string]string{"note": strings.Repeat("n", 2048)}

	resp := h.uploadForm(t, note, "pond.png", "image/png", paddedPNG(t, limit))
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode, "file at the limit with extra fields")

	resp = h.uploadForm(t, note, "pond.png", "image/png", paddedPNG(t, limit+1))
	resp.Body.Close()
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode, "one byte over the limit")
}

func TestNoVerdictYet(t *testing.T) {
	h := newHarness(t)
	for _, path := range []string{"/verdict", "/verdict/certificate-url"} {
		resp, err := http.Get(h.http.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
	}
	resp, err := http.Get(h.http.URL + "/uploads/unknown")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCertificateLinkSupersededByNewUpload(t *testing.T) {
	h := newHarness(t)
	h.analyze(t, "first.png")
	link := h.certificateURL(t)
	h.analyze(t, "second.png")

	resp, err := http.Get(h.http.URL + link)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusGone, resp.StatusCode)
}

func TestCertificateLinkValidation(t *testing.T) {
	h := newHarness(t)
	h.analyze(t, "pond.png")
	link, err := url.Parse(h.certificateURL(t))
	require.NoError(t, err)
	q := link.Query()

	tampered := url.Values{}
	tampered.Set("verdict", q.Get("verdict"))
	tampered.Set("expires", q.Get("expires"))
	tampered.Set("signature", q.Get("signature")+"ab")

	expired := url.Values{}
	past := time.Now().Add(-time.Minute).Unix()
	expired.Set("verdict", q.Get("verdict"))
	expired.Set("expires", strconv.FormatInt(past, 10))
	expired.Set("signature", signing.NewSigner([]byte("test-secret")).Sign(q.Get("verdict"), past))

	tests := []struct {
		name   string
		query  string
		status int
	}{
		{"missing", "", http.StatusBadRequest},
		{"bad expires", "verdict=x&expires=soon&signature=y", http.StatusBadRequest},
		{"tampered", tampered.Encode(), http.StatusUnauthorized},
		{"expired", expired.Encode(), http.StatusUnauthorized},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := http.Get(h.http.URL + "/certificate?" + tc.query)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, tc.status, resp.StatusCode)
		})
	}
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(nil, nil, nil, nil, nil, nil)
	assert.Error(t, err)
}
