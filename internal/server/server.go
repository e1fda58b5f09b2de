// Package server exposes the fish analysis over HTTP: uploads go in, progress
// and verdicts come out, and certificates are served from signed links.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/dharsanguruparan/pondvision/internal/certificate"
	"github.com/dharsanguruparan/pondvision/internal/config"
	"github.com/dharsanguruparan/pondvision/internal/intake"
	"github.com/dharsanguruparan/pondvision/internal/model"
	"github.com/dharsanguruparan/pondvision/internal/processing"
	"github.com/dharsanguruparan/pondvision/internal/signing"
	"github.com/dharsanguruparan/pondvision/internal/storage"
	"github.com/dharsanguruparan/pondvision/internal/verdict"
)

// multipartAllowance is the room left in a request body for form fields and
// boundaries beyond the file itself.
const multipartAllowance = 1 << 20

// deadVibration is the pattern a client should play when the fish is dead.
var deadVibration = []int{300, 100, 200}

// Server hosts the HTTP handlers. Fields are explicit dependencies; nothing
// is looked up from global state.
type Server struct {
	cfg       *config.Config
	store     *storage.MemoryStore
	slot      *storage.VerdictSlot
	processor *processing.Processor
	signer    *signing.Signer
	renderer  *certificate.Renderer
	intake    *intake.Intake
	now       func() time.Time
}

// New creates a configured server.
func New(cfg *config.Config, store *storage.MemoryStore, slot *storage.VerdictSlot, processor *processing.Processor, signer *signing.Signer, renderer *certificate.Renderer) (*Server, error) {
	if cfg == nil || store == nil || slot == nil || processor == nil || signer == nil || renderer == nil {
		return nil, errors.New("server: missing dependency")
	}
	return &Server{
		cfg:       cfg,
		store:     store,
		slot:      slot,
		processor: processor,
		signer:    signer,
		renderer:  renderer,
		intake:    intake.New(cfg.MaxFileSize),
		now:       time.Now,
	}, nil
}

// Serve runs the analysis worker and the HTTP server until ctx is cancelled
// or either of them fails.
func (s *Server) Serve(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.cfg.Address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.processor.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		logrus.WithField("addr", s.cfg.Address).Info("pondvision listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	return g.Wait()
}

// Handler returns the routed, logged handler tree.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/upload", s.handleUpload)
	mux.HandleFunc("/uploads/", s.handleUploadInfo)
	mux.HandleFunc("/verdict", s.handleVerdict)
	mux.HandleFunc("/verdict/certificate-url", s.handleCertificateURL)
	mux.HandleFunc("/certificate", s.handleCertificate)
	return loggingMiddleware(mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	// The per-file limit is enforced on the part below; the body cap only
	// bounds the extra form fields and multipart framing around it.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxFileSize+multipartAllowance)
	mr, err := r.MultipartReader()
	if err != nil {
		http.Error(w, "expecting multipart form", http.StatusBadRequest)
		return
	}
	part, err := nextFilePart(mr)
	if err != nil {
		http.Error(w, "missing file part", http.StatusBadRequest)
		return
	}
	defer part.Close()
	// Read one byte past the limit so oversized files are detected without
	// buffering them entirely.
	payload, err := io.ReadAll(io.LimitReader(part, s.cfg.MaxFileSize+1))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			http.Error(w, intake.ErrTooLarge.Error(), http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "failed to read upload", http.StatusBadRequest)
		return
	}

	record := &model.UploadRecord{
		ID:          uuid.NewString(),
		Name:        part.FileName(),
		Size:        int64(len(payload)),
		ContentType: part.Header.Get("Content-Type"),
		Status:      model.StatusUploaded,
	}
	media, err := s.intake.Accept(part.FileName(), part.Header.Get("Content-Type"), payload)
	if err != nil {
		record.Status = model.StatusRejected
		record.Message = err.Error()
		s.store.Save(record)
		logrus.WithError(err).WithField("file", record.Name).Info("upload rejected")
		http.Error(w, err.Error(), statusForIntakeError(err))
		return
	}
	record.ContentType = media.ContentType
	record.Kind = media.Kind
	s.store.Save(record)

	if err := s.processor.Submit(processing.Job{UploadID: record.ID, Media: media}); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{
		"id":     record.ID,
		"status": string(model.StatusUploaded),
	})
}

func statusForIntakeError(err error) int {
	switch {
	case errors.Is(err, intake.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, intake.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusBadRequest
	}
}

func (s *Server) handleUploadInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/uploads/"), "/")
	if id == "" {
		http.NotFound(w, r)
		return
	}
	record, err := s.store.Get(id)
	if err != nil {
		http.Error(w, "upload not found", http.StatusNotFound)
		return
	}
	respondJSON(w, http.StatusOK, record)
}

type verdictResponse struct {
	Verdict  verdict.Verdict `json:"verdict"`
	DarkMode bool            `json:"darkMode"`
	Vibrate  []int           `json:"vibrate,omitempty"`
}

func (s *Server) handleVerdict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	v, ok := s.slot.Current()
	if !ok {
		http.Error(w, "no verdict yet", http.StatusNotFound)
		return
	}
	resp := verdictResponse{Verdict: v, DarkMode: v.Dead}
	if v.Dead {
		resp.Vibrate = deadVibration
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCertificateURL(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	v, ok := s.slot.Current()
	if !ok {
		http.Error(w, "no verdict to export", http.StatusNotFound)
		return
	}
	expiry := s.now().Add(s.cfg.SignedURLTTL).Unix()
	expires := strconv.FormatInt(expiry, 10)
	params := url.Values{}
	params.Set("verdict", v.ID)
	params.Set("expires", expires)
	params.Set("signature", s.signer.Sign(v.ID, expiry))
	respondJSON(w, http.StatusOK, map[string]string{
		"url":     "/certificate?" + params.Encode(),
		"expires": expires,
	})
}

func (s *Server) handleCertificate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	id, expires, signature := q.Get("verdict"), q.Get("expires"), q.Get("signature")
	if id == "" || expires == "" || signature == "" {
		http.Error(w, "missing parameters", http.StatusBadRequest)
		return
	}
	expiryUnix, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		http.Error(w, "invalid expires", http.StatusBadRequest)
		return
	}
	if time.Unix(expiryUnix, 0).Before(s.now()) {
		http.Error(w, "url expired", http.StatusUnauthorized)
		return
	}
	if !s.signer.Validate(id, expires, signature) {
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}
	// Export works on a snapshot; a newer upload invalidates older links.
	v, ok := s.slot.Current()
	if !ok {
		http.Error(w, "no verdict to export", http.StatusNotFound)
		return
	}
	if v.ID != id {
		http.Error(w, "verdict superseded by a newer upload", http.StatusGone)
		return
	}
	var buf bytes.Buffer
	if err := s.renderer.RenderTo(&buf, v, v.Media.Image); err != nil {
		logrus.WithError(err).WithField("verdict", v.ID).Error("certificate render failed")
		http.Error(w, "failed to render certificate", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", certificateName(v)))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		logrus.WithError(err).Debug("write certificate")
	}
}

func certificateName(v verdict.Verdict) string {
	id := v.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return "fish-health-" + id + ".pdf"
}

func nextFilePart(mr *multipart.Reader) (*multipart.Part, error) {
	for {
		part, err := mr.NextPart()
		if err != nil {
			return nil, err
		}
		if part.FormName() == "file" {
			return part, nil
		}
		part.Close()
	}
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	// Headers must be set before WriteHeader.
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(payload); err != nil {
		logrus.WithError(err).Warn("encode json failed")
	}
}
