package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	router "github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragvoice/internal/domain"
	chatuc "github.com/kailas-cloud/ragvoice/internal/usecase/chat"
	healthuc "github.com/kailas-cloud/ragvoice/internal/usecase/health"
	ingestuc "github.com/kailas-cloud/ragvoice/internal/usecase/ingest"
	speechuc "github.com/kailas-cloud/ragvoice/internal/usecase/speech"
)

const (
	maxChatBodyBytes = 1 << 20
	audioCopyBuffer  = 32 << 10
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Limits bounds request bodies.
type Limits struct {
	MaxAudioBytes  int64
	MaxUploadBytes int64
}

// Server serves the chat, voice and document endpoints.
type Server struct {
	chat          *chatuc.Service
	speech        *speechuc.Service
	ingest        *ingestuc.Service
	health        *healthuc.Service
	limits        Limits
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	chat *chatuc.Service,
	speech *speechuc.Service,
	ingest *ingestuc.Service,
	health *healthuc.Service,
	limits Limits,
	logger *zap.Logger,
) *Server {
	if limits.MaxAudioBytes <= 0 {
		limits.MaxAudioBytes = 25 << 20
	}
	if limits.MaxUploadBytes <= 0 {
		limits.MaxUploadBytes = 50 << 20
	}
	s := &Server{
		chat:   chat,
		speech: speech,
		ingest: ingest,
		health: health,
		limits: limits,
		logger: logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrInvalidInput, http.StatusBadRequest, codeBadRequest),
		sentinelHandler(domain.ErrTranscription, http.StatusUnprocessableEntity, codeTranscriptionFailed),
		sentinelHandler(domain.ErrSynthesis, http.StatusUnprocessableEntity, codeSynthesisFailed),
		sentinelHandler(domain.ErrUnsupportedFormat, http.StatusUnsupportedMediaType, codeUnsupportedFormat),
		sentinelHandler(domain.ErrGeneration, http.StatusBadGateway, codeGenerationFailed),
		sentinelHandler(domain.ErrUpstreamAPI, http.StatusBadGateway, codeUpstreamError),
		sentinelHandler(domain.ErrConfiguration, http.StatusServiceUnavailable, codeInternalError),
	}
	return s
}

// Routes mounts the API on r.
func (s *Server) Routes(r router.Router) {
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
	r.Route("/api", func(r router.Router) {
		r.Post("/chat", s.Chat)
		r.Post("/stream_audio", s.StreamAudio)
		r.Post("/transcribe", s.Transcribe)
		r.Post("/documents", s.UploadDocument)
		r.Get("/documents", s.ListDocuments)
	})
}

// Chat handles POST /api/chat. The answer is streamed as plain text unless
// the request sets "stream": false.
func (s *Server) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	question := req.question()
	if strings.TrimSpace(question) == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "question is required")
		return
	}
	history := turnsFromRequest(req.History)
	ctx, usage := domain.NewContextWithUsage(r.Context())

	if req.Stream != nil && !*req.Stream {
		ans, err := s.chat.Ask(ctx, question, history)
		if err != nil {
			s.handleDomainError(w, err)
			return
		}
		setEmbeddingHeaders(w, usage)
		writeJSON(w, http.StatusOK, answerResponse{Answer: ans.Text, Sources: sourcesToResponse(ans.Sources)})
		return
	}

	stream, err := s.chat.Answer(ctx, question, history)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	defer stream.Close()

	setEmbeddingHeaders(w, usage)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	rc := http.NewResponseController(w)

	for {
		frag, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			s.abortStream(r, "chat", err)
		}
		if _, err := io.WriteString(w, frag); err != nil {
			return
		}
		_ = rc.Flush()
	}
}

// StreamAudio handles POST /api/stream_audio.
func (s *Server) StreamAudio(w http.ResponseWriter, r *http.Request) {
	var req speechRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	audio, err := s.speech.Synthesize(r.Context(), req.Text)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	defer audio.Close()

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	rc := http.NewResponseController(w)

	buf := make([]byte, audioCopyBuffer)
	for {
		n, err := audio.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return
			}
			_ = rc.Flush()
		}
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			s.abortStream(r, "audio", err)
		}
	}
}

// Transcribe handles POST /api/transcribe. Accepts a raw audio body or a
// multipart form with a "file" field.
func (s *Server) Transcribe(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.limits.MaxAudioBytes)

	audio, filename, err := readAudio(r, s.limits.MaxAudioBytes)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, codeBadRequest,
				fmt.Sprintf("audio exceeds %d bytes", s.limits.MaxAudioBytes))
			return
		}
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid audio upload: "+err.Error())
		return
	}

	tr, err := s.speech.Transcribe(r.Context(), audio, filename)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, transcriptionResponse{Text: tr.Text, Language: tr.Language})
}

// UploadDocument handles POST /api/documents.
func (s *Server) UploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.limits.MaxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, codeBadRequest,
				fmt.Sprintf("document exceeds %d bytes", s.limits.MaxUploadBytes))
			return
		}
		writeError(w, http.StatusBadRequest, codeBadRequest, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	ctx, usage := domain.NewContextWithUsage(r.Context())
	res, err := s.ingest.IngestUpload(ctx, header.Filename, file)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	setEmbeddingHeaders(w, usage)

	status := http.StatusCreated
	if res.Outcome == ingestuc.Unchanged {
		status = http.StatusOK
	}
	writeJSON(w, status, uploadResponse{
		Document:      documentToResponse(res.Document),
		Outcome:       string(res.Outcome),
		SkippedChunks: res.Skipped,
	})
}

// ListDocuments handles GET /api/documents.
func (s *Server) ListDocuments(w http.ResponseWriter, r *http.Request) {
	docs := s.ingest.List(r.Context())
	items := make([]documentResponse, len(docs))
	for i, d := range docs {
		items[i] = documentToResponse(d)
	}
	writeJSON(w, http.StatusOK, documentListResponse{Items: items, Total: len(items)})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, healthResponse{
		Status:    string(report.Status),
		Checks:    checks,
		Documents: report.Index.Documents,
		Chunks:    report.Index.Chunks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// abortStream ends a response whose headers are already sent. The connection
// is dropped so the client sees a truncated body instead of a clean end.
func (s *Server) abortStream(r *http.Request, kind string, err error) {
	if r.Context().Err() != nil {
		s.logger.Info("Client went away during stream", zap.String("stream", kind))
	} else {
		s.logger.Error("Stream failed after response started", zap.String("stream", kind), zap.Error(err))
	}
	panic(http.ErrAbortHandler)
}

// readAudio extracts the clip from a multipart "file" field or the raw body.
func readAudio(r *http.Request, maxBytes int64) ([]byte, string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxBytes); err != nil {
			return nil, "", fmt.Errorf("parse form: %w", err)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			return nil, "", fmt.Errorf("form file: %w", err)
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			return nil, "", fmt.Errorf("read form file: %w", err)
		}
		return data, header.Filename, nil
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read body: %w", err)
	}
	return data, audioFilename(mediaType), nil
}

// audioFilename picks a name whose extension tells the transcriber the container.
func audioFilename(mediaType string) string {
	switch mediaType {
	case "audio/wav", "audio/x-wav", "audio/wave":
		return "audio.wav"
	case "audio/mpeg", "audio/mp3":
		return "audio.mp3"
	case "audio/mp4", "audio/m4a", "audio/x-m4a":
		return "audio.m4a"
	case "audio/ogg":
		return "audio.ogg"
	default:
		return "audio.webm"
	}
}

func setEmbeddingHeaders(w http.ResponseWriter, usage *domain.EmbeddingUsage) {
	if usage != nil && usage.Used {
		w.Header().Set("X-Embedding-Tokens", strconv.Itoa(usage.TotalTokens))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code errorCode, message string) {
	writeJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrInvalidInput,
		domain.ErrTranscription,
		domain.ErrSynthesis,
		domain.ErrUnsupportedFormat,
		domain.ErrGeneration,
		domain.ErrUpstreamAPI,
		domain.ErrConfiguration,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code errorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
