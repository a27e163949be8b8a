package httpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/ai-voice-interviewer/internal/adapter/speech"
	"github.com/fairyhunter13/ai-voice-interviewer/internal/config"
	"github.com/fairyhunter13/ai-voice-interviewer/internal/domain"
	"github.com/fairyhunter13/ai-voice-interviewer/internal/usecase"
	"github.com/fairyhunter13/ai-voice-interviewer/pkg/textx"
)

// Server aggregates handler dependencies.
type Server struct {
	Cfg          config.Config
	Orchestrator *usecase.Orchestrator
	Transcriber  domain.Transcriber
	Synthesizer  domain.Synthesizer
	DBCheck      func(ctx context.Context) error
}

// NewServer constructs a Server with all handlers wired.
func NewServer(cfg config.Config, o *usecase.Orchestrator, tr domain.Transcriber, syn domain.Synthesizer, dbCheck func(context.Context) error) *Server {
	return &Server{Cfg: cfg, Orchestrator: o, Transcriber: tr, Synthesizer: syn, DBCheck: dbCheck}
}

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

type createSessionRequest struct {
	CVText string `json:"cv_text" validate:"required,min=1"`
	JDText string `json:"jd_text" validate:"required,min=1"`
}

type promptResponse struct {
	Done       bool             `json:"done"`
	Kind       domain.TurnKind  `json:"kind,omitempty"`
	QuestionID *int             `json:"question_id,omitempty"`
	Utterance  string           `json:"utterance,omitempty"`
	AudioB64   string           `json:"audio_b64,omitempty"`
}

type sessionResponse struct {
	ID        string              `json:"id"`
	Phase     domain.Phase        `json:"phase"`
	Prompt    promptResponse      `json:"prompt"`
	PlanSize  int                 `json:"plan_size"`
	MatchGaps *domain.GapAnalysis `json:"gap_analysis,omitempty"`
}

// CreateSessionHandler starts an interview from CV and JD text, accepting
// either a JSON body or a multipart form with cv and jd file parts.
func (s *Server) CreateSessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createSessionRequest
		ct := r.Header.Get("Content-Type")
		switch {
		case strings.Contains(ct, "multipart/form-data"):
			cv, jd, err := s.readDocumentsMultipart(w, r)
			if err != nil {
				writeError(w, r, err, nil)
				return
			}
			req.CVText, req.JDText = cv, jd
		case strings.Contains(ct, "application/json"), ct == "":
			if err := json.NewDecoder(io.LimitReader(r.Body, s.maxBytes())).Decode(&req); err != nil {
				writeError(w, r, fmt.Errorf("%w: invalid json body", domain.ErrInvalidArgument), nil)
				return
			}
			req.CVText = textx.SanitizeText(req.CVText)
			req.JDText = textx.SanitizeText(req.JDText)
		default:
			writeError(w, r, fmt.Errorf("%w: unsupported content-type %q", domain.ErrInvalidArgument, ct), nil)
			return
		}
		if err := getValidator().Struct(req); err != nil {
			writeError(w, r, fmt.Errorf("%w: cv_text and jd_text required", domain.ErrInvalidArgument), nil)
			return
		}

		sess, prompt, err := s.Orchestrator.StartSession(r.Context(), req.CVText, req.JDText)
		if err != nil {
			// The session id still identifies the failed session so the
			// caller can fetch its partial report.
			var details any
			if sess != nil {
				details = map[string]string{"session_id": sess.ID}
			}
			writeError(w, r, err, details)
			return
		}
		writeJSON(w, http.StatusCreated, sessionResponse{
			ID:        sess.ID,
			Phase:     sess.Phase,
			Prompt:    s.renderPrompt(r, prompt),
			PlanSize:  len(sess.Plan),
			MatchGaps: sess.Gaps,
		})
	}
}

type answerRequest struct {
	Transcript string `json:"transcript"`
}

// SubmitAnswerHandler records one answer, as a JSON transcript or as a
// multipart audio part that is transcribed first. Transcription failure
// means the answer was never heard: the pending question is re-issued with
// a re-record request instead of consuming the turn, and the model gateway
// is never involved.
func (s *Server) SubmitAnswerHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		var transcript string
		ct := r.Header.Get("Content-Type")
		switch {
		case strings.Contains(ct, "multipart/form-data"):
			text, err := s.transcribeMultipart(w, r)
			if err != nil && errors.Is(err, domain.ErrInvalidArgument) {
				writeError(w, r, err, nil)
				return
			}
			if err != nil || strings.TrimSpace(text) == "" {
				if err != nil {
					LoggerFrom(r).Warn("transcription failed, requesting re-record", "error", err)
				}
				prompt, rerr := s.Orchestrator.Reprompt(r.Context(), id)
				if rerr != nil {
					writeError(w, r, rerr, nil)
					return
				}
				prompt.Utterance = "Sorry, I could not make that out. Could you answer that again? " + prompt.Utterance
				writeJSON(w, http.StatusOK, s.renderPrompt(r, prompt))
				return
			}
			transcript = text
		default:
			var req answerRequest
			if err := json.NewDecoder(io.LimitReader(r.Body, s.maxBytes())).Decode(&req); err != nil {
				writeError(w, r, fmt.Errorf("%w: invalid json body", domain.ErrInvalidArgument), nil)
				return
			}
			transcript = textx.SanitizeText(req.Transcript)
		}

		prompt, err := s.Orchestrator.SubmitAnswer(r.Context(), id, transcript)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, s.renderPrompt(r, prompt))
	}
}

// StateHandler returns the session's current phase and progress.
func (s *Server) StateHandler() http.HandlerFunc {
	type stateResponse struct {
		ID         string       `json:"id"`
		Phase      domain.Phase `json:"phase"`
		CurrentQ   int          `json:"current_question"`
		PlanSize   int          `json:"plan_size"`
		Turns      int          `json:"turns"`
		FailReason string       `json:"fail_reason,omitempty"`
		CreatedAt  string       `json:"created_at"`
		UpdatedAt  string       `json:"updated_at"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.Orchestrator.State(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, stateResponse{
			ID:         sess.ID,
			Phase:      sess.Phase,
			CurrentQ:   sess.CurrentQ,
			PlanSize:   len(sess.Plan),
			Turns:      len(sess.Turns),
			FailReason: sess.FailReason,
			CreatedAt:  sess.CreatedAt.Format("2006-01-02T15:04:05.000Z07:00"),
			UpdatedAt:  sess.UpdatedAt.Format("2006-01-02T15:04:05.000Z07:00"),
		})
	}
}

// ReportHandler returns the final (or partial, for failed sessions) report.
func (s *Server) ReportHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := s.Orchestrator.Report(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

// CancelHandler aborts a live session.
func (s *Server) CancelHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.Orchestrator.Cancel(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeError(w, r, err, nil)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// HealthzHandler is the liveness probe.
func (s *Server) HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// ReadyzHandler is the readiness probe; it checks the snapshot database
// when one is configured.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.DBCheck != nil {
			if err := s.DBCheck(r.Context()); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "db": err.Error()})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

// renderPrompt attaches synthesized audio when a voice backend is available
// and the caller asked for it; synthesis failure silently degrades to text.
func (s *Server) renderPrompt(r *http.Request, p *usecase.Prompt) promptResponse {
	out := promptResponse{Done: p.Done, Kind: p.Kind, Utterance: p.Utterance}
	if p.Question != nil {
		qid := p.Question.ID
		out.QuestionID = &qid
	}
	if p.Done || p.Utterance == "" || s.Synthesizer == nil {
		return out
	}
	if r.URL.Query().Get("voice") == "" {
		return out
	}
	audio, err := s.Synthesizer.Synthesize(r.Context(), p.Utterance, r.URL.Query().Get("voice"))
	if err != nil {
		if !errors.Is(err, speech.ErrSynthesisUnavailable) {
			LoggerFrom(r).Warn("synthesis failed", "error", err)
		}
		return out
	}
	out.AudioB64 = base64.StdEncoding.EncodeToString(audio)
	return out
}

func (s *Server) maxBytes() int64 { return s.Cfg.MaxUploadMB * 1024 * 1024 }

// readDocumentsMultipart pulls cv and jd text parts out of a multipart form.
// Only text-like uploads are accepted; content sniffing decides, not the
// declared header.
func (s *Server) readDocumentsMultipart(w http.ResponseWriter, r *http.Request) (string, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBytes())
	if err := r.ParseMultipartForm(s.maxBytes()); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "too large") {
			return "", "", fmt.Errorf("%w: request body too large", domain.ErrInvalidArgument)
		}
		return "", "", fmt.Errorf("%w: malformed multipart body", domain.ErrInvalidArgument)
	}
	cv, err := s.readTextPart(r, "cv")
	if err != nil {
		return "", "", err
	}
	jd, err := s.readTextPart(r, "jd")
	if err != nil {
		return "", "", err
	}
	return cv, jd, nil
}

func (s *Server) readTextPart(r *http.Request, field string) (string, error) {
	f, _, err := r.FormFile(field)
	if err != nil {
		// Fall back to a plain form value before giving up.
		if v := r.FormValue(field); v != "" {
			return textx.SanitizeText(v), nil
		}
		return "", fmt.Errorf("%w: missing %s part", domain.ErrInvalidArgument, field)
	}
	defer func() { _ = f.Close() }()
	data, err := io.ReadAll(io.LimitReader(f, s.maxBytes()))
	if err != nil {
		return "", fmt.Errorf("%w: reading %s part", domain.ErrInvalidArgument, field)
	}
	if mt := mimetype.Detect(data); !strings.HasPrefix(mt.String(), "text/") {
		return "", fmt.Errorf("%w: %s must be plain text, got %s", domain.ErrInvalidArgument, field, mt.String())
	}
	return textx.SanitizeText(string(data)), nil
}

func (s *Server) transcribeMultipart(w http.ResponseWriter, r *http.Request) (string, error) {
	if s.Transcriber == nil {
		return "", fmt.Errorf("%w: audio answers not supported, submit a transcript", domain.ErrInvalidArgument)
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBytes())
	if err := r.ParseMultipartForm(s.maxBytes()); err != nil {
		return "", fmt.Errorf("%w: malformed multipart body", domain.ErrInvalidArgument)
	}
	f, hdr, err := r.FormFile("audio")
	if err != nil {
		return "", fmt.Errorf("%w: missing audio part", domain.ErrInvalidArgument)
	}
	defer func() { _ = f.Close() }()
	data, err := io.ReadAll(io.LimitReader(f, s.maxBytes()))
	if err != nil {
		return "", fmt.Errorf("%w: reading audio part", domain.ErrInvalidArgument)
	}
	if mt := mimetype.Detect(data); !strings.HasPrefix(mt.String(), "audio/") && !strings.HasPrefix(mt.String(), "video/") {
		return "", fmt.Errorf("%w: audio part is %s", domain.ErrInvalidArgument, mt.String())
	}
	text, err := s.Transcriber.Transcribe(r.Context(), data, sanitizeFilename(hdr))
	if err != nil {
		return "", err
	}
	return text, nil
}

func sanitizeFilename(hdr *multipart.FileHeader) string {
	name := hdr.Filename
	if name == "" {
		return "answer.webm"
	}
	name = strings.ReplaceAll(name, "/", "_")
	return strings.ReplaceAll(name, "\\", "_")
}
