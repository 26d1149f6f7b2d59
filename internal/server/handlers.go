package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/aggrelay/aggrelay/internal/codec/claude"
	"github.com/aggrelay/aggrelay/internal/codec/gemini"
	"github.com/aggrelay/aggrelay/internal/credential"
	"github.com/aggrelay/aggrelay/internal/domain"
	"github.com/aggrelay/aggrelay/internal/gateway"
	"github.com/aggrelay/aggrelay/internal/storage"
)

// maxBodyBytes bounds inbound request bodies.
const maxBodyBytes = 10 << 20

// Handlers holds the frontdoor and admin HTTP handlers.
type Handlers struct {
	gateway   *gateway.Gateway
	catalogue gateway.CatalogueSource
	creds     *credential.Store
	ledger    storage.InteractionStore
	gemini    *gemini.Codec
	claude    *claude.Codec
	logger    *slog.Logger
}

// NewHandlers creates the handler set. ledger may be nil when storage is
// disabled.
func NewHandlers(gw *gateway.Gateway, cat gateway.CatalogueSource, creds *credential.Store,
	ledger storage.InteractionStore, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		gateway:   gw,
		catalogue: cat,
		creds:     creds,
		ledger:    ledger,
		gemini:    gemini.New(),
		claude:    claude.New(),
		logger:    logger,
	}
}

// Routes registers all endpoints on the router.
func (h *Handlers) Routes(r chi.Router) {
	r.Post("/v1/chat/completions", h.ChatCompletions)
	r.Post("/v1beta/models/{model}", h.GenerateContent)
	r.Post("/v1/messages", h.Messages)

	r.Get("/v1/models", h.ListModels)
	r.Get("/healthz", h.Health)

	r.Route("/admin", func(r chi.Router) {
		r.Get("/credentials", h.Credentials)
		r.Post("/credentials/reenable", h.ReenableCredentials)
		r.Get("/usage", h.Usage)
	})
}

// ChatCompletions serves the canonical chat-completions frontdoor.
func (h *Handlers) ChatCompletions(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, "openai", err)
		return
	}

	var req domain.CanonicalRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, "openai", domain.ErrSchemaValidation("body"))
		return
	}
	if req.Model == "" {
		writeError(w, "openai", domain.ErrSchemaValidation("model"))
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, "openai", domain.ErrSchemaValidation("messages"))
		return
	}
	if err := rejectStreaming(req.Stream); err != nil {
		writeError(w, "openai", err)
		return
	}

	AddLogField(r.Context(), "model", req.Model)
	resp, err := h.gateway.Complete(r.Context(), "openai", &req)
	if err != nil {
		AddLogField(r.Context(), "error", err.Error())
		writeError(w, "openai", err)
		return
	}

	finalizeResponse(resp)
	writeJSON(w, http.StatusOK, resp)
}

// GenerateContent serves the Google-shaped frontdoor. The model arrives in
// the URL path as "{name}:generateContent".
func (h *Handlers) GenerateContent(w http.ResponseWriter, r *http.Request) {
	pathModel, _, _ := strings.Cut(chi.URLParam(r, "model"), ":")

	body, err := readBody(w, r)
	if err != nil {
		writeError(w, "gemini", err)
		return
	}

	req, err := h.gemini.DecodeRequest(body)
	if err != nil {
		writeError(w, "gemini", err)
		return
	}
	if pathModel != "" {
		req.Model = pathModel
	}
	if req.Model == "" {
		writeError(w, "gemini", domain.ErrSchemaValidation("model"))
		return
	}
	if err := rejectStreaming(req.Stream); err != nil {
		writeError(w, "gemini", err)
		return
	}

	AddLogField(r.Context(), "model", req.Model)
	resp, err := h.gateway.Complete(r.Context(), "gemini", req)
	if err != nil {
		AddLogField(r.Context(), "error", err.Error())
		writeError(w, "gemini", err)
		return
	}

	finalizeResponse(resp)
	encoded, err := h.gemini.EncodeResponse(resp)
	if err != nil {
		writeError(w, "gemini", err)
		return
	}
	writeRaw(w, http.StatusOK, encoded)
}

// Messages serves the Anthropic-shaped frontdoor.
func (h *Handlers) Messages(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, "claude", err)
		return
	}

	req, err := h.claude.DecodeRequest(body)
	if err != nil {
		writeError(w, "claude", err)
		return
	}
	if err := rejectStreaming(req.Stream); err != nil {
		writeError(w, "claude", err)
		return
	}

	AddLogField(r.Context(), "model", req.Model)
	resp, err := h.gateway.Complete(r.Context(), "claude", req)
	if err != nil {
		AddLogField(r.Context(), "error", err.Error())
		writeError(w, "claude", err)
		return
	}

	finalizeResponse(resp)
	encoded, err := h.claude.EncodeResponse(resp)
	if err != nil {
		writeError(w, "claude", err)
		return
	}
	writeRaw(w, http.StatusOK, encoded)
}

// modelListEntry is one row of the /v1/models listing.
type modelListEntry struct {
	ID            string `json:"id"`
	Object        string `json:"object"`
	OwnedBy       string `json:"owned_by"`
	ContextLength int    `json:"context_length,omitempty"`
}

// ListModels lists the current catalogue in the chat-completions listing
// shape, grouped order by family.
func (h *Handlers) ListModels(w http.ResponseWriter, r *http.Request) {
	cat := h.catalogue.Get(r.Context())

	data := make([]modelListEntry, 0, cat.Len())
	for _, m := range cat.Models() {
		data = append(data, modelListEntry{
			ID:            m.ID,
			Object:        "model",
			OwnedBy:       m.Family,
			ContextLength: m.ContextWindow,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"object": "list",
		"data":   data,
	})
}

// Health reports liveness.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Credentials reports the credential pool. Secrets never serialize.
func (h *Handlers) Credentials(w http.ResponseWriter, r *http.Request) {
	creds := h.creds.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"count":       len(creds),
		"credentials": creds,
	})
}

// ReenableCredentials puts all non-revoked credentials back in rotation.
func (h *Handlers) ReenableCredentials(w http.ResponseWriter, r *http.Request) {
	count := h.creds.ReenableAllNonRevoked()
	h.logger.Info("credentials reenabled", "count", count)
	writeJSON(w, http.StatusOK, map[string]int{"reenabled": count})
}

// Usage reports per-family usage totals from the ledger.
func (h *Handlers) Usage(w http.ResponseWriter, r *http.Request) {
	if h.ledger == nil {
		writeJSON(w, http.StatusOK, map[string]any{"usage": []storage.UsageTotal{}})
		return
	}
	totals, err := h.ledger.UsageByFamily(r.Context())
	if err != nil {
		writeError(w, "openai", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"usage": totals})
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, domain.NewAPIError(domain.ErrorTypeInvalidRequest, "failed to read request body")
	}
	return body, nil
}

func rejectStreaming(stream bool) error {
	if stream {
		return domain.NewAPIError(domain.ErrorTypeInvalidRequest, "streaming responses are not supported")
	}
	return nil
}

// finalizeResponse fills the response envelope fields the upstream may have
// left empty.
func finalizeResponse(resp *domain.CanonicalResponse) {
	if resp.ID == "" {
		resp.ID = "chatcmpl-" + uuid.NewString()
	}
	if resp.Object == "" {
		resp.Object = "chat.completion"
	}
	if resp.Created == 0 {
		resp.Created = time.Now().Unix()
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}
