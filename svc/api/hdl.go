package api

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/hlog"
	"golang.org/x/text/unicode/norm"

	"pbin/pkg/domain"
	"pbin/pkg/pastebin"
	"pbin/svc/svc"
	"pbin/svc/util"
)

const (
	maxRequestSize      = 2 << 20
	defaultHistoryLimit = 20
)

type Hdl struct {
	paste *svc.Paste
}
type CreateReq struct {
	Text       string `json:"text"`
	Name       string `json:"name,omitempty"`
	Privacy    any    `json:"privacy,omitempty"`
	Expiration string `json:"expiration,omitempty"`
	Format     string `json:"format,omitempty"`
}
type CreateResp struct {
	URL string `json:"url"`
}
type OptionsResp struct {
	Privacy    []string          `json:"privacy"`
	Expiration []ExpirationEntry `json:"expiration"`
}
type ExpirationEntry struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

func (h *Hdl) CreatePaste(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	requestID := util.GetRequestID(r.Context())
	contentType := r.Header.Get("Content-Type")
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || mediaType != "application/json" {
		log.Warn().
			Str("content_type", contentType).
			Str("request_id", requestID).
			Msg("invalid Content-Type header")
		w.WriteHeader(http.StatusUnsupportedMediaType)
		json.NewEncoder(w).Encode(map[string]string{
			"error":      "expected Content-Type: application/json",
			"request_id": requestID,
		})
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestSize)
	req, err := decodeCreate(r.Body)
	if err != nil {
		if errors.Cause(err) == io.EOF {
			log.Warn().Msg("empty request body")
		} else {
			log.Warn().Err(err).Msg("invalid request")
		}
		writeErr(w, domain.ErrInvalidRequest, requestID)
		return
	}
	if req.Text == "" {
		log.Warn().Msg("empty text")
		writeErr(w, domain.ErrInvalidRequest, requestID)
		return
	}
	opts := pastebin.Options{
		Name:       norm.NFC.String(req.Name),
		Privacy:    req.Privacy,
		Expiration: req.Expiration,
		Format:     req.Format,
	}
	body, err := h.paste.Create(r.Context(), req.Text, opts)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidOption) {
			log.Warn().Err(err).Msg("rejected paste option")
			writeErr(w, err, requestID)
			return
		}
		log.Error().Err(err).Msg("failed to create paste")
		writeErr(w, domain.ErrInternalServer, requestID)
		return
	}
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(CreateResp{URL: body})
}

// decodeCreate keeps JSON numbers exact so a numeric privacy of 0 stays an
// integer code instead of becoming a float.
func decodeCreate(body io.Reader) (CreateReq, error) {
	var req CreateReq
	raw, err := io.ReadAll(body)
	if err != nil {
		return req, errors.Wrap(err, "read body")
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return req, errors.WithStack(io.EOF)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return req, errors.Wrap(err, "decode body")
	}
	if n, ok := req.Privacy.(json.Number); ok {
		if i, err := strconv.Atoi(n.String()); err == nil {
			req.Privacy = i
		} else {
			req.Privacy = n.String()
		}
	}
	return req, nil
}
func (h *Hdl) GetPaste(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	requestID := util.GetRequestID(r.Context())
	id := chi.URLParam(r, "id")
	content, ok := h.paste.Fetch(r.Context(), id)
	if !ok {
		log.Info().Str("paste_id", id).Msg("no content for paste")
		writeErr(w, domain.ErrPasteNotFound, requestID)
		return
	}
	log.Info().
		Str("paste_id", id).
		Int("size", len(content)).
		Msg("paste retrieved")
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, content)
}
func (h *Hdl) DeletePaste(w http.ResponseWriter, r *http.Request) {
	requestID := util.GetRequestID(r.Context())
	id := chi.URLParam(r, "id")
	if err := h.paste.Delete(r.Context(), id); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Str("paste_id", id).Msg("delete failed")
		writeErr(w, err, requestID)
		return
	}
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "deleted"})
}
func (h *Hdl) Login(w http.ResponseWriter, r *http.Request) {
	ok := h.paste.Login(r.Context())
	hlog.FromRequest(r).Info().Bool("authenticated", ok).Msg("login requested")
	json.NewEncoder(w).Encode(map[string]bool{"authenticated": ok})
}
func (h *Hdl) GetOptions(w http.ResponseWriter, r *http.Request) {
	resp := OptionsResp{Privacy: pastebin.PrivacyNames()}
	for _, e := range pastebin.ExpirationNames() {
		resp.Expiration = append(resp.Expiration, ExpirationEntry{Name: e[0], Code: e[1]})
	}
	json.NewEncoder(w).Encode(resp)
}
func (h *Hdl) GetHistory(w http.ResponseWriter, r *http.Request) {
	requestID := util.GetRequestID(r.Context())
	limit := defaultHistoryLimit
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeErr(w, domain.ErrInvalidRequest, requestID)
			return
		}
		limit = n
	}
	rows, err := h.paste.Recent(r.Context(), limit)
	if err != nil {
		if !errors.Is(err, domain.ErrHistoryDisabled) {
			hlog.FromRequest(r).Error().Err(err).Msg("failed to read history")
		}
		writeErr(w, err, requestID)
		return
	}
	if rows == nil {
		rows = []domain.Paste{}
	}
	json.NewEncoder(w).Encode(rows)
}
func writeErr(w http.ResponseWriter, err error, requestID string) {
	statusCode := domain.Status(err)
	resp := domain.ToResp(err)
	if statusCode >= 500 && statusCode != http.StatusNotImplemented {
		resp.Error.Code = domain.ErrInternalServer.Code
		resp.Error.Msg = domain.ErrInternalServer.Msg
		util.Error().
			Err(err).
			Str("request_id", requestID).
			Msg("internal error with detailed info")
	}
	resp.RequestID = requestID
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)
}
