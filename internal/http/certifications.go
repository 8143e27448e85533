package http

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/frutosdouro/conformidade/internal/cert"
	httpmiddleware "github.com/frutosdouro/conformidade/internal/http/middleware"
)

const dateLayout = "2006-01-02"

// Limite de upload de evidência documental.
const maxDocumentSize = 10 << 20

func urlUUID(r *http.Request, param string) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, param))
}

func parseDate(value string) (time.Time, error) {
	return time.Parse(dateLayout, value)
}

func parseDatePtr(value *string) (*time.Time, error) {
	if value == nil {
		return nil, nil
	}
	t, err := parseDate(*value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListCertifications lista certificações com status derivado da data atual.
func (h *Handler) ListCertifications(w http.ResponseWriter, r *http.Request) {
	filter := cert.ListFilter{
		Status: r.URL.Query().Get("status"),
		Search: r.URL.Query().Get("q"),
	}

	items, err := h.certs.List(r.Context(), filter)
	if err != nil {
		HandleError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, items)
}

func (h *Handler) GetCertification(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "id inválido", nil)
		return
	}

	item, err := h.certs.Get(r.Context(), id)
	if err != nil {
		HandleError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, item)
}

type certificationPayload struct {
	Name           string `json:"name"`
	Norm           string `json:"norm"`
	IssuingEntity  string `json:"issuing_entity"`
	EmissionDate   string `json:"emission_date"`
	ExpirationDate string `json:"expiration_date"`
	ResponsibleID  string `json:"responsible_id"`
	Notes          string `json:"notes"`
}

func (h *Handler) CreateCertification(w http.ResponseWriter, r *http.Request) {
	var payload certificationPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}

	emission, err := parseDate(payload.EmissionDate)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "emission_date inválida (AAAA-MM-DD)", nil)
		return
	}
	expiration, err := parseDate(payload.ExpirationDate)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "expiration_date inválida (AAAA-MM-DD)", nil)
		return
	}
	responsible, err := uuid.Parse(payload.ResponsibleID)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "responsible_id inválido", nil)
		return
	}

	item, err := h.certs.Create(r.Context(), httpmiddleware.GetSubject(r.Context()), cert.CreateInput{
		Name:           payload.Name,
		Norm:           payload.Norm,
		IssuingEntity:  payload.IssuingEntity,
		EmissionDate:   emission,
		ExpirationDate: expiration,
		ResponsibleID:  responsible,
		Notes:          payload.Notes,
	})
	if err != nil {
		HandleError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, item)
}

type certificationUpdatePayload struct {
	Name           *string `json:"name"`
	Norm           *string `json:"norm"`
	IssuingEntity  *string `json:"issuing_entity"`
	EmissionDate   *string `json:"emission_date"`
	ExpirationDate *string `json:"expiration_date"`
	ResponsibleID  *string `json:"responsible_id"`
	Notes          *string `json:"notes"`
	Status         *string `json:"status"`
}

func (h *Handler) UpdateCertification(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "id inválido", nil)
		return
	}

	var payload certificationUpdatePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}

	emission, err := parseDatePtr(payload.EmissionDate)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "emission_date inválida (AAAA-MM-DD)", nil)
		return
	}
	expiration, err := parseDatePtr(payload.ExpirationDate)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "expiration_date inválida (AAAA-MM-DD)", nil)
		return
	}

	in := cert.UpdateInput{
		Name:           payload.Name,
		Norm:           payload.Norm,
		IssuingEntity:  payload.IssuingEntity,
		EmissionDate:   emission,
		ExpirationDate: expiration,
		Notes:          payload.Notes,
		Status:         payload.Status,
	}
	if payload.ResponsibleID != nil {
		responsible, err := uuid.Parse(*payload.ResponsibleID)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "VALIDATION", "responsible_id inválido", nil)
			return
		}
		in.ResponsibleID = &responsible
	}

	item, err := h.certs.Update(r.Context(), httpmiddleware.GetSubject(r.Context()), id, in)
	if err != nil {
		HandleError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, item)
}

func (h *Handler) DeleteCertification(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "id inválido", nil)
		return
	}

	if err := h.certs.Delete(r.Context(), httpmiddleware.GetSubject(r.Context()), id); err != nil {
		HandleError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// UploadCertificationDocument anexa a evidência documental (multipart, campo
// "file") e atualiza o link da certificação.
func (h *Handler) UploadCertificationDocument(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "id inválido", nil)
		return
	}

	if err := r.ParseMultipartForm(maxDocumentSize); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "arquivo ausente ou grande demais", nil)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "campo file é obrigatório", nil)
		return
	}
	defer file.Close()

	body, err := io.ReadAll(io.LimitReader(file, maxDocumentSize+1))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "falha ao ler arquivo", nil)
		return
	}
	if len(body) > maxDocumentSize {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "arquivo excede 10MB", nil)
		return
	}

	item, err := h.certs.AttachDocument(
		r.Context(),
		httpmiddleware.GetSubject(r.Context()),
		id,
		header.Filename,
		header.Header.Get("Content-Type"),
		body,
	)
	if err != nil {
		HandleError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, item)
}

// ExportCertifications devolve CSV com o status derivado da data atual.
func (h *Handler) ExportCertifications(w http.ResponseWriter, r *http.Request) {
	items, err := h.certs.List(r.Context(), cert.ListFilter{Status: r.URL.Query().Get("status")})
	if err != nil {
		HandleError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=certificacoes-%s.csv", time.Now().UTC().Format(dateLayout)))
	w.WriteHeader(http.StatusOK)

	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"nome", "norma", "emissor", "emissao", "vencimento", "responsavel", "status", "dias_para_vencer"})
	for _, item := range items {
		days := cert.DaysToExpiration(item.ExpirationDate, time.Now().UTC())
		_ = cw.Write([]string{
			item.Name,
			item.Norm,
			item.IssuingEntity,
			item.EmissionDate.Format(dateLayout),
			item.ExpirationDate.Format(dateLayout),
			item.ResponsibleName,
			item.Status,
			strconv.Itoa(days),
		})
	}
	cw.Flush()
}
