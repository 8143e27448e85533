package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/frutosdouro/conformidade/internal/cert"
	"github.com/frutosdouro/conformidade/internal/repo"
	"github.com/frutosdouro/conformidade/internal/service"
)

func decodeErrorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Data  any `json:"data"`
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("envelope inválido: %v", err)
	}
	if body.Data != nil {
		t.Fatal("envelope de erro não pode carregar data")
	}
	return body.Error.Code
}

func TestHandleErrorMapsDomainErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validação de serviço", fmt.Errorf("%w: senha curta", service.ErrValidation), http.StatusBadRequest, "VALIDATION"},
		{"validação de certificação", fmt.Errorf("%w: datas invertidas", cert.ErrValidation), http.StatusBadRequest, "VALIDATION"},
		{"credenciais", service.ErrInvalidCredentials, http.StatusUnauthorized, "AUTH"},
		{"conta desativada", service.ErrAccountDisabled, http.StatusForbidden, "FORBIDDEN"},
		{"não encontrado", repo.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{"usuário referenciado", service.ErrUserReferenced, http.StatusConflict, "CONFLICT"},
		{"duplicata", repo.ErrDuplicate, http.StatusConflict, "CONFLICT"},
		{"dependência fora", repo.ErrUnavailable, http.StatusServiceUnavailable, "UNAVAILABLE"},
		{"desconhecido", fmt.Errorf("algo inesperado"), http.StatusInternalServerError, "INTERNAL"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			HandleError(rec, tc.err)

			if rec.Code != tc.status {
				t.Fatalf("esperava %d, obteve %d", tc.status, rec.Code)
			}
			if code := decodeErrorCode(t, rec); code != tc.code {
				t.Fatalf("esperava código %q, obteve %q", tc.code, code)
			}
		})
	}
}

func TestWriteJSONKeepsEnvelopeShape(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusOK, map[string]string{"status": "ok"})

	var body struct {
		Data  map[string]string `json:"data"`
		Error any               `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("envelope inválido: %v", err)
	}
	if body.Data["status"] != "ok" || body.Error != nil {
		t.Fatalf("envelope inesperado: %+v", body)
	}
}
