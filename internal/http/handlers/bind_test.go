package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/casahub/casahub/internal/domain/property"
	"github.com/casahub/casahub/internal/http/handlers"
	"github.com/gin-gonic/gin"
)

type bindErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details struct {
			JSON   string                `json:"json"`
			Field  string                `json:"field"`
			Fields []handlers.FieldError `json:"fields"`
		} `json:"details"`
	} `json:"error"`
}

func bindRouter() *gin.Engine {
	r := gin.New()

	r.POST("/properties", func(ctx *gin.Context) {
		var req property.CreatePropertyRequest
		if !handlers.BindJSON(ctx, &req) {
			return
		}
		ctx.Status(http.StatusCreated)
	})

	return r
}

func postJSON(r *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/properties", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	return w
}

func TestBindJSONValidationUsesJSONFieldNames(t *testing.T) {
	w := postJSON(bindRouter(), `{"title":"go"}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body=%s", w.Code, w.Body.String())
	}

	var resp bindErrorResponse

	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal error response: %v body=%s", err, w.Body.String())
	}

	if resp.Error.Code != "invalid_request" {
		t.Fatalf("unexpected code: %s", resp.Error.Code)
	}

	wantRules := map[string]string{
		"title":      "min",
		"city":       "required",
		"address":    "required",
		"priceCents": "required",
	}

	found := map[string]handlers.FieldError{}

	for _, fieldErr := range resp.Error.Details.Fields {
		found[fieldErr.Field] = fieldErr
	}

	for field, rule := range wantRules {
		fieldErr, ok := found[field]

		if !ok {
			t.Errorf("missing field error for %q, got %v", field, resp.Error.Details.Fields)
			continue
		}

		if fieldErr.Rule != rule {
			t.Errorf("field %q rule = %q, want %q", field, fieldErr.Rule, rule)
		}
	}
}

func TestBindJSONSyntaxError(t *testing.T) {
	w := postJSON(bindRouter(), `{"title":`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}

	var resp bindErrorResponse

	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if resp.Error.Details.JSON != "invalid_json_syntax" {
		t.Fatalf("details.json = %q, want invalid_json_syntax", resp.Error.Details.JSON)
	}
}

func TestBindJSONTypeMismatchNamesField(t *testing.T) {
	w := postJSON(bindRouter(), `{"title":"Sunny flat","city":"Lisbon","address":"Rua A 1","priceCents":"not-a-number"}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}

	var resp bindErrorResponse

	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if resp.Error.Details.JSON != "invalid_json_type" {
		t.Fatalf("details.json = %q, want invalid_json_type", resp.Error.Details.JSON)
	}

	if resp.Error.Details.Field != "priceCents" {
		t.Fatalf("details.field = %q, want priceCents", resp.Error.Details.Field)
	}
}
