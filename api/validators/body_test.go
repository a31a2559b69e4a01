package validators

import (
	"net/http/httptest"
	"strings"
	"testing"

	pkgerrors "github.com/angelmondragon/certify-backend/pkg/errors"
)

type nestedBody struct {
	Recipient struct {
		Email string `json:"email" validate:"required,email"`
	} `json:"recipient"`
	Title string `json:"title" validate:"required,min=3"`
}

func TestDecodeJSONBodyReportsNestedJSONPaths(t *testing.T) {
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"recipient":{"email":"nope"},"title":"ab"}`))
	var body nestedBody
	err := DecodeJSONBody(req, &body)
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	details, ok := pkgerrors.As(err).Details().(map[string]string)
	if !ok {
		t.Fatalf("unexpected details type %T", pkgerrors.As(err).Details())
	}
	if details["recipient.email"] != "must be a valid email" {
		t.Fatalf("unexpected details %v", details)
	}
	if details["title"] != "must be at least 3" {
		t.Fatalf("unexpected details %v", details)
	}
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"title":"valid","verification_code":"x"}`))
	var body struct {
		Title string `json:"title"`
	}
	if err := DecodeJSONBody(req, &body); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestParseQueryIntBounds(t *testing.T) {
	req := httptest.NewRequest("GET", "/?limit=500&page=abc", nil)
	if _, err := ParseQueryInt(req, "limit", 10, 1, 100); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected range error, got %v", err)
	}
	if _, err := ParseQueryInt(req, "page", 1, 1, 1000); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected numeric error, got %v", err)
	}
	if got, err := ParseQueryInt(req, "missing", 7, 1, 10); err != nil || got != 7 {
		t.Fatalf("expected default 7, got %d (%v)", got, err)
	}
}
