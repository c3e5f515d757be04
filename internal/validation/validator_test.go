package validation

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/hitoshi/memberhub/internal/model"
)

type sampleRequest struct {
	FirstName    string  `json:"firstName" validate:"required"`
	Email        string  `json:"email" validate:"required,email"`
	UserID       string  `json:"userId" validate:"required,uuid"`
	MemberTypeID string  `json:"memberTypeId" validate:"required,membertype"`
	Limit        *int    `json:"monthPostsLimit" validate:"omitempty,gte=0"`
	Nickname     *string `json:"-"`
}

func validSample() sampleRequest {
	return sampleRequest{
		FirstName:    "Ada",
		Email:        "ada@example.com",
		UserID:       "6f1c2b9e-6a43-4a3c-9d3e-1f7b6a9e0c11",
		MemberTypeID: "basic",
	}
}

func TestStruct_Valid(t *testing.T) {
	if err := Struct(validSample()); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestStruct_ReportsJSONFieldNames(t *testing.T) {
	req := validSample()
	req.FirstName = ""
	req.Email = "not-an-email"
	req.MemberTypeID = "premium"

	err := Struct(req)

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %T", err)
	}
	if apiErr.Code != model.ErrCodeValidationFailed {
		t.Errorf("Code = %s, want %s", apiErr.Code, model.ErrCodeValidationFailed)
	}
	for _, field := range []string{"firstName", "email", "memberTypeId"} {
		if _, ok := apiErr.Details[field]; !ok {
			t.Errorf("details missing %q: %v", field, apiErr.Details)
		}
	}
	if _, ok := apiErr.Details["FirstName"]; ok {
		t.Error("details should use json names, not Go field names")
	}
}

func TestStruct_NumericBound(t *testing.T) {
	req := validSample()
	neg := -1
	req.Limit = &neg

	err := Struct(req)
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %v", err)
	}
	msg, _ := apiErr.Details["monthPostsLimit"].(string)
	if !strings.Contains(msg, "0") {
		t.Errorf("monthPostsLimit message = %q", msg)
	}
}

func TestID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"UUID", "6f1c2b9e-6a43-4a3c-9d3e-1f7b6a9e0c11", false},
		{"空文字", "", true},
		{"非UUID", "user-1", true},
		{"途中で切れたUUID", "6f1c2b9e-6a43-4a3c", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ID(tt.id)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ID(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
			}
			if err != nil {
				var apiErr *model.APIError
				if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidID {
					t.Errorf("error = %v, want INVALID_ID", err)
				}
			}
		})
	}
}

func TestToDetails_JSONErrors(t *testing.T) {
	var target struct {
		Birthday int64 `json:"birthday"`
	}

	err := json.Unmarshal([]byte(`{"birthday":"yesterday"}`), &target)
	details := ToDetails(err)
	if _, ok := details["birthday"]; !ok {
		t.Errorf("type error details = %v, want birthday key", details)
	}

	err = json.Unmarshal([]byte(`{"birthday":`), &target)
	details = ToDetails(err)
	if len(details) != 1 {
		t.Errorf("syntax error details = %v", details)
	}
}
