package validation

import (
	"errors"
	"strings"
	"testing"

	"memodb/pkg/errs"
	"memodb/pkg/models"
)

func TestNormalizeListDefaults(t *testing.T) {
	p := ListParams{ThreadID: "t1"}
	if err := NormalizeList(&p); err != nil {
		t.Fatalf("NormalizeList: %v", err)
	}
	if p.OrderBy != OrderByCreatedAt || p.Direction != DirectionDesc || p.PerPage != MaxPerPage() {
		t.Fatalf("defaults = %+v", p)
	}
}

func TestNormalizeListScopeExclusivity(t *testing.T) {
	both := ListParams{ThreadID: "t1", ResourceID: "r1"}
	if err := NormalizeList(&both); !errs.IsValidation(err) {
		t.Fatalf("both scopes accepted: %v", err)
	}
	neither := ListParams{}
	if err := NormalizeList(&neither); !errs.IsValidation(err) {
		t.Fatalf("no scope accepted: %v", err)
	}
}

func TestNormalizeListPerPage(t *testing.T) {
	over := ListParams{ThreadID: "t1", PerPage: MaxPerPage() + 50}
	if err := NormalizeList(&over); err != nil {
		t.Fatalf("NormalizeList: %v", err)
	}
	if over.PerPage != MaxPerPage() {
		t.Fatalf("perPage not capped: %d", over.PerPage)
	}

	all := ListParams{ThreadID: "t1", PerPage: PerPageAll}
	if err := NormalizeList(&all); err != nil {
		t.Fatalf("NormalizeList: %v", err)
	}
	if all.PerPage != PerPageAll {
		t.Fatalf("bypass rewritten: %d", all.PerPage)
	}

	bad := ListParams{ThreadID: "t1", PerPage: -7}
	if err := NormalizeList(&bad); !errs.IsValidation(err) {
		t.Fatalf("negative perPage accepted: %v", err)
	}
}

// Enum rejections must name the allowed values so callers can self-correct.
func TestNormalizeListEnumErrors(t *testing.T) {
	p := ListParams{ThreadID: "t1", OrderBy: "priority"}
	err := NormalizeList(&p)
	var ve *errs.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if ve.Field != "orderBy" {
		t.Fatalf("field = %q", ve.Field)
	}
	msg := ve.Error()
	if !strings.Contains(msg, OrderByCreatedAt) || !strings.Contains(msg, OrderByUpdatedAt) {
		t.Fatalf("allowed set missing from error: %q", msg)
	}

	p = ListParams{ThreadID: "t1", Direction: "sideways"}
	if !errors.As(NormalizeList(&p), &ve) {
		t.Fatal("bad direction accepted")
	}
	if ve.Field != "sortDirection" || !strings.Contains(ve.Error(), DirectionAsc) {
		t.Fatalf("direction error = %q", ve.Error())
	}
}

func TestValidateMessage(t *testing.T) {
	ok := models.Message{ThreadID: "t1", Role: models.RoleUser}
	if err := ValidateMessage(ok); err != nil {
		t.Fatalf("valid message rejected: %v", err)
	}
	if err := ValidateMessage(models.Message{Role: models.RoleUser}); !errs.IsValidation(err) {
		t.Fatalf("missing thread accepted: %v", err)
	}

	var ve *errs.ValidationError
	err := ValidateMessage(models.Message{ThreadID: "t1", Role: "moderator"})
	if !errors.As(err, &ve) {
		t.Fatalf("bad role accepted: %v", err)
	}
	if !strings.Contains(ve.Error(), models.RoleAssistant) {
		t.Fatalf("allowed roles missing from error: %q", ve.Error())
	}
}

func TestValidateSearch(t *testing.T) {
	if err := ValidateSearch("find it", 10); err != nil {
		t.Fatalf("valid search rejected: %v", err)
	}
	if err := ValidateSearch("", 10); !errs.IsValidation(err) {
		t.Fatalf("empty query accepted: %v", err)
	}
	if err := ValidateSearch("q", -1); !errs.IsValidation(err) {
		t.Fatalf("negative limit accepted: %v", err)
	}
}
