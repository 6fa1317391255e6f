package validator

import (
	"testing"
)

type sample struct {
	Start string   `json:"start_time" validate:"required,clock"`
	Days  []string `json:"session_days" validate:"required,min=1,dive,weekday"`
	Name  string   `json:"name" validate:"max=5"`
}

func TestValidateStruct(t *testing.T) {
	valid := sample{Start: "09:30", Days: []string{"MONDAY", "friday"}, Name: "lab"}
	if err := ValidateStruct(valid); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	invalid := sample{Start: "9h30", Days: []string{"MON"}, Name: "too long"}
	err := ValidateStruct(invalid)
	if err == nil {
		t.Fatal("Expected validation error, got nil")
	}

	formatted := FormatValidationError(err)
	if len(formatted) != 3 {
		t.Fatalf("Expected 3 errors, got %d: %+v", len(formatted), formatted)
	}

	expected := map[string]string{
		"start_time":      "start_time must be a time in HH:MM format",
		"session_days[0]": "session_days[0] must be a day of the week",
		"name":            "name must be at most 5 characters long",
	}
	for _, fe := range formatted {
		message, ok := expected[fe.Field]
		if !ok {
			t.Errorf("Unexpected field %s", fe.Field)
			continue
		}
		if fe.Message != message {
			t.Errorf("Expected message '%s', got '%s'", message, fe.Message)
		}
	}
}

func TestValidateStruct_Required(t *testing.T) {
	err := ValidateStruct(sample{})
	formatted := FormatValidationError(err)
	if len(formatted) != 2 {
		t.Fatalf("Expected 2 errors, got %d", len(formatted))
	}
	if formatted[0].Tag != "required" || formatted[0].Message != "start_time is required" {
		t.Errorf("Expected start_time is required, got %+v", formatted[0])
	}
}
