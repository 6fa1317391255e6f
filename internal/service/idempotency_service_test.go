package service

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"lab-registration/internal/infrastructure/repository"

	"github.com/google/uuid"
)

func TestIdempotencyService_ReplaysSameRequest(t *testing.T) {
	ctx := context.Background()
	svc := NewIdempotencyService(repository.NewMemoryIdempotencyRepository())
	principal := uuid.New()
	req := map[string]string{"lab_session_id": "abc"}

	record, duplicate, err := svc.CheckDuplicateRequest(ctx, "key-1", principal, req)
	if err != nil || duplicate || record != nil {
		t.Fatalf("Expected fresh key, got record=%v duplicate=%t err=%v", record, duplicate, err)
	}

	if err := svc.StoreProcessedRequest(ctx, "key-1", principal, req, map[string]bool{"success": true}, http.StatusCreated); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	record, duplicate, err = svc.CheckDuplicateRequest(ctx, "key-1", principal, req)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !duplicate {
		t.Fatal("Expected duplicate request to be detected")
	}
	if record.StatusCode != http.StatusCreated {
		t.Errorf("Expected status %d, got %d", http.StatusCreated, record.StatusCode)
	}
	if record.ResponseBody != `{"success":true}` {
		t.Errorf("Expected stored response body, got %s", record.ResponseBody)
	}
}

func TestIdempotencyService_RejectsReusedKey(t *testing.T) {
	ctx := context.Background()
	svc := NewIdempotencyService(repository.NewMemoryIdempotencyRepository())
	principal := uuid.New()

	if err := svc.StoreProcessedRequest(ctx, "key-1", principal, map[string]string{"a": "1"}, nil, http.StatusCreated); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if _, _, err := svc.CheckDuplicateRequest(ctx, "key-1", principal, map[string]string{"a": "2"}); !errors.Is(err, ErrIdempotencyKeyReused) {
		t.Errorf("Expected ErrIdempotencyKeyReused for a different payload, got %v", err)
	}
	if _, _, err := svc.CheckDuplicateRequest(ctx, "key-1", uuid.New(), map[string]string{"a": "1"}); !errors.Is(err, ErrIdempotencyKeyReused) {
		t.Errorf("Expected ErrIdempotencyKeyReused for another principal, got %v", err)
	}
}

func TestIdempotencyService_EmptyKey(t *testing.T) {
	ctx := context.Background()
	svc := NewIdempotencyService(repository.NewMemoryIdempotencyRepository())

	if err := svc.StoreProcessedRequest(ctx, "", uuid.New(), nil, nil, http.StatusOK); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	record, duplicate, err := svc.CheckDuplicateRequest(ctx, "", uuid.New(), nil)
	if record != nil || duplicate || err != nil {
		t.Errorf("Expected empty key to be ignored, got record=%v duplicate=%t err=%v", record, duplicate, err)
	}
}
