package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	interfaces "lab-registration/internal/interfaces/infrastructure"
	"lab-registration/pkg/logger"

	"github.com/google/uuid"
)

const (
	DefaultIdempotencyTTL = 24 * time.Hour
)

var ErrIdempotencyKeyReused = errors.New("idempotency key already used with different request data")

type IdempotencyService struct {
	idempotencyRepo interfaces.IdempotencyRepository
	ttl             time.Duration
}

func NewIdempotencyService(idempotencyRepo interfaces.IdempotencyRepository) *IdempotencyService {
	return &IdempotencyService{
		idempotencyRepo: idempotencyRepo,
		ttl:             DefaultIdempotencyTTL,
	}
}

// CheckDuplicateRequest returns the stored response when key was already used for
// the same principal and payload
func (s *IdempotencyService) CheckDuplicateRequest(ctx context.Context, key string, principalID uuid.UUID, requestData any) (*interfaces.IdempotencyRecord, bool, error) {
	if key == "" {
		return nil, false, nil
	}

	existing, err := s.idempotencyRepo.Get(ctx, key)
	if err != nil {
		logger.Error("Failed to check idempotency key: %v", err)
		return nil, false, fmt.Errorf("failed to check idempotency key: %w", err)
	}
	if existing == nil {
		return nil, false, nil
	}

	if existing.PrincipalID == principalID && existing.RequestHash == s.generateRequestHash(principalID, requestData) {
		logger.Info("Duplicate request detected for idempotency key: %s", key)
		return existing, true, nil
	}

	logger.Warn("Idempotency key %s used with different request data", key)
	return nil, false, ErrIdempotencyKeyReused
}

func (s *IdempotencyService) StoreProcessedRequest(ctx context.Context, key string, principalID uuid.UUID, requestData any, responseData any, statusCode int) error {
	if key == "" {
		return nil
	}

	responseJSON, err := json.Marshal(responseData)
	if err != nil {
		logger.Error("Failed to marshal response data for idempotency key %s: %v", key, err)
		return fmt.Errorf("failed to marshal response data: %w", err)
	}

	record := &interfaces.IdempotencyRecord{
		Key:          key,
		PrincipalID:  principalID,
		RequestHash:  s.generateRequestHash(principalID, requestData),
		StatusCode:   statusCode,
		ResponseBody: string(responseJSON),
		CreatedAt:    time.Now(),
	}

	if err := s.idempotencyRepo.Save(ctx, record, s.ttl); err != nil {
		logger.Error("Failed to store idempotency key %s: %v", key, err)
		return fmt.Errorf("failed to store idempotency key: %w", err)
	}

	logger.Debug("Stored idempotency key: %s", key)
	return nil
}

func (s *IdempotencyService) generateRequestHash(principalID uuid.UUID, requestData any) string {
	data := map[string]any{
		"principal_id": principalID.String(),
		"request_data": requestData,
	}

	jsonData, _ := json.Marshal(data)
	hash := sha256.Sum256(jsonData)
	return hex.EncodeToString(hash[:])
}
