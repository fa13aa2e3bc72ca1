package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5"

	"personnel/internal/platform/db"
	"personnel/internal/transport/http/api"
)

const (
	IdempotencyHeader       = "Idempotency-Key"
	maxIdempotencyKeyLength = 255
)

var ErrIdempotencyConflict = errors.New("idempotency key conflicts with existing request")

// StoredResponse is a previously answered request kept for replay.
type StoredResponse struct {
	Status int
	Body   json.RawMessage
}

type IdempotencyRepository interface {
	Check(ctx context.Context, actor, endpoint, key, requestHash string) (*StoredResponse, error)
	Save(ctx context.Context, actor, endpoint, key, requestHash string, resp StoredResponse) error
}

type IdempotencyStore struct {
	db db.DBTX
}

func NewIdempotencyStore(conn db.DBTX) *IdempotencyStore {
	return &IdempotencyStore{db: conn}
}

func RequestHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Check returns the stored response for key, nil when the key is unused, or
// ErrIdempotencyConflict when the key was used for a different payload.
func (s *IdempotencyStore) Check(ctx context.Context, actor, endpoint, key, requestHash string) (*StoredResponse, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var storedHash string
	var stored StoredResponse
	err := s.db.QueryRow(ctx, `
    SELECT request_hash, status, response_json
    FROM idempotency_keys
    WHERE actor = $1 AND key = $2 AND endpoint = $3
  `, actor, key, endpoint).Scan(&storedHash, &stored.Status, &stored.Body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if storedHash != requestHash {
		return nil, ErrIdempotencyConflict
	}
	return &stored, nil
}

func (s *IdempotencyStore) Save(ctx context.Context, actor, endpoint, key, requestHash string, resp StoredResponse) error {
	if s == nil || s.db == nil {
		return nil
	}
	tag, err := s.db.Exec(ctx, `
    INSERT INTO idempotency_keys (actor, key, endpoint, request_hash, status, response_json)
    VALUES ($1, $2, $3, $4, $5, $6)
    ON CONFLICT (actor, key, endpoint)
    DO UPDATE SET status = EXCLUDED.status, response_json = EXCLUDED.response_json
    WHERE idempotency_keys.request_hash = EXCLUDED.request_hash
  `, actor, key, endpoint, requestHash, resp.Status, resp.Body)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrIdempotencyConflict
	}
	return nil
}

type captureWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (c *captureWriter) WriteHeader(code int) {
	c.status = code
	c.ResponseWriter.WriteHeader(code)
}

func (c *captureWriter) Write(p []byte) (int, error) {
	c.body.Write(p)
	return c.ResponseWriter.Write(p)
}

// Idempotency replays the first response of a POST carrying an
// Idempotency-Key header. Keys are scoped to the authenticated actor and the
// endpoint, so it must run after Authenticate. Server errors are not stored.
func Idempotency(repo IdempotencyRepository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
			if repo == nil || key == "" || r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}
			reqID := GetRequestID(r.Context())
			if len(key) > maxIdempotencyKeyLength {
				api.FailWithDetails(w, http.StatusBadRequest, "validation_error", "invalid idempotency key", map[string]string{"field": IdempotencyHeader}, reqID)
				return
			}

			raw, err := io.ReadAll(r.Body)
			if err != nil {
				api.Fail(w, http.StatusBadRequest, "invalid_body", "could not read request body", reqID)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(raw))

			actor := ""
			if id, ok := GetIdentity(r.Context()); ok {
				actor = id.Username
			}
			endpoint := r.Method + " " + r.URL.Path
			hash := RequestHash(raw)

			stored, err := repo.Check(r.Context(), actor, endpoint, key, hash)
			if errors.Is(err, ErrIdempotencyConflict) {
				api.Fail(w, http.StatusUnprocessableEntity, "idempotency_conflict", "idempotency key reused with a different request", reqID)
				return
			}
			if err != nil {
				api.FailError(w, err, reqID)
				return
			}
			if stored != nil {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Idempotent-Replayed", "true")
				w.WriteHeader(stored.Status)
				_, _ = w.Write(stored.Body)
				return
			}

			capture := &captureWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(capture, r)
			if capture.status >= http.StatusInternalServerError || !json.Valid(capture.body.Bytes()) {
				return
			}
			resp := StoredResponse{Status: capture.status, Body: json.RawMessage(capture.body.Bytes())}
			if err := repo.Save(context.WithoutCancel(r.Context()), actor, endpoint, key, hash, resp); err != nil {
				slog.Warn("idempotency save failed", "err", err, "endpoint", endpoint, "requestId", reqID)
			}
		})
	}
}
