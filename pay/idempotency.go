package pay

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"bulkhaul/models"
	"bulkhaul/utils"

	"github.com/julienschmidt/httprouter"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

const idempotencyTTL = 24 * time.Hour

// IdempotencyStore records the first request for a key and its response.
// Begin returns the existing record when the key was already used.
type IdempotencyStore interface {
	Begin(ctx context.Context, rec models.IdempotencyRecord) (*models.IdempotencyRecord, error)
	Complete(ctx context.Context, key string, response map[string]any) error
}

type MongoIdempotencyStore struct {
	coll *mongo.Collection
}

func NewMongoIdempotencyStore(coll *mongo.Collection) *MongoIdempotencyStore {
	return &MongoIdempotencyStore{coll: coll}
}

func (s *MongoIdempotencyStore) Begin(ctx context.Context, rec models.IdempotencyRecord) (*models.IdempotencyRecord, error) {
	_, err := s.coll.InsertOne(ctx, rec)
	if err == nil {
		return nil, nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return nil, err
	}
	var existing models.IdempotencyRecord
	if err := s.coll.FindOne(ctx, bson.M{"key": rec.Key}).Decode(&existing); err != nil {
		return nil, err
	}
	return &existing, nil
}

func (s *MongoIdempotencyStore) Complete(ctx context.Context, key string, response map[string]any) error {
	_, err := s.coll.UpdateOne(ctx,
		bson.M{"key": key},
		bson.M{"$set": bson.M{"response": response}},
	)
	return err
}

// MemoryIdempotencyStore is used when no database is configured.
type MemoryIdempotencyStore struct {
	mu   sync.Mutex
	recs map[string]models.IdempotencyRecord
}

func NewMemoryIdempotencyStore() *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{recs: make(map[string]models.IdempotencyRecord)}
}

func (s *MemoryIdempotencyStore) Begin(_ context.Context, rec models.IdempotencyRecord) (*models.IdempotencyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.recs[rec.Key]; ok && rec.CreatedAt.Before(existing.ExpiresAt) {
		return &existing, nil
	}
	s.recs[rec.Key] = rec
	return nil, nil
}

func (s *MemoryIdempotencyStore) Complete(_ context.Context, key string, response map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[key]
	if !ok {
		return errors.New("idempotency key not found")
	}
	rec.Response = response
	s.recs[key] = rec
	return nil
}

func computeRequestHash(r *http.Request, bodyBytes []byte, userID string) string {
	h := sha256.New()
	h.Write([]byte(r.Method + ":" + r.URL.Path + ":" + userID + ":"))
	h.Write(bodyBytes)
	return hex.EncodeToString(h.Sum(nil))
}

// CaptureResponseWriter wraps http.ResponseWriter to capture status and body.
type CaptureResponseWriter struct {
	w           http.ResponseWriter
	statusCode  int
	buf         bytes.Buffer
	wroteHeader bool
}

func NewCaptureResponseWriter(w http.ResponseWriter) *CaptureResponseWriter {
	return &CaptureResponseWriter{w: w, statusCode: http.StatusOK}
}

func (c *CaptureResponseWriter) Header() http.Header {
	return c.w.Header()
}

func (c *CaptureResponseWriter) WriteHeader(statusCode int) {
	if !c.wroteHeader {
		c.statusCode = statusCode
		c.w.WriteHeader(statusCode)
		c.wroteHeader = true
	}
}

func (c *CaptureResponseWriter) Write(b []byte) (int, error) {
	c.buf.Write(b)
	return c.w.Write(b)
}

func (c *CaptureResponseWriter) Status() int {
	return c.statusCode
}

func (c *CaptureResponseWriter) BodyBytes() []byte {
	return c.buf.Bytes()
}

// Idempotency makes replays of a request with the same Idempotency-Key safe.
//   - No header: pass-through.
//   - First use of a key: run the handler and store its response.
//   - Reuse with a different request body: 409.
//   - Reuse after completion: replay the stored response.
//   - Reuse while the first request is in flight: run the handler, which
//     must itself be idempotent.
type Idempotency struct {
	store IdempotencyStore
	now   func() time.Time
}

func NewIdempotency(store IdempotencyStore) *Idempotency {
	return &Idempotency{store: store, now: time.Now}
}

func (m *Idempotency) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("Idempotency-Key")
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}

		userID := utils.GetUserIDFromRequest(r)

		// limit body size to 1 MB
		bodyBytes, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			http.Error(w, "failed to read request body", http.StatusBadRequest)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(bodyBytes))

		reqHash := computeRequestHash(r, bodyBytes, userID)
		now := m.now()
		rec := models.IdempotencyRecord{
			Key:         key,
			Method:      r.Method,
			Path:        r.URL.Path,
			UserID:      userID,
			RequestHash: reqHash,
			CreatedAt:   now,
			ExpiresAt:   now.Add(idempotencyTTL),
		}

		ctx := r.Context()
		existing, err := m.store.Begin(ctx, rec)
		if err != nil {
			http.Error(w, "idempotency lookup error", http.StatusInternalServerError)
			return
		}

		if existing == nil {
			crw := NewCaptureResponseWriter(w)
			next.ServeHTTP(crw, r)

			// stored verbatim so a replay is byte-identical
			_ = m.store.Complete(ctx, key, map[string]any{
				"status":      crw.Status(),
				"contentType": crw.Header().Get("Content-Type"),
				"body":        string(crw.BodyBytes()),
			})
			return
		}

		if existing.RequestHash != reqHash {
			http.Error(w, "idempotency-key conflict", http.StatusConflict)
			return
		}

		if existing.Response != nil {
			replay(w, existing.Response)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Wrap adapts Middleware to an httprouter handle.
func (m *Idempotency) Wrap(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next(w, r, ps)
		})).ServeHTTP(w, r)
	}
}

func replay(w http.ResponseWriter, resp map[string]any) {
	if ct, _ := resp["contentType"].(string); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(responseStatus(resp["status"]))
	body, _ := resp["body"].(string)
	io.WriteString(w, body)
}

// responseStatus reads the stored status; Mongo decodes ints as int32/int64.
func responseStatus(v any) int {
	switch s := v.(type) {
	case int:
		return s
	case int32:
		return int(s)
	case int64:
		return int(s)
	case float64:
		return int(s)
	}
	return http.StatusOK
}
