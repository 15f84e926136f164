package quota

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// KeyValue is the minimal subset of JetStream KeyValue operations the store
// depends on. This allows tests to provide a mock without requiring a
// running NATS server.
type KeyValue interface {
	Get(key string) (nats.KeyValueEntry, error)
	Create(key string, value []byte) (uint64, error)
	Update(key string, value []byte, last uint64) (uint64, error)
}

// KVStore keeps per-tenant balances in a JetStream KeyValue bucket. The
// decrement is a revision compare-and-swap: Update only succeeds against
// the revision read, so two concurrent consumers for the same tenant can
// never both spend the same balance. This is the only cross-process
// synchronization point in the engine.
type KVStore struct {
	kv        KeyValue
	allowance int64
	logger    *zap.Logger
}

// NewKVStore creates a quota store over an existing KeyValue bucket.
func NewKVStore(kv KeyValue, defaultAllowance int64, logger *zap.Logger) (*KVStore, error) {
	if kv == nil {
		return nil, errors.New("key-value bucket cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if defaultAllowance <= 0 {
		defaultAllowance = DefaultAllowance
	}
	return &KVStore{kv: kv, allowance: defaultAllowance, logger: logger}, nil
}

// BindBucket looks up or creates the quota bucket on a JetStream context.
func BindBucket(js nats.JetStreamContext, bucket string) (nats.KeyValue, error) {
	kv, err := js.KeyValue(bucket)
	if err == nil {
		return kv, nil
	}
	if !errors.Is(err, nats.ErrBucketNotFound) {
		return nil, fmt.Errorf("failed to bind quota bucket %q: %w", bucket, err)
	}
	kv, err = js.CreateKeyValue(&nats.KeyValueConfig{Bucket: bucket})
	if err != nil {
		return nil, fmt.Errorf("failed to create quota bucket %q: %w", bucket, err)
	}
	return kv, nil
}

// CheckAndConsume implements Store with a CAS retry loop.
func (s *KVStore) CheckAndConsume(ctx context.Context, tenantID string, units int64) (bool, int64, error) {
	for {
		if err := ctx.Err(); err != nil {
			return false, 0, err
		}

		entry, err := s.kv.Get(tenantID)
		if errors.Is(err, nats.ErrKeyNotFound) {
			// First contact: seed the default allowance, then retry the
			// consume against the seeded revision.
			if _, err := s.kv.Create(tenantID, encodeBalance(s.allowance)); err != nil && !errors.Is(err, nats.ErrKeyExists) {
				return false, 0, fmt.Errorf("failed to seed quota for tenant %q: %w", tenantID, err)
			}
			continue
		}
		if err != nil {
			return false, 0, fmt.Errorf("failed to read quota for tenant %q: %w", tenantID, err)
		}

		balance, err := decodeBalance(entry.Value())
		if err != nil {
			return false, 0, fmt.Errorf("corrupt quota entry for tenant %q: %w", tenantID, err)
		}

		if balance < units {
			return false, balance, nil
		}

		next := balance - units
		if _, err := s.kv.Update(tenantID, encodeBalance(next), entry.Revision()); err != nil {
			if isWrongLastSequence(err) {
				// Revision conflict: another run consumed concurrently.
				// Re-read and retry.
				s.logger.Debug("Quota CAS conflict, retrying",
					zap.String("tenantID", tenantID),
					zap.Uint64("revision", entry.Revision()))
				continue
			}
			return false, 0, fmt.Errorf("failed to update quota for tenant %q: %w", tenantID, err)
		}
		return true, next, nil
	}
}

// SetBalance implements Store.
func (s *KVStore) SetBalance(ctx context.Context, tenantID string, balance int64) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		entry, err := s.kv.Get(tenantID)
		if errors.Is(err, nats.ErrKeyNotFound) {
			if _, err := s.kv.Create(tenantID, encodeBalance(balance)); err != nil {
				if errors.Is(err, nats.ErrKeyExists) {
					continue
				}
				return fmt.Errorf("failed to provision quota for tenant %q: %w", tenantID, err)
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read quota for tenant %q: %w", tenantID, err)
		}

		if _, err := s.kv.Update(tenantID, encodeBalance(balance), entry.Revision()); err != nil {
			if isWrongLastSequence(err) {
				continue
			}
			return fmt.Errorf("failed to update quota for tenant %q: %w", tenantID, err)
		}
		return nil
	}
}

// Balance implements Store.
func (s *KVStore) Balance(_ context.Context, tenantID string) (int64, error) {
	entry, err := s.kv.Get(tenantID)
	if errors.Is(err, nats.ErrKeyNotFound) {
		return s.allowance, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read quota for tenant %q: %w", tenantID, err)
	}
	return decodeBalance(entry.Value())
}

// isWrongLastSequence reports whether err is the JetStream wrong-last-sequence
// rejection that signals a revision conflict on Update. Any other Update
// failure is a real error and must be surfaced, not retried.
func isWrongLastSequence(err error) bool {
	var apiErr *nats.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode == nats.JSErrCodeStreamWrongLastSequence
}

func encodeBalance(balance int64) []byte {
	return []byte(strconv.FormatInt(balance, 10))
}

func decodeBalance(value []byte) (int64, error) {
	return strconv.ParseInt(string(value), 10, 64)
}
