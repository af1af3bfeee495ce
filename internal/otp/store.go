package otp

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const recordVersionV1 = 1

var (
	// ErrNotFound indicates no active code record exists (never issued, consumed,
	// or naturally expired).
	ErrNotFound = errors.New("otp record not found")
	// ErrAttemptsExceeded indicates this verification exhausted the retry budget;
	// the record and its cooldown keys are gone and the caller must lock.
	ErrAttemptsExceeded = errors.New("otp attempts exceeded")
	// ErrUnavailable indicates the OTP backend is unreachable.
	ErrUnavailable = errors.New("otp backend unavailable")
)

// MismatchError reports a wrong code with attempts remaining.
type MismatchError struct {
	AttemptsLeft int
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("otp mismatch, %d attempts left", e.AttemptsLeft)
}

// Record is the stored code state: the HMAC of the issued code plus the
// mismatch counter. ExpiresAt pins the nominal validity deadline so the
// fixed-expiry variant can compute a shrinking TTL.
type Record struct {
	CodeHash  [32]byte
	Attempts  uint16
	ExpiresAt int64
}

// Store persists code records in Redis under "otp:data:{identifier}".
type Store struct {
	redis redis.UniversalClient
	now   func() time.Time
}

// NewStore creates a record store on the given client.
func NewStore(redisClient redis.UniversalClient) *Store {
	return &Store{redis: redisClient, now: time.Now}
}

func (s *Store) key(identifier string) string {
	return "otp:data:" + identifier
}

// Save writes a fresh record with the full validity window.
func (s *Store) Save(ctx context.Context, identifier string, record *Record, ttl time.Duration) error {
	encoded, err := encodeRecord(record)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(identifier), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Attempts returns the mismatch count of the active record, zero when absent.
func (s *Store) Attempts(ctx context.Context, identifier string) (int, error) {
	data, err := s.redis.Get(ctx, s.key(identifier)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	record, err := decodeRecord(data)
	if err != nil {
		return 0, err
	}
	return int(record.Attempts), nil
}

// Consume compares the provided hash against the stored record under WATCH.
//
// On a match the record and every key in alsoDelete are removed and Consume
// returns nil. On a mismatch the attempt counter is incremented in place and
// the record rewritten: with the full validity window when fixedExpiry is
// false (each wrong guess restarts the clock), or with the remaining time to
// the original deadline when true. Exhausting maxAttempts deletes the record
// plus alsoDelete and returns [ErrAttemptsExceeded]; the caller owns lock
// creation.
func (s *Store) Consume(
	ctx context.Context,
	identifier string,
	providedHash [32]byte,
	maxAttempts int,
	validity time.Duration,
	fixedExpiry bool,
	alsoDelete ...string,
) error {
	const maxRetries = 4
	key := s.key(identifier)

	for i := 0; i < maxRetries; i++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeRecord(data)
			if err != nil {
				return err
			}

			if subtle.ConstantTimeCompare(record.CodeHash[:], providedHash[:]) != 1 {
				record.Attempts++
				if int(record.Attempts) >= maxAttempts {
					_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
						pipe.Del(ctx, append([]string{key}, alsoDelete...)...)
						return nil
					})
					if err != nil {
						return err
					}
					return ErrAttemptsExceeded
				}

				ttl := validity
				if fixedExpiry {
					ttl = time.Unix(record.ExpiresAt, 0).Sub(s.now())
					if ttl <= 0 {
						_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
							pipe.Del(ctx, key)
							return nil
						})
						if err != nil {
							return err
						}
						return ErrNotFound
					}
				}

				updated, err := encodeRecord(record)
				if err != nil {
					return err
				}
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Set(ctx, key, updated, ttl)
					return nil
				})
				if err != nil {
					return err
				}
				return &MismatchError{AttemptsLeft: maxAttempts - int(record.Attempts)}
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, append([]string{key}, alsoDelete...)...)
				return nil
			})
			return err
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			var mismatch *MismatchError
			switch {
			case errors.Is(err, redis.Nil):
				return ErrNotFound
			case errors.Is(err, ErrNotFound), errors.Is(err, ErrAttemptsExceeded), errors.As(err, &mismatch):
				return err
			default:
				return fmt.Errorf("%w: %v", ErrUnavailable, err)
			}
		}
		return nil
	}

	return fmt.Errorf("%w: transaction contention", ErrUnavailable)
}

func encodeRecord(record *Record) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(recordVersionV1)
	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}
	buf.Write(record.CodeHash[:])

	return buf.Bytes(), nil
}

func decodeRecord(data []byte) (*Record, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != recordVersionV1 {
		return nil, errors.New("invalid otp record version")
	}

	record := &Record{}
	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(reader, record.CodeHash[:]); err != nil {
		return nil, err
	}

	return record, nil
}
