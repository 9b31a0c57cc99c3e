// Package sessions keeps checkout sessions in a bolt file, one JSON value per token.
package sessions

import (
	"context"
	"encoding/json"
	"time"

	"github.com/boltdb/bolt"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/gebv/airtime"
)

const (
	bucketName = "checkout_sessions"

	DefaultTTL = 30 * time.Minute
)

type Store struct {
	db  *bolt.DB
	ttl time.Duration
	now func() time.Time
	l   *zap.Logger
}

// Open opens (or creates) the sessions file at path.
func Open(path string, ttl time.Duration) (*Store, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "Failed open sessions file")
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "Failed create sessions bucket")
	}
	return &Store{
		db:  db,
		ttl: ttl,
		now: time.Now,
		l:   zap.L().Named("sessions"),
	}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Create stores a new NEW session for the phone number under a fresh token.
func (s *Store) Create(ctx context.Context, phoneNumber string) (*airtime.CheckoutSession, error) {
	now := s.now().UTC()
	sess := &airtime.CheckoutSession{
		Token:       uuid.New().String(),
		PhoneNumber: phoneNumber,
		Status:      airtime.NEW_CS,
		CreatedAt:   now,
	}
	if err := s.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Get returns the live session of the token.
func (s *Store) Get(ctx context.Context, token string) (*airtime.CheckoutSession, error) {
	if token == "" {
		return nil, airtime.ErrSessionNotFound
	}
	var sess airtime.CheckoutSession
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(bucketName)).Get([]byte(token))
		if v == nil {
			return airtime.ErrSessionNotFound
		}
		return json.Unmarshal(v, &sess)
	})
	if err != nil {
		if err == airtime.ErrSessionNotFound {
			return nil, err
		}
		return nil, errors.Wrap(err, "Failed get session")
	}
	if sess.Expired(s.now()) {
		return nil, airtime.ErrSessionExpired
	}
	return &sess, nil
}

// Save writes the session and moves its expiry ttl forward.
func (s *Store) Save(ctx context.Context, sess *airtime.CheckoutSession) error {
	if sess.Token == "" {
		return errors.New("empty session token")
	}
	sess.ExpiresAt = s.now().UTC().Add(s.ttl)
	b, err := json.Marshal(sess)
	if err != nil {
		return errors.Wrap(err, "Failed marshal session")
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Put([]byte(sess.Token), b)
	})
	return errors.Wrap(err, "Failed save session")
}

// Delete removes the session. Unknown tokens are not an error.
func (s *Store) Delete(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Delete([]byte(token))
	})
	return errors.Wrap(err, "Failed delete session")
}

// PurgeExpired deletes expired sessions and returns how many were removed.
func (s *Store) PurgeExpired(ctx context.Context) (int, error) {
	now := s.now()
	var removed int
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		var expired [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var sess airtime.CheckoutSession
			if err := json.Unmarshal(v, &sess); err != nil {
				s.l.Warn("drop undecodable session", zap.ByteString("token", k), zap.Error(err))
			} else if !sess.Expired(now) {
				return nil
			}
			expired = append(expired, append([]byte(nil), k...))
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range expired {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		removed = len(expired)
		return nil
	})
	if err != nil {
		return 0, errors.Wrap(err, "Failed purge sessions")
	}
	return removed, nil
}

// RunSweeper purges expired sessions every interval until ctx is done.
func (s *Store) RunSweeper(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := s.PurgeExpired(ctx)
			if err != nil {
				s.l.Error("sweep sessions", zap.Error(err))
				continue
			}
			if n > 0 {
				s.l.Debug("expired sessions removed", zap.Int("count", n))
			}
		}
	}
}
