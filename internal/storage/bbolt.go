package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"github.com/BryanChi/SuperGPT-Website/internal/license"
)

const (
	bucketLicenses = "licenses"
	bucketPayments = "payments"
)

// BoltStore persists records as JSON values in a bbolt file. Every write is
// a single bbolt transaction, which gives conditional creates and per-key
// updates for free.
type BoltStore struct {
	db *bbolt.DB
}

var _ license.Store = (*BoltStore)(nil)

// OpenBolt opens or creates the database file at path.
func OpenBolt(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create bolt directory: %w", err)
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt database: %w", err)
	}

	st := &BoltStore{db: db}
	if err := st.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{bucketLicenses, bucketPayments} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create bolt buckets: %w", err)
	}
	return st, nil
}

func (s *BoltStore) Close() error { return s.db.Close() }

func (s *BoltStore) Ping(_ context.Context) error {
	if err := s.db.View(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte(bucketLicenses)) == nil {
			return errors.New("licenses bucket missing")
		}
		return nil
	}); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// update runs fn in a write transaction. Not-found, already-exists and
// passthrough errors reach the caller as is; anything else is a storage fault.
func (s *BoltStore) update(op string, fn func(tx *bbolt.Tx) error) error {
	err := s.db.Update(fn)
	if err == nil {
		return nil
	}
	if derr, ok := domainError(err); ok {
		return derr
	}
	return unavailable(op, err)
}

func (s *BoltStore) view(op string, fn func(tx *bbolt.Tx) error) error {
	err := s.db.View(fn)
	if err == nil {
		return nil
	}
	if derr, ok := domainError(err); ok {
		return derr
	}
	return unavailable(op, err)
}

func (s *BoltStore) GetLicense(_ context.Context, key string) (license.License, error) {
	var lic license.License
	err := s.view("get license", func(tx *bbolt.Tx) error {
		return getJSON(tx, bucketLicenses, key, &lic)
	})
	return lic, err
}

func (s *BoltStore) CreateLicense(_ context.Context, lic license.License) error {
	return s.update("create license", func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketLicenses))
		if b.Get([]byte(lic.Key)) != nil {
			return license.ErrAlreadyExists
		}
		return putJSON(tx, bucketLicenses, lic.Key, lic)
	})
}

func (s *BoltStore) PutLicense(_ context.Context, lic license.License) error {
	return s.update("put license", func(tx *bbolt.Tx) error {
		return putJSON(tx, bucketLicenses, lic.Key, lic)
	})
}

func (s *BoltStore) UpdateLicense(_ context.Context, key string, fn func(*license.License) error) (license.License, error) {
	var updated license.License
	err := s.update("update license", func(tx *bbolt.Tx) error {
		var lic license.License
		if err := getJSON(tx, bucketLicenses, key, &lic); err != nil {
			return err
		}
		if err := fn(&lic); err != nil {
			return passthrough{err}
		}
		lic.Key = key
		updated = lic
		return putJSON(tx, bucketLicenses, key, lic)
	})
	if err != nil {
		return license.License{}, err
	}
	return updated, nil
}

func (s *BoltStore) ListLicenses(ctx context.Context) ([]license.License, error) {
	return s.FindLicenses(ctx, func(license.License) bool { return true })
}

func (s *BoltStore) FindLicenses(_ context.Context, match func(license.License) bool) ([]license.License, error) {
	out := []license.License{}
	err := s.view("list licenses", func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketLicenses)).ForEach(func(_, v []byte) error {
			var lic license.License
			if err := json.Unmarshal(v, &lic); err != nil {
				return err
			}
			if match(lic) {
				out = append(out, lic)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortLicenses(out)
	return out, nil
}

func (s *BoltStore) GetPayment(_ context.Context, transactionID string) (license.Payment, error) {
	var p license.Payment
	err := s.view("get payment", func(tx *bbolt.Tx) error {
		return getJSON(tx, bucketPayments, transactionID, &p)
	})
	return p, err
}

func (s *BoltStore) CreatePayment(_ context.Context, p license.Payment) error {
	return s.update("create payment", func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketPayments))
		if b.Get([]byte(p.TransactionID)) != nil {
			return license.ErrAlreadyExists
		}
		return putJSON(tx, bucketPayments, p.TransactionID, p)
	})
}

func (s *BoltStore) UpdatePayment(_ context.Context, transactionID string, fn func(*license.Payment) error) (license.Payment, error) {
	var updated license.Payment
	err := s.update("update payment", func(tx *bbolt.Tx) error {
		var p license.Payment
		if err := getJSON(tx, bucketPayments, transactionID, &p); err != nil {
			return err
		}
		if err := fn(&p); err != nil {
			return passthrough{err}
		}
		p.TransactionID = transactionID
		updated = p
		return putJSON(tx, bucketPayments, transactionID, p)
	})
	if err != nil {
		return license.Payment{}, err
	}
	return updated, nil
}

func (s *BoltStore) DeletePayment(_ context.Context, transactionID string) error {
	return s.update("delete payment", func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketPayments))
		if b.Get([]byte(transactionID)) == nil {
			return license.ErrNotFound
		}
		return b.Delete([]byte(transactionID))
	})
}

func (s *BoltStore) ListPayments(_ context.Context) ([]license.Payment, error) {
	out := []license.Payment{}
	err := s.view("list payments", func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketPayments)).ForEach(func(_, v []byte) error {
			var p license.Payment
			if err := json.Unmarshal(v, &p); err != nil {
				return err
			}
			out = append(out, p)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortPayments(out)
	return out, nil
}

func getJSON(tx *bbolt.Tx, bucket, key string, v any) error {
	raw := tx.Bucket([]byte(bucket)).Get([]byte(key))
	if raw == nil {
		return license.ErrNotFound
	}
	return json.Unmarshal(raw, v)
}

func putJSON(tx *bbolt.Tx, bucket, key string, v any) error {
	buf, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return tx.Bucket([]byte(bucket)).Put([]byte(key), buf)
}
