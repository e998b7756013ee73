package receipt

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"go.etcd.io/bbolt"
)

const (
	bucketName = "receipts"
	slotKey    = "all"
)

// Store holds the ordered receipt list, newest first, and mirrors every
// mutation to durable storage by rewriting the whole collection
type Store interface {
	// Load returns all receipts, newest first. Absent or corrupt
	// storage yields an empty list, never an error.
	Load() ([]Receipt, error)

	// Append prepends a receipt and persists the collection
	Append(r Receipt) error

	// MarkAllSynced sets every status to synced, preserving order.
	// An empty store is a no-op.
	MarkAllSynced() error

	// Update applies a patch to the receipt with the given id
	Update(id string, patch Patch) error

	// Remove deletes the receipt with the given id
	Remove(id string) error

	// Close closes the underlying storage
	Close() error
}

// ErrInvalidPatch is returned when a patch would break a stored-record
// invariant: totals stay finite and non-negative, dates stay calendar
// days, statuses stay in the closed set.
var ErrInvalidPatch = errors.New("invalid receipt patch")

// Patch is a partial update to a stored receipt. Nil fields are left
// unchanged; the id and creation time are immutable.
type Patch struct {
	Date          *string  `json:"date,omitempty"`
	Merchant      *string  `json:"merchant,omitempty"`
	Total         *float64 `json:"total,omitempty"`
	Category      *string  `json:"category,omitempty"`
	PaymentSource *string  `json:"paymentSource,omitempty"`
	Status        *Status  `json:"status,omitempty"`
}

// BoltStore implements Store on a bbolt file. The whole collection lives
// under a single key as a JSON array, so every write is a full rewrite.
type BoltStore struct {
	db *bbolt.DB
}

// NewBoltStore opens (or creates) the store at path
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Load returns all receipts, newest first. A missing slot or a slot that
// does not parse as a receipt array is treated as empty history.
func (b *BoltStore) Load() ([]Receipt, error) {
	receipts := make([]Receipt, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(bucketName)).Get([]byte(slotKey))
		if data == nil {
			return nil
		}
		var parsed []Receipt
		if err := json.Unmarshal(data, &parsed); err != nil {
			// corrupt slot reads as empty, never a crash
			return nil
		}
		receipts = parsed
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading receipts: %w", err)
	}
	return receipts, nil
}

func (b *BoltStore) persist(tx *bbolt.Tx, receipts []Receipt) error {
	data, err := json.Marshal(receipts)
	if err != nil {
		return fmt.Errorf("marshaling receipts: %w", err)
	}
	return tx.Bucket([]byte(bucketName)).Put([]byte(slotKey), data)
}

func (b *BoltStore) mutate(fn func([]Receipt) ([]Receipt, error)) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		receipts := make([]Receipt, 0)
		if data := tx.Bucket([]byte(bucketName)).Get([]byte(slotKey)); data != nil {
			// tolerate corruption the same way Load does
			_ = json.Unmarshal(data, &receipts)
		}
		updated, err := fn(receipts)
		if err != nil {
			return err
		}
		return b.persist(tx, updated)
	})
}

// Append prepends r and persists the whole collection
func (b *BoltStore) Append(r Receipt) error {
	return b.mutate(func(receipts []Receipt) ([]Receipt, error) {
		return append([]Receipt{r}, receipts...), nil
	})
}

// MarkAllSynced flips every status to synced, preserving order
func (b *BoltStore) MarkAllSynced() error {
	return b.mutate(func(receipts []Receipt) ([]Receipt, error) {
		for i := range receipts {
			receipts[i].Status = StatusSynced
		}
		return receipts, nil
	})
}

// Update applies patch to the receipt with the given id
func (b *BoltStore) Update(id string, patch Patch) error {
	return b.mutate(func(receipts []Receipt) ([]Receipt, error) {
		for i := range receipts {
			if receipts[i].ID != id {
				continue
			}
			if err := applyPatch(&receipts[i], patch); err != nil {
				return nil, err
			}
			return receipts, nil
		}
		return nil, fmt.Errorf("receipt not found: %s", id)
	})
}

// Remove deletes the receipt with the given id
func (b *BoltStore) Remove(id string) error {
	return b.mutate(func(receipts []Receipt) ([]Receipt, error) {
		for i := range receipts {
			if receipts[i].ID == id {
				return append(receipts[:i], receipts[i+1:]...), nil
			}
		}
		return nil, fmt.Errorf("receipt not found: %s", id)
	})
}

// validate rejects patch values that a stored record must never hold.
// Validation runs before any field is assigned so a bad patch leaves
// the record untouched.
func (p Patch) validate() error {
	if p.Date != nil {
		if _, err := time.Parse("2006-01-02", *p.Date); err != nil {
			return fmt.Errorf("%w: date %q is not a YYYY-MM-DD calendar day", ErrInvalidPatch, *p.Date)
		}
	}
	if p.Total != nil {
		if math.IsNaN(*p.Total) || math.IsInf(*p.Total, 0) || *p.Total < 0 {
			return fmt.Errorf("%w: total must be finite and non-negative", ErrInvalidPatch)
		}
	}
	if p.Status != nil {
		switch *p.Status {
		case StatusPending, StatusSynced, StatusError:
		default:
			return fmt.Errorf("%w: unknown status %q", ErrInvalidPatch, *p.Status)
		}
	}
	return nil
}

func applyPatch(r *Receipt, patch Patch) error {
	if err := patch.validate(); err != nil {
		return err
	}
	if patch.Date != nil {
		r.Date = *patch.Date
	}
	if patch.Merchant != nil {
		r.Merchant = *patch.Merchant
	}
	if patch.Total != nil {
		r.Total = *patch.Total
	}
	if patch.Category != nil {
		r.Category = CanonicalCategory(*patch.Category)
	}
	if patch.PaymentSource != nil {
		r.PaymentSource = *patch.PaymentSource
	}
	if patch.Status != nil {
		r.Status = *patch.Status
	}
	return nil
}

// Close closes the database
func (b *BoltStore) Close() error {
	return b.db.Close()
}
