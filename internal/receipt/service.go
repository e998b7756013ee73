package receipt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MWInnova/scan-receipts/internal/flow"
	"github.com/MWInnova/scan-receipts/internal/scanning"
)

// IDGenerator generates unique IDs for receipts
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// uuidGenerator is collision resistant, unlike timestamp-based IDs
type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// ErrEmptyUpload is returned when a scan request carries no image
var ErrEmptyUpload = errors.New("no image provided")

// ConfirmRequest carries the edit form's fields on confirmation. Total
// arrives as the form's raw text; unparsable amounts default to 0.
type ConfirmRequest struct {
	Date          string `json:"date"`
	Merchant      string `json:"merchant"`
	Total         string `json:"total"`
	Category      string `json:"category"`
	PaymentSource string `json:"paymentSource"`
}

// ViewState is a snapshot of the controller for the UI
type ViewState struct {
	State flow.State `json:"state"`
	Draft *Draft     `json:"draft,omitempty"`
}

// Service orchestrates capture, extraction, review and persistence. The
// flow machine gates which operations are reachable, so at most one
// extraction or sync is in flight at a time.
type Service struct {
	mu           sync.Mutex
	store        Store
	scanner      scanning.Scanner
	images       ImageStore
	machine      *flow.Machine
	draft        *Draft
	pendingImage *scanning.EncodedImage
	idGenerator  IDGenerator
	timeSource   TimeSource
	syncDelay    time.Duration
}

// NewService creates a Service with the default ID generator and clock
func NewService(store Store, scanner scanning.Scanner, images ImageStore, syncDelay time.Duration) *Service {
	return NewServiceWithDeps(store, scanner, images, syncDelay, &uuidGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a Service with custom dependencies for testing
func NewServiceWithDeps(store Store, scanner scanning.Scanner, images ImageStore, syncDelay time.Duration, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		store:       store,
		scanner:     scanner,
		images:      images,
		machine:     flow.NewMachine(),
		idGenerator: idGen,
		timeSource:  timeSrc,
		syncDelay:   syncDelay,
	}
}

// State returns the current view state and draft, if any
func (s *Service) State() ViewState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ViewState{State: s.machine.Current(), Draft: s.draft}
}

// BeginCapture opens the capture overlay
func (s *Service) BeginCapture() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.Apply(flow.EventTapCapture)
}

// CancelCapture closes the capture overlay without producing an image.
// Camera access denial on the client lands here too.
func (s *Service) CancelCapture() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.Apply(flow.EventCaptureCancelled)
}

// ProcessImage takes the encoded image produced by either capture path,
// runs extraction, and moves to the review form with a fully-defaulted
// draft. Invalid uploads are rejected before any state change. On
// extraction failure the view returns to the list and the error
// propagates; no partial record is created.
func (s *Service) ProcessImage(ctx context.Context, encoded string) (*Draft, error) {
	if encoded == "" {
		return nil, ErrEmptyUpload
	}

	// reject bad payloads before touching the state machine
	img, err := scanning.DecodeDataURL(encoded)
	if err != nil {
		return nil, err
	}
	normalized, err := scanning.Normalize(img)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	// drag-and-drop skips the capture overlay
	if s.machine.Current() == flow.StateList {
		if err := s.machine.Apply(flow.EventTapCapture); err != nil {
			s.mu.Unlock()
			return nil, err
		}
	}
	if err := s.machine.Apply(flow.EventImageAcquired); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.mu.Unlock()

	fields, err := s.scanner.Extract(ctx, normalized)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		slog.Error("Failed to extract receipt fields", "size", len(normalized.Data), "error", err)
		s.machine.Apply(flow.EventExtractionFailed)
		return nil, fmt.Errorf("extracting receipt fields: %w", err)
	}

	// the draft handed to the review form is always fully populated
	draft := FillDefaults(Draft{
		Date:          fields.Date,
		Merchant:      fields.Merchant,
		Total:         fields.Total,
		Category:      fields.Category,
		PaymentSource: fields.PaymentSource,
	}, s.timeSource.Now())

	s.draft = &draft
	s.pendingImage = &normalized
	s.machine.Apply(flow.EventExtractionSucceeded)
	return s.draft, nil
}

// ConfirmDraft converts the reviewed draft into a pending record and
// appends it to the store, newest first
func (s *Service) ConfirmDraft(req ConfirmRequest) (*Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// confirming is only legal from the review form; the transition is
	// applied after the append succeeds so a storage failure keeps the
	// draft on screen for a retry or discard
	if _, err := flow.Next(s.machine.Current(), flow.EventConfirmDraft); err != nil {
		return nil, err
	}

	now := s.timeSource.Now()
	draft := FillDefaults(Draft{
		Date:          req.Date,
		Merchant:      req.Merchant,
		Total:         ParseTotal(req.Total),
		Category:      req.Category,
		PaymentSource: req.PaymentSource,
	}, now)

	r := Receipt{
		ID:            s.idGenerator.Generate(),
		Date:          draft.Date,
		Merchant:      draft.Merchant,
		Total:         draft.Total,
		Category:      Category(draft.Category),
		PaymentSource: draft.PaymentSource,
		Status:        StatusPending,
		CreatedAt:     now,
	}

	if s.pendingImage != nil {
		if _, err := s.images.Save(r.ID, s.pendingImage.MIME, s.pendingImage.Data); err != nil {
			// the image is display-only; the record stands without it
			slog.Warn("Failed to archive receipt image", "id", r.ID, "error", err)
		} else {
			r.ImageURL = fmt.Sprintf("/api/receipts/%s/image", r.ID)
		}
	}

	if err := s.store.Append(r); err != nil {
		s.images.Delete(r.ID)
		return nil, fmt.Errorf("saving receipt: %w", err)
	}

	s.machine.Apply(flow.EventConfirmDraft)
	s.draft = nil
	s.pendingImage = nil
	return &r, nil
}

// DiscardDraft drops the draft without touching the store
func (s *Service) DiscardDraft() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.machine.Apply(flow.EventDiscardDraft); err != nil {
		return err
	}
	s.draft = nil
	s.pendingImage = nil
	return nil
}

// ListReceipts returns all receipts, newest first
func (s *Service) ListReceipts() ([]Receipt, error) {
	receipts, err := s.store.Load()
	if err != nil {
		return nil, fmt.Errorf("listing receipts: %w", err)
	}
	return receipts, nil
}

// Sync simulates a network round trip, then marks every record synced.
// An empty store is a no-op with no state change. Once started the sync
// runs to completion; the machine makes a second one unreachable.
func (s *Service) Sync(ctx context.Context) error {
	s.mu.Lock()
	receipts, err := s.store.Load()
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("loading receipts: %w", err)
	}
	if len(receipts) == 0 {
		s.mu.Unlock()
		return nil
	}
	if err := s.machine.Apply(flow.EventTapSync); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	select {
	case <-time.After(s.syncDelay):
	case <-ctx.Done():
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	err = s.store.MarkAllSynced()
	s.machine.Apply(flow.EventSyncCompleted)
	if err != nil {
		return fmt.Errorf("marking receipts synced: %w", err)
	}
	return nil
}

// UpdateReceipt patches a stored receipt in place
func (s *Service) UpdateReceipt(id string, patch Patch) error {
	if err := s.store.Update(id, patch); err != nil {
		return fmt.Errorf("updating receipt: %w", err)
	}
	return nil
}

// DeleteReceipt removes a receipt and its archived image
func (s *Service) DeleteReceipt(id string) error {
	if err := s.store.Remove(id); err != nil {
		return fmt.Errorf("deleting receipt: %w", err)
	}
	if err := s.images.Delete(id); err != nil {
		slog.Warn("Failed to delete receipt image", "id", id, "error", err)
	}
	return nil
}

// GetReceiptImage returns the archived image for a receipt
func (s *Service) GetReceiptImage(id string) ([]byte, string, error) {
	data, mime, err := s.images.Get(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting receipt image: %w", err)
	}
	return data, mime, nil
}
