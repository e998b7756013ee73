package receipt

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/MWInnova/scan-receipts/internal/flow"
	"github.com/MWInnova/scan-receipts/internal/scanning"
)

// mockStore is an in-memory Store
type mockStore struct {
	receipts  []Receipt
	appendErr error
	syncErr   error
}

func (m *mockStore) Load() ([]Receipt, error) {
	return append([]Receipt{}, m.receipts...), nil
}

func (m *mockStore) Append(r Receipt) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	m.receipts = append([]Receipt{r}, m.receipts...)
	return nil
}

func (m *mockStore) MarkAllSynced() error {
	if m.syncErr != nil {
		return m.syncErr
	}
	for i := range m.receipts {
		m.receipts[i].Status = StatusSynced
	}
	return nil
}

func (m *mockStore) Update(id string, patch Patch) error {
	for i := range m.receipts {
		if m.receipts[i].ID == id {
			return applyPatch(&m.receipts[i], patch)
		}
	}
	return errors.New("receipt not found")
}

func (m *mockStore) Remove(id string) error {
	for i := range m.receipts {
		if m.receipts[i].ID == id {
			m.receipts = append(m.receipts[:i], m.receipts[i+1:]...)
			return nil
		}
	}
	return errors.New("receipt not found")
}

func (m *mockStore) Close() error { return nil }

// mockScanner returns canned extraction fields or an error and records
// the image it was handed
type mockScanner struct {
	fields    scanning.Fields
	err       error
	lastImage scanning.EncodedImage
}

func (m *mockScanner) Extract(ctx context.Context, img scanning.EncodedImage) (scanning.Fields, error) {
	m.lastImage = img
	if m.err != nil {
		return scanning.Fields{}, m.err
	}
	return m.fields, nil
}

func (m *mockScanner) Close() error { return nil }

// mockImages is an in-memory ImageStore
type mockImages struct {
	saved map[string][]byte
}

func newMockImages() *mockImages {
	return &mockImages{saved: make(map[string][]byte)}
}

func (m *mockImages) Save(id string, mime string, data []byte) (string, error) {
	m.saved[id] = data
	return id + ".jpg", nil
}

func (m *mockImages) Get(id string) ([]byte, string, error) {
	data, ok := m.saved[id]
	if !ok {
		return nil, "", errors.New("image not found")
	}
	return data, "image/jpeg", nil
}

func (m *mockImages) Delete(id string) error {
	delete(m.saved, id)
	return nil
}

type fixedIDGenerator struct{ id string }

func (g *fixedIDGenerator) Generate() string { return g.id }

type fixedTimeSource struct{ now time.Time }

func (t *fixedTimeSource) Now() time.Time { return t.now }

// pngDataURL builds a tiny valid PNG as a data URL
func pngDataURL() string {
	var buf bytes.Buffer
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

// gifDataURL builds a tiny valid GIF as a data URL
func gifDataURL() string {
	var buf bytes.Buffer
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	if err := gif.Encode(&buf, img, nil); err != nil {
		panic(err)
	}
	return "data:image/gif;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

var _ = Describe("Service", func() {
	var (
		store   *mockStore
		scanner *mockScanner
		images  *mockImages
		now     time.Time
		service *Service
	)

	BeforeEach(func() {
		store = &mockStore{}
		scanner = &mockScanner{
			fields: scanning.Fields{
				Date:          "2025-06-01",
				Merchant:      "Cafe Luna",
				Total:         12.5,
				Category:      "Food & Dining",
				PaymentSource: "Visa 1234",
			},
		}
		images = newMockImages()
		now = time.Date(2025, 6, 1, 10, 0, 0, 0, time.Local)
		service = NewServiceWithDeps(store, scanner, images, 0,
			&fixedIDGenerator{id: "fixed-id"}, &fixedTimeSource{now: now})
	})

	Describe("ProcessImage", func() {
		When("the upload is a valid image", func() {
			var (
				draft *Draft
				err   error
			)

			JustBeforeEach(func() {
				Expect(service.BeginCapture()).To(Succeed())
				draft, err = service.ProcessImage(context.Background(), pngDataURL())
			})

			It("succeeds", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("returns the extracted draft", func() {
				Expect(draft.Merchant).To(Equal("Cafe Luna"))
				Expect(draft.Total).To(Equal(12.5))
			})

			It("moves to the editing state", func() {
				Expect(service.State().State).To(Equal(flow.StateEditing))
			})

			It("exposes the draft in the view state", func() {
				Expect(service.State().Draft).To(Equal(draft))
			})
		})

		When("the upload needs re-encoding", func() {
			It("hands the scanner the normalized JPEG", func() {
				_, err := service.ProcessImage(context.Background(), gifDataURL())
				Expect(err).NotTo(HaveOccurred())
				Expect(scanner.lastImage.MIME).To(Equal("image/jpeg"))
			})

			It("archives the normalized bytes on confirm", func() {
				_, err := service.ProcessImage(context.Background(), gifDataURL())
				Expect(err).NotTo(HaveOccurred())

				record, err := service.ConfirmDraft(ConfirmRequest{})
				Expect(err).NotTo(HaveOccurred())

				_, decodeErr := jpeg.Decode(bytes.NewReader(images.saved[record.ID]))
				Expect(decodeErr).NotTo(HaveOccurred())
			})
		})

		When("the upload skipped the capture overlay", func() {
			It("still reaches editing from the list", func() {
				_, err := service.ProcessImage(context.Background(), pngDataURL())
				Expect(err).NotTo(HaveOccurred())
				Expect(service.State().State).To(Equal(flow.StateEditing))
			})
		})

		When("the upload is not an image", func() {
			var err error

			JustBeforeEach(func() {
				payload := "data:text/plain;base64," + base64.StdEncoding.EncodeToString([]byte("hello"))
				_, err = service.ProcessImage(context.Background(), payload)
			})

			It("rejects the upload", func() {
				Expect(err).To(MatchError(scanning.ErrUnsupportedType))
			})

			It("does not change the state", func() {
				Expect(service.State().State).To(Equal(flow.StateList))
			})

			It("creates no record", func() {
				Expect(store.receipts).To(BeEmpty())
			})
		})

		When("extraction fails", func() {
			var err error

			BeforeEach(func() {
				scanner.err = errors.New("model unavailable")
			})

			JustBeforeEach(func() {
				Expect(service.BeginCapture()).To(Succeed())
				_, err = service.ProcessImage(context.Background(), pngDataURL())
			})

			It("propagates the error", func() {
				Expect(err).To(HaveOccurred())
			})

			It("returns to the list state", func() {
				Expect(service.State().State).To(Equal(flow.StateList))
			})

			It("creates no record", func() {
				Expect(store.receipts).To(BeEmpty())
			})
		})
	})

	Describe("ConfirmDraft", func() {
		BeforeEach(func() {
			Expect(service.BeginCapture()).To(Succeed())
			_, err := service.ProcessImage(context.Background(), pngDataURL())
			Expect(err).NotTo(HaveOccurred())
		})

		When("the form fields are complete", func() {
			var (
				record *Receipt
				err    error
			)

			JustBeforeEach(func() {
				record, err = service.ConfirmDraft(ConfirmRequest{
					Date:          "2025-06-01",
					Merchant:      "Cafe Luna",
					Total:         "12.50",
					Category:      "Food & Dining",
					PaymentSource: "Visa 1234",
				})
			})

			It("succeeds", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("stores a pending record with the generated id", func() {
				Expect(record.ID).To(Equal("fixed-id"))
				Expect(record.Status).To(Equal(StatusPending))
				Expect(store.receipts).To(HaveLen(1))
			})

			It("archives the captured image", func() {
				Expect(images.saved).To(HaveKey("fixed-id"))
				Expect(record.ImageURL).To(Equal("/api/receipts/fixed-id/image"))
			})

			It("returns to the list state without a draft", func() {
				Expect(service.State().State).To(Equal(flow.StateList))
				Expect(service.State().Draft).To(BeNil())
			})
		})

		When("the total text is unparsable", func() {
			It("stores a zero total", func() {
				record, err := service.ConfirmDraft(ConfirmRequest{Total: "12.x"})
				Expect(err).NotTo(HaveOccurred())
				Expect(record.Total).To(Equal(0.0))
			})
		})

		When("form fields are empty", func() {
			It("fills every default", func() {
				record, err := service.ConfirmDraft(ConfirmRequest{})
				Expect(err).NotTo(HaveOccurred())
				Expect(record.Date).To(Equal("2025-06-01"))
				Expect(record.Merchant).To(Equal("Unknown Merchant"))
				Expect(record.Category).To(Equal(CategoryOther))
				Expect(record.PaymentSource).To(Equal("Unknown"))
			})
		})

		When("the store append fails", func() {
			BeforeEach(func() {
				store.appendErr = errors.New("disk full")
			})

			It("keeps the draft on screen for a retry", func() {
				_, err := service.ConfirmDraft(ConfirmRequest{})
				Expect(err).To(HaveOccurred())
				Expect(service.State().State).To(Equal(flow.StateEditing))
				Expect(service.State().Draft).NotTo(BeNil())
			})

			It("rolls back the archived image", func() {
				_, err := service.ConfirmDraft(ConfirmRequest{})
				Expect(err).To(HaveOccurred())
				Expect(images.saved).NotTo(HaveKey("fixed-id"))
			})

			It("lets the retry succeed once storage recovers", func() {
				_, err := service.ConfirmDraft(ConfirmRequest{})
				Expect(err).To(HaveOccurred())

				store.appendErr = nil
				record, err := service.ConfirmDraft(ConfirmRequest{})
				Expect(err).NotTo(HaveOccurred())
				Expect(record.Status).To(Equal(StatusPending))
				Expect(service.State().State).To(Equal(flow.StateList))
			})

			It("still allows discarding the draft", func() {
				_, err := service.ConfirmDraft(ConfirmRequest{})
				Expect(err).To(HaveOccurred())
				Expect(service.DiscardDraft()).To(Succeed())
				Expect(service.State().State).To(Equal(flow.StateList))
			})
		})

		When("there is no draft under review", func() {
			It("rejects a second confirmation", func() {
				_, err := service.ConfirmDraft(ConfirmRequest{})
				Expect(err).NotTo(HaveOccurred())
				_, err = service.ConfirmDraft(ConfirmRequest{})
				Expect(err).To(HaveOccurred())
			})
		})
	})

	Describe("DiscardDraft", func() {
		BeforeEach(func() {
			Expect(service.BeginCapture()).To(Succeed())
			_, err := service.ProcessImage(context.Background(), pngDataURL())
			Expect(err).NotTo(HaveOccurred())
		})

		It("drops the draft with no store mutation", func() {
			Expect(service.DiscardDraft()).To(Succeed())
			Expect(service.State().State).To(Equal(flow.StateList))
			Expect(service.State().Draft).To(BeNil())
			Expect(store.receipts).To(BeEmpty())
		})
	})

	Describe("Sync", func() {
		When("the store is empty", func() {
			It("is a no-op", func() {
				Expect(service.Sync(context.Background())).To(Succeed())
				Expect(service.State().State).To(Equal(flow.StateList))
			})
		})

		When("the store has records", func() {
			BeforeEach(func() {
				store.receipts = []Receipt{
					makeReceipt("r1", "First"),
					makeReceipt("r2", "Second"),
				}
			})

			It("marks every record synced and returns to the list", func() {
				Expect(service.Sync(context.Background())).To(Succeed())
				for _, r := range store.receipts {
					Expect(r.Status).To(Equal(StatusSynced))
				}
				Expect(service.State().State).To(Equal(flow.StateList))
			})
		})
	})

	Describe("CancelCapture", func() {
		It("returns to the list from the capture overlay", func() {
			Expect(service.BeginCapture()).To(Succeed())
			Expect(service.CancelCapture()).To(Succeed())
			Expect(service.State().State).To(Equal(flow.StateList))
		})
	})

	Describe("DeleteReceipt", func() {
		BeforeEach(func() {
			store.receipts = []Receipt{makeReceipt("r1", "First")}
			images.saved["r1"] = []byte("img")
		})

		It("removes the record and its image", func() {
			Expect(service.DeleteReceipt("r1")).To(Succeed())
			Expect(store.receipts).To(BeEmpty())
			Expect(images.saved).NotTo(HaveKey("r1"))
		})
	})
})
