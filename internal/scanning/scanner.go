package scanning

import "context"

// EncodedImage is image bytes tagged with their MIME type, the single
// representation both capture paths converge on
type EncodedImage struct {
	MIME string
	Data []byte
}

// Fields is the raw extraction result. Any subset may be empty; the
// caller owns the defaulting policy that fills the gaps.
type Fields struct {
	Date          string  `json:"date"`
	Merchant      string  `json:"merchant"`
	Total         float64 `json:"total"`
	Category      string  `json:"category"`
	PaymentSource string  `json:"paymentSource"`
}

// Scanner extracts receipt fields from an image via an external
// vision-capable model. The capture pipeline runs Normalize before an
// image reaches a scanner, so implementations always see PNG or JPEG.
type Scanner interface {
	// Extract analyzes a normalized receipt image and returns the
	// extracted fields. Transport, schema and parse failures
	// propagate; they are never retried or swallowed.
	Extract(ctx context.Context, img EncodedImage) (Fields, error)
	// Close releases the scanner's resources
	Close() error
}
