package receipt

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Status tracks whether a receipt has been submitted by the sync action
type Status string

const (
	StatusPending Status = "pending"
	StatusSynced  Status = "synced"
	StatusError   Status = "error"
)

// Category is one of the closed set of spending categories
type Category string

const (
	CategoryFoodDining    Category = "Food & Dining"
	CategoryTransport     Category = "Transport"
	CategoryShopping      Category = "Shopping"
	CategoryUtilities     Category = "Utilities"
	CategoryEntertainment Category = "Entertainment"
	CategoryOther         Category = "Other"
)

var allCategories = []Category{
	CategoryFoodDining,
	CategoryTransport,
	CategoryShopping,
	CategoryUtilities,
	CategoryEntertainment,
	CategoryOther,
}

// Categories returns the allowed category names
func Categories() []string {
	result := make([]string, len(allCategories))
	for i, c := range allCategories {
		result[i] = string(c)
	}
	return result
}

// CanonicalCategory maps free text onto the closed category set.
// Unknown or empty input maps to Other.
func CanonicalCategory(input string) Category {
	normalized := strings.ToLower(strings.TrimSpace(input))
	if normalized == "" {
		return CategoryOther
	}

	synonyms := map[string]Category{
		"food":            CategoryFoodDining,
		"dining":          CategoryFoodDining,
		"food and dining": CategoryFoodDining,
		"restaurant":      CategoryFoodDining,
		"groceries":       CategoryFoodDining,
		"transportation":  CategoryTransport,
		"travel":          CategoryTransport,
		"gas":             CategoryTransport,
		"retail":          CategoryShopping,
		"utility":         CategoryUtilities,
		"bills":           CategoryUtilities,
	}
	if c, ok := synonyms[normalized]; ok {
		return c
	}

	for _, c := range allCategories {
		if normalized == strings.ToLower(string(c)) {
			return c
		}
	}
	return CategoryOther
}

// Receipt is a confirmed, persisted receipt entry
type Receipt struct {
	ID            string    `json:"id"`
	Date          string    `json:"date"` // ISO 8601 calendar day (YYYY-MM-DD)
	Merchant      string    `json:"merchant"`
	Total         float64   `json:"total"`
	Category      Category  `json:"category"`
	PaymentSource string    `json:"paymentSource"`
	Status        Status    `json:"status"`
	ImageURL      string    `json:"imageUrl,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Draft is an unconfirmed receipt under user review. Fields may be empty;
// FillDefaults fills the gaps. Drafts are never persisted directly.
type Draft struct {
	Date          string  `json:"date"`
	Merchant      string  `json:"merchant"`
	Total         float64 `json:"total"`
	Category      string  `json:"category"`
	PaymentSource string  `json:"paymentSource"`
	ImageURL      string  `json:"imageUrl,omitempty"`
}

// Sentinels used when extraction or the edit form leaves a field empty
const (
	UnknownMerchant      = "Unknown Merchant"
	UnknownPaymentSource = "Unknown"
)

// FillDefaults is the single defaulting policy shared by the extraction
// client and the edit form confirm path. Every field of the result is
// populated: a missing or malformed date becomes the current local
// calendar day, missing merchant and payment source become their
// sentinels, a non-finite or negative total becomes 0, and the category
// is canonicalized into the closed set.
func FillDefaults(d Draft, now time.Time) Draft {
	if _, err := time.Parse("2006-01-02", d.Date); err != nil {
		d.Date = now.Format("2006-01-02")
	}
	d.Merchant = strings.TrimSpace(d.Merchant)
	if d.Merchant == "" {
		d.Merchant = UnknownMerchant
	}
	if math.IsNaN(d.Total) || math.IsInf(d.Total, 0) || d.Total < 0 {
		d.Total = 0
	}
	d.Category = string(CanonicalCategory(d.Category))
	d.PaymentSource = strings.TrimSpace(d.PaymentSource)
	if d.PaymentSource == "" {
		d.PaymentSource = UnknownPaymentSource
	}
	return d
}

// ParseTotal parses a user-entered amount. Unparsable or negative text
// yields 0, mirroring the defaulting policy.
func ParseTotal(text string) float64 {
	text = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(text), "$"))
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0
	}
	return f
}
