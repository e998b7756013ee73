package scanning

import (
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// extractionPrompt is the fixed instruction sent with every image
const extractionPrompt = `Extract key receipt details from this image: the transaction date, the merchant name, the final total amount, a spending category, and the payment source (for example "Visa 1234" or "Cash"). If a detail is missing or unreadable, make a reasonable guess or leave the field empty.`

func categoryHint(categories []string) string {
	return fmt.Sprintf("Spending category, one of: %s", strings.Join(categories, ", "))
}

// responseSchema is the structured-output constraint sent to the model:
// five fields, with date, merchant, total and category required.
func responseSchema(categories []string) *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"date": {
				Type:        genai.TypeString,
				Description: "Transaction date in YYYY-MM-DD format",
			},
			"merchant": {
				Type:        genai.TypeString,
				Description: "Merchant or store name",
			},
			"total": {
				Type:        genai.TypeNumber,
				Description: "Final total amount",
			},
			"category": {
				Type:        genai.TypeString,
				Description: categoryHint(categories),
			},
			"paymentSource": {
				Type:        genai.TypeString,
				Description: "Payment source, e.g. card label or Cash",
			},
		},
		Required: []string{"date", "merchant", "total", "category"},
	}
}

// validationSchema mirrors responseSchema as JSON Schema so responses can
// be checked locally before use. Fields may be empty strings and any
// subset may be absent; only type violations fail.
const validationSchema = `{
  "type": "object",
  "properties": {
    "date": {"type": "string"},
    "merchant": {"type": "string"},
    "total": {"type": "number"},
    "category": {"type": "string"},
    "paymentSource": {"type": "string"}
  }
}`

var compiledSchema = jsonschema.MustCompileString("extraction.json", validationSchema)
