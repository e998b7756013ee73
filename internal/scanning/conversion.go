package scanning

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif" // register GIF decoder
	"image/jpeg"
	"image/png"
	"net/http"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// ErrUnsupportedType is returned for uploads that are not an image or a
// PDF; the caller surfaces it as a notice with no state change.
var ErrUnsupportedType = errors.New("unsupported file type: expected an image or PDF")

// jpegQuality matches the capture path's snapshot encoding
const jpegQuality = 80

// DecodeDataURL turns a self-describing encoded image string into an
// EncodedImage. It accepts either a data URL ("data:image/png;base64,...")
// or the bare base64 payload; exactly the metadata prefix is stripped.
// Non-image, non-PDF MIME types are rejected with ErrUnsupportedType.
func DecodeDataURL(s string) (EncodedImage, error) {
	s = strings.TrimSpace(s)
	mime := ""
	if rest, ok := strings.CutPrefix(s, "data:"); ok {
		meta, payload, found := strings.Cut(rest, ",")
		if !found {
			return EncodedImage{}, fmt.Errorf("malformed data URL")
		}
		mime = strings.TrimSuffix(meta, ";base64")
		s = payload
	}

	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return EncodedImage{}, fmt.Errorf("decoding base64 payload: %w", err)
	}
	if len(data) == 0 {
		return EncodedImage{}, fmt.Errorf("empty image payload")
	}

	mime = strings.ToLower(strings.TrimSpace(mime))
	if mime == "" {
		mime = http.DetectContentType(data)
	}
	if !strings.HasPrefix(mime, "image/") && mime != "application/pdf" {
		return EncodedImage{}, ErrUnsupportedType
	}

	return EncodedImage{MIME: mime, Data: data}, nil
}

// Normalize converts any accepted input into a format both the browser
// and the extraction service understand: PDFs are rendered to PNG,
// HEIC/HEIF phone photos are decoded, PNG and JPEG pass through, and
// everything else is re-encoded as JPEG at the capture quality.
func Normalize(img EncodedImage) (EncodedImage, error) {
	switch {
	case img.MIME == "application/pdf":
		data, err := pdfToPNG(img.Data)
		if err != nil {
			return EncodedImage{}, err
		}
		return EncodedImage{MIME: "image/png", Data: data}, nil
	case isHEIC(img.Data) || isHEICMime(img.MIME):
		decoded, err := heic.Decode(bytes.NewReader(img.Data))
		if err != nil {
			return EncodedImage{}, fmt.Errorf("decoding HEIC image: %w", err)
		}
		data, err := encodeJPEG(decoded)
		if err != nil {
			return EncodedImage{}, err
		}
		return EncodedImage{MIME: "image/jpeg", Data: data}, nil
	case img.MIME == "image/png", img.MIME == "image/jpeg":
		return img, nil
	default:
		decoded, _, err := image.Decode(bytes.NewReader(img.Data))
		if err != nil {
			return EncodedImage{}, fmt.Errorf("decoding image: %w", err)
		}
		data, err := encodeJPEG(decoded)
		if err != nil {
			return EncodedImage{}, err
		}
		return EncodedImage{MIME: "image/jpeg", Data: data}, nil
	}
}

func encodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encoding JPEG: %w", err)
	}
	return buf.Bytes(), nil
}

// pdfToPNG renders the first page; receipts are single page
func pdfToPNG(pdfData []byte) ([]byte, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// isHEIC checks for the ftyp box brands iPhones produce
func isHEIC(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heif", "mif1", "msf1":
		return true
	}
	return false
}

func isHEICMime(mime string) bool {
	mime = strings.ToLower(strings.TrimSpace(mime))
	return strings.Contains(mime, "heic") || strings.Contains(mime, "heif")
}
