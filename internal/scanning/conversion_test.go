package scanning

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func encodePNG() []byte {
	var buf bytes.Buffer
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	Expect(png.Encode(&buf, img)).To(Succeed())
	return buf.Bytes()
}

func encodeGIF() []byte {
	var buf bytes.Buffer
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	Expect(gif.Encode(&buf, img, nil)).To(Succeed())
	return buf.Bytes()
}

var _ = Describe("DecodeDataURL", func() {
	var (
		input string
		img   EncodedImage
		err   error
	)

	JustBeforeEach(func() {
		img, err = DecodeDataURL(input)
	})

	When("the payload carries a data URL prefix", func() {
		BeforeEach(func() {
			input = "data:image/png;base64," + base64.StdEncoding.EncodeToString(encodePNG())
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("strips exactly the prefix", func() {
			Expect(img.Data).To(Equal(encodePNG()))
		})

		It("keeps the declared MIME type", func() {
			Expect(img.MIME).To(Equal("image/png"))
		})
	})

	When("the payload is bare base64", func() {
		BeforeEach(func() {
			input = base64.StdEncoding.EncodeToString(encodePNG())
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("sniffs the MIME type from the bytes", func() {
			Expect(img.MIME).To(Equal("image/png"))
		})
	})

	When("the MIME type is not an image", func() {
		BeforeEach(func() {
			input = "data:text/plain;base64," + base64.StdEncoding.EncodeToString([]byte("hello"))
		})

		It("rejects the upload", func() {
			Expect(err).To(MatchError(ErrUnsupportedType))
		})
	})

	When("the payload is not base64", func() {
		BeforeEach(func() {
			input = "data:image/png;base64,!!!not-base64!!!"
		})

		It("returns the error", func() {
			Expect(err).To(HaveOccurred())
		})
	})

	When("the payload is empty", func() {
		BeforeEach(func() {
			input = "data:image/png;base64,"
		})

		It("returns the error", func() {
			Expect(err).To(HaveOccurred())
		})
	})
})

var _ = Describe("Normalize", func() {
	When("the image is already PNG", func() {
		It("passes it through untouched", func() {
			in := EncodedImage{MIME: "image/png", Data: encodePNG()}
			out, err := Normalize(in)
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(Equal(in))
		})
	})

	When("the image is already JPEG", func() {
		It("passes it through untouched", func() {
			var buf bytes.Buffer
			img := image.NewRGBA(image.Rect(0, 0, 4, 4))
			Expect(jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80})).To(Succeed())
			in := EncodedImage{MIME: "image/jpeg", Data: buf.Bytes()}
			out, err := Normalize(in)
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(Equal(in))
		})
	})

	When("the image is another decodable format", func() {
		It("re-encodes it as JPEG", func() {
			out, err := Normalize(EncodedImage{MIME: "image/gif", Data: encodeGIF()})
			Expect(err).NotTo(HaveOccurred())
			Expect(out.MIME).To(Equal("image/jpeg"))

			_, err = jpeg.Decode(bytes.NewReader(out.Data))
			Expect(err).NotTo(HaveOccurred())
		})
	})

	When("the bytes do not decode", func() {
		It("returns the error", func() {
			_, err := Normalize(EncodedImage{MIME: "image/webp", Data: []byte("garbage")})
			Expect(err).To(HaveOccurred())
		})
	})
})
