package receipt

import (
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LocalImageStore", func() {
	var (
		tmpDir string
		store  *LocalImageStore
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		var err error
		store, err = NewLocalImageStore(tmpDir)
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("Save", func() {
		It("writes the image with an extension matching the MIME type", func() {
			filename, err := store.Save("abc", "image/png", []byte("png bytes"))
			Expect(err).NotTo(HaveOccurred())
			Expect(filename).To(Equal("abc.png"))
			Expect(filepath.Join(tmpDir, "abc.png")).To(BeAnExistingFile())
		})

		It("falls back to jpg for unknown MIME types", func() {
			filename, err := store.Save("abc", "image/webp", []byte("bytes"))
			Expect(err).NotTo(HaveOccurred())
			Expect(filename).To(Equal("abc.jpg"))
		})
	})

	Describe("Get", func() {
		When("the image exists", func() {
			BeforeEach(func() {
				_, err := store.Save("abc", "image/png", []byte("png bytes"))
				Expect(err).NotTo(HaveOccurred())
			})

			It("returns the data and MIME type", func() {
				data, mime, err := store.Get("abc")
				Expect(err).NotTo(HaveOccurred())
				Expect(data).To(Equal([]byte("png bytes")))
				Expect(mime).To(Equal("image/png"))
			})
		})

		When("the image does not exist", func() {
			It("returns the error", func() {
				_, _, err := store.Get("missing")
				Expect(err).To(HaveOccurred())
			})
		})
	})

	Describe("Delete", func() {
		It("removes a saved image", func() {
			_, err := store.Save("abc", "image/jpeg", []byte("bytes"))
			Expect(err).NotTo(HaveOccurred())

			Expect(store.Delete("abc")).To(Succeed())
			Expect(filepath.Join(tmpDir, "abc.jpg")).NotTo(BeAnExistingFile())
		})

		It("is a no-op for a missing image", func() {
			Expect(store.Delete("missing")).To(Succeed())
		})
	})
})
