package id_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/banabets/else/common/id"
)

var _ = Describe("Generator", func() {
	It("produces strictly increasing ids", func() {
		gen, err := id.NewGenerator(1)
		Expect(err).NotTo(HaveOccurred())

		prev := gen.Next()
		for i := 0; i < 100; i++ {
			next := gen.Next()
			Expect(next).To(BeNumerically(">", prev))
			prev = next
		}
	})

	It("rejects node ids out of range", func() {
		_, err := id.NewGenerator(4096)
		Expect(err).To(HaveOccurred())
	})
})
