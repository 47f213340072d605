package passcode

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestPasscode(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Passcode")
}

var _ = Describe("Generate", func() {
	It("should produce an 8-character uppercase alphanumeric passcode", func() {
		code, hash, err := Generate()
		Expect(err).NotTo(HaveOccurred())
		Expect(code).To(HaveLen(Length))
		Expect(code).To(MatchRegexp(`^[A-Z0-9]{8}$`))
		Expect(hash).NotTo(BeEmpty())
		Expect(hash).NotTo(ContainSubstring(code))
	})

	It("should produce hashes that verify against their own passcode", func() {
		code, hash, err := Generate()
		Expect(err).NotTo(HaveOccurred())
		Expect(Verify(code, hash)).To(BeTrue())
	})

	It("should produce distinct passcodes", func() {
		a, _, err := Generate()
		Expect(err).NotTo(HaveOccurred())
		b, _, err := Generate()
		Expect(err).NotTo(HaveOccurred())
		Expect(a).NotTo(Equal(b))
	})
})

var _ = Describe("Verify", func() {
	It("should reject a wrong passcode", func() {
		_, hash, err := Generate()
		Expect(err).NotTo(HaveOccurred())
		Expect(Verify("WRONGPWD", hash)).To(BeFalse())
	})

	It("should treat malformed input as a mismatch, not an error", func() {
		Expect(Verify("ABCD1234", "not-a-bcrypt-hash")).To(BeFalse())
		Expect(Verify("", "")).To(BeFalse())
	})
})
