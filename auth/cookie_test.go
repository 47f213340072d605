package auth

import (
	"net/http/httptest"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/openrange/balancer/api"
)

func TestAuth(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Auth")
}

var _ = BeforeSuite(func() {
	Init("test-cookie-secret")
})

var _ = Describe("TeamFromRequest", func() {
	It("should round-trip a team identity through the signed cookie", func() {
		cookie, err := NewTeamCookie("team42")
		Expect(err).NotTo(HaveOccurred())

		req := httptest.NewRequest("GET", "/", nil)
		req.AddCookie(cookie)

		team, err := TeamFromRequest(req)
		Expect(err).NotTo(HaveOccurred())
		Expect(team).To(Equal("team42"))
	})

	It("should fail when no cookie is present", func() {
		req := httptest.NewRequest("GET", "/", nil)
		_, err := TeamFromRequest(req)
		Expect(err).To(MatchError(ErrNoSession))
	})

	It("should reject a tampered cookie value", func() {
		cookie, err := NewTeamCookie("team42")
		Expect(err).NotTo(HaveOccurred())
		cookie.Value = "x" + cookie.Value

		req := httptest.NewRequest("GET", "/", nil)
		req.AddCookie(cookie)

		_, err = TeamFromRequest(req)
		Expect(err).To(MatchError(ErrMalformedIdentity))
	})

	It("should reject an identity that does not match the team naming pattern", func() {
		cookie, err := NewTeamCookie("Bad_Team!")
		Expect(err).NotTo(HaveOccurred())

		req := httptest.NewRequest("GET", "/", nil)
		req.AddCookie(cookie)

		_, err = TeamFromRequest(req)
		Expect(err).To(MatchError(ErrMalformedIdentity))
	})

	It("should let the admin identity through", func() {
		cookie, err := NewTeamCookie(api.AdminTeam)
		Expect(err).NotTo(HaveOccurred())

		req := httptest.NewRequest("GET", "/", nil)
		req.AddCookie(cookie)

		team, err := TeamFromRequest(req)
		Expect(err).NotTo(HaveOccurred())
		Expect(team).To(Equal(api.AdminTeam))
	})
})
