package device

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"

	"eventpass/pkg/requestcontext"
)

type DeviceSuite struct {
	suite.Suite
}

func TestDeviceSuite(t *testing.T) {
	suite.Run(t, new(DeviceSuite))
}

func (s *DeviceSuite) TestUserAgentParsing() {
	s.Run("empty user agent returns unknown device", func() {
		s.Equal("Unknown Device", ParseUserAgent(""))
		s.Equal("Unknown Device", ParseUserAgent("   "))
	})

	s.Run("chrome on android scanner", func() {
		ua := "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36"
		result := ParseUserAgent(ua)
		s.Contains(result, "Chrome")
		s.Contains(result, "Android")
		s.NotContains(result, "  ")
	})

	s.Run("safari on iphone includes platform", func() {
		ua := "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
		result := ParseUserAgent(ua)
		s.Contains(result, " on ")
		s.Contains(result, "iPhone")
	})

	s.Run("firefox on linux includes browser and OS", func() {
		ua := "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0"
		result := ParseUserAgent(ua)
		s.Contains(result, "Firefox")
		s.Contains(result, " on ")
	})

	s.Run("unknown user agent still formatted", func() {
		result := ParseUserAgent("Unknown/1.0")
		s.Contains(result, " on ")
		s.Equal(result, strings.TrimSpace(result))
	})
}

func (s *DeviceSuite) TestMiddlewareStoresLabel() {
	var got string
	h := Middleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = requestcontext.DeviceLabel(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0")
	h.ServeHTTP(httptest.NewRecorder(), req)
	s.Contains(got, "Firefox")
}
