package http

import (
	"fmt"
	"math/big"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/olympus-market/olympus-client/internal/errs"
)

func isLoopbackRequest(r *http.Request) bool {
	ra := r.RemoteAddr

	h, _, err := net.SplitHostPort(ra)
	if err != nil {
		ip := net.ParseIP(ra)
		return ip != nil && ip.IsLoopback()
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}

func isSafeLocalHost(hostport string) bool {
	host := hostport
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		host = h
	}
	host = strings.ToLower(host)
	return host == "127.0.0.1" || host == "localhost" || host == "::1"
}

func normalizeOrigin(in string) string {
	in = strings.TrimSpace(in)
	if in == "" {
		return ""
	}
	u, err := url.Parse(in)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return fmt.Sprintf("%s://%s", strings.ToLower(u.Scheme), strings.ToLower(u.Host))
}

func uniqueOrigins(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, o := range in {
		o = normalizeOrigin(o)
		if o == "" {
			continue
		}
		if _, ok := seen[o]; ok {
			continue
		}
		seen[o] = struct{}{}
		out = append(out, o)
	}
	return out
}

// statusFor maps an error class to the HTTP status the UI branches on.
func statusFor(err error) int {
	switch errs.Code(err) {
	case "invalid_input":
		return http.StatusBadRequest
	case "user_rejected":
		return http.StatusForbidden
	case "not_connected", "network_mismatch":
		return http.StatusConflict
	case "tx_reverted":
		return http.StatusUnprocessableEntity
	case "upload_failed", "fetch_skipped":
		return http.StatusBadGateway
	case "no_provider":
		return http.StatusServiceUnavailable
	case "timeout":
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func writeOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, apiResponse{OK: true, Data: data})
}

func writeError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(statusFor(err), apiResponse{OK: false, Code: errs.Code(err), Error: err.Error()})
}

func writeBadRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, apiResponse{OK: false, Code: "invalid_input", Error: msg})
}

// tokenIDParam reads the :id path parameter as a non-negative decimal.
func tokenIDParam(c *gin.Context) (*big.Int, bool) {
	id, ok := new(big.Int).SetString(strings.TrimSpace(c.Param("id")), 10)
	if !ok || id.Sign() < 0 {
		writeBadRequest(c, HTTPErrorInvalidTokenID)
		return nil, false
	}
	return id, true
}
