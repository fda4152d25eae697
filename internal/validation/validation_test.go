package validation

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestIsValidEthAddress(t *testing.T) {
	valid := []string{
		"0x1234567890123456789012345678901234567890",
		"0xABCDEFabcdef0123456789012345678901234567",
	}
	for _, addr := range valid {
		if !IsValidEthAddress(addr) {
			t.Errorf("IsValidEthAddress(%q) = false, want true", addr)
		}
	}

	invalid := []string{
		"",
		"0x",
		"1234567890123456789012345678901234567890",                    // missing prefix
		"0x12345678901234567890123456789012345678",                    // too short
		"0x123456789012345678901234567890123456789012",                // too long
		"0x12345678901234567890123456789012345678zz",                  // non-hex
		"0x1234567890123456789012345678901234567890 ",                 // trailing space
		"javascript:alert(1)//12345678901234567890",                   // junk
	}
	for _, addr := range invalid {
		if IsValidEthAddress(addr) {
			t.Errorf("IsValidEthAddress(%q) = true, want false", addr)
		}
	}
}

func TestIsValidTxHash(t *testing.T) {
	if !IsValidTxHash("0x" + "ab12" + "00000000000000000000000000000000000000000000000000000000" + "cd34") {
		t.Error("64 hex chars should be valid")
	}
	if IsValidTxHash("0x1234") {
		t.Error("short hash should be invalid")
	}
}

func TestNormalizeAddress(t *testing.T) {
	tests := []struct{ in, want string }{
		{"0xABCDEFabcdef0123456789012345678901234567", "0xabcdefabcdef0123456789012345678901234567"},
		{"  0xABCDEFabcdef0123456789012345678901234567  ", "0xabcdefabcdef0123456789012345678901234567"},
		{"ABCDEFabcdef0123456789012345678901234567", "0xabcdefabcdef0123456789012345678901234567"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeAddress(tt.in); got != tt.want {
			t.Errorf("NormalizeAddress(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestAddressParamMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/safes/:address/history", AddressParamMiddleware(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/safes/0x1234567890123456789012345678901234567890/history", nil))
	if w.Code != http.StatusOK {
		t.Errorf("valid address: expected 200, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/safes/garbage/history", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid address: expected 400, got %d", w.Code)
	}
}
