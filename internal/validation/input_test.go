package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateEmail(t *testing.T) {
	assert.NoError(t, ValidateEmail(" Ada@Example.com "))

	for _, email := range []string{"", "ada", "a@b@c.com", "ada@example", "ад@example.com", "ada@example.c"} {
		assert.Error(t, ValidateEmail(email), email)
	}
}

func TestValidatePhone(t *testing.T) {
	for _, phone := range []string{"+2348000000000", "+234 (800) 000-00-00", "080000"} {
		assert.NoError(t, ValidatePhone(phone), phone)
	}
	for _, phone := range []string{"", "12345", "+1234567890123456", "08x0000000", "80+000000"} {
		assert.Error(t, ValidatePhone(phone), phone)
	}
}

func TestValidateProductName(t *testing.T) {
	assert.NoError(t, ValidateProductName("Кроссовки"))
	assert.Error(t, ValidateProductName("   "))
	assert.Error(t, ValidateProductName(strings.Repeat("я", MaxProductNameLength+1)))
}

func TestValidateMessageContent(t *testing.T) {
	assert.NoError(t, ValidateMessageContent(" привет ", 10))
	assert.Error(t, ValidateMessageContent(" ", 10))
	assert.Error(t, ValidateMessageContent(strings.Repeat("a", 11), 10))
}

func TestValidateEvidenceLink(t *testing.T) {
	for _, link := range []string{"https://cdn.example.com/a.jpg", "/api/media/evidence/d/1.png"} {
		assert.NoError(t, ValidateEvidenceLink(link), link)
	}
	for _, link := range []string{"", "ftp://x/y", "https://", "//evil.com/x", "/api/../etc/passwd", "photo.jpg"} {
		assert.Error(t, ValidateEvidenceLink(link), link)
	}
}
