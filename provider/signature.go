package provider

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"strings"
)

// SignHexSHA512 returns hex(HMAC-SHA512(payload, secret)).
func SignHexSHA512(secret string, payload []byte) string {
	m := hmac.New(sha512.New, []byte(secret))
	m.Write(payload)
	return hex.EncodeToString(m.Sum(nil))
}

// SignBase64SHA256 returns base64(HMAC-SHA256(payload, secret)).
func SignBase64SHA256(secret string, payload []byte) string {
	m := hmac.New(sha256.New, []byte(secret))
	m.Write(payload)
	return base64.StdEncoding.EncodeToString(m.Sum(nil))
}

func verifyHexSHA512(secret string, payload []byte, signature string) bool {
	if secret == "" {
		return false
	}
	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(got) == 0 {
		return false
	}
	m := hmac.New(sha512.New, []byte(secret))
	m.Write(payload)
	return hmac.Equal(got, m.Sum(nil))
}

func verifyBase64SHA256(secret string, payload []byte, signature string) bool {
	if secret == "" {
		return false
	}
	got, err := base64.StdEncoding.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(got) == 0 {
		return false
	}
	m := hmac.New(sha256.New, []byte(secret))
	m.Write(payload)
	return hmac.Equal(got, m.Sum(nil))
}
