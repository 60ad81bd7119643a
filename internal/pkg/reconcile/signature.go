package reconcile

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"strings"
)

// VerifyWebhookSignature checks the hex HMAC signature a payment platform
// attaches to its webhook deliveries against the shared secret. SHA-256 is
// the expected scheme; MD5 is accepted as a fallback because some platforms
// still sign with it.
func VerifyWebhookSignature(payload []byte, signatureHeader, webhookSecret string) bool {
	sig := strings.TrimSpace(signatureHeader)
	secret := strings.TrimSpace(webhookSecret)
	if sig == "" || secret == "" {
		return false
	}

	decodedSig, err := hex.DecodeString(strings.ToLower(sig))
	if err != nil {
		return false
	}

	if verifyHMAC(payload, decodedSig, []byte(secret), sha256.New) {
		return true
	}
	return verifyHMAC(payload, decodedSig, []byte(secret), md5.New)
}

func verifyHMAC(payload, expectedSig, secret []byte, hashFunc func() hash.Hash) bool {
	mac := hmac.New(hashFunc, secret)
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), expectedSig)
}
