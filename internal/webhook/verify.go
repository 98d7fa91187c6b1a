package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	appErrors "github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/errors"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/model"
)

const (
	HeaderGatewaySignature  = "X-Gateway-Signature"
	HeaderTelegramSecret    = "X-Telegram-Bot-Api-Secret-Token"
	HeaderBusinessSignature = "X-Hub-Signature-256"
)

// Verify checks the authenticity of a webhook body. An empty secret rejects
// everything.
func Verify(platform model.Platform, secret string, body []byte, headers http.Header) error {
	if secret == "" {
		return fmt.Errorf("%w: no secret configured for %s", appErrors.ErrWebhookAuthFailed, platform)
	}

	switch platform {
	case model.PlatformWhatsApp:
		return verifyHMAC(secret, body, headers.Get(HeaderGatewaySignature))
	case model.PlatformWhatsAppBusiness:
		return verifyHMAC(secret, body, headers.Get(HeaderBusinessSignature))
	case model.PlatformTelegram:
		token := headers.Get(HeaderTelegramSecret)
		if subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			return fmt.Errorf("%w: secret token mismatch", appErrors.ErrWebhookAuthFailed)
		}
		return nil
	}
	return fmt.Errorf("%w: %s", appErrors.ErrUnsupported, platform)
}

func verifyHMAC(secret string, body []byte, header string) error {
	header = strings.TrimSpace(header)
	if !strings.HasPrefix(header, "sha256=") {
		return fmt.Errorf("%w: missing sha256 signature", appErrors.ErrWebhookAuthFailed)
	}
	got := strings.TrimPrefix(header, "sha256=")
	if !hmac.Equal([]byte(strings.ToLower(got)), []byte(Sign(secret, body))) {
		return fmt.Errorf("%w: signature mismatch", appErrors.ErrWebhookAuthFailed)
	}
	return nil
}

// Sign returns the hex HMAC-SHA256 of body, the value after "sha256=".
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
