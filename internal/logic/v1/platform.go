package v1

import (
	"strings"

	"github.com/duynhne/game-session-service/internal/core/domain"
)

// DetectPlatform classifies the client that started a session.
func DetectPlatform(userAgent string, nativeShell bool) string {
	if nativeShell {
		return domain.PlatformMobile
	}
	if userAgent == "" {
		return domain.PlatformUnknown
	}
	if strings.Contains(userAgent, "Mobile") {
		return domain.PlatformMobile
	}
	return domain.PlatformWeb
}
