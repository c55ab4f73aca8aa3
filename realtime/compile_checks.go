package realtime

import "github.com/goliatone/go-marketplace/core"

var (
	_ core.RealtimePublisher = (*Hub)(nil)
	_ NotificationService    = (*core.NotificationDispatcher)(nil)
	_ TokenVerifier          = (*HMACTokenVerifier)(nil)
	_ TokenVerifier          = TokenVerifierFunc(nil)
)
