package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ChannelResolver decides which delivery channels are enabled for a user and
// notification type.
type ChannelResolver struct {
	preferences PreferenceStore
	logger      Logger
}

func NewChannelResolver(preferences PreferenceStore, logger Logger) *ChannelResolver {
	return &ChannelResolver{preferences: preferences, logger: logger}
}

// Resolve returns the enabled channels ordered in_app, email, push.
func (r *ChannelResolver) Resolve(ctx context.Context, userID string, notificationType NotificationType) ([]Channel, error) {
	cfg, ok := LookupNotificationType(notificationType)
	if !ok {
		return nil, fmt.Errorf("%w: unknown notification type %q", ErrValidation, notificationType)
	}
	if cfg.AlwaysOn {
		return Channels(), nil
	}

	prefs, found, err := r.loadPreferences(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !found {
		return channelsWithoutPreferences(cfg), nil
	}
	return ResolveChannels(cfg, prefs), nil
}

func (r *ChannelResolver) loadPreferences(ctx context.Context, userID string) (NotificationPreferences, bool, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return NotificationPreferences{}, false, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if r == nil || r.preferences == nil {
		return NotificationPreferences{}, false, nil
	}
	prefs, err := r.preferences.Get(ctx, userID)
	if err == nil {
		return prefs, true, nil
	}
	if errors.Is(err, ErrNotFound) || IsNotFound(err) {
		return NotificationPreferences{}, false, nil
	}
	if r.logger != nil {
		logWithLevel(ctx, r.logger, "warn", "notification preferences unavailable, using type defaults", map[string]any{
			"user_id": userID,
			"error":   err.Error(),
		})
	}
	return NotificationPreferences{}, false, nil
}

// ResolveChannels applies stored preferences to a type configuration.
func ResolveChannels(cfg NotificationTypeConfig, prefs NotificationPreferences) []Channel {
	if cfg.AlwaysOn {
		return Channels()
	}
	out := make([]Channel, 0, 3)
	if cfg.hasDefault(ChannelInApp) && prefs.Channels.InApp {
		out = append(out, ChannelInApp)
	}
	if cfg.hasDefault(ChannelEmail) && prefs.Channels.Email && categoryEnabled(prefs.Email, cfg.Category) {
		out = append(out, ChannelEmail)
	}
	if cfg.hasDefault(ChannelPush) && prefs.Channels.Push && categoryEnabled(prefs.Push, cfg.Category) {
		out = append(out, ChannelPush)
	}
	return out
}

func channelsWithoutPreferences(cfg NotificationTypeConfig) []Channel {
	out := []Channel{ChannelInApp}
	for _, channel := range []Channel{ChannelEmail, ChannelPush} {
		if cfg.hasDefault(channel) {
			out = append(out, channel)
		}
	}
	return out
}
