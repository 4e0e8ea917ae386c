package channels

import (
	"fmt"
	"net/http"
	"strings"

	"workplacemapping/internal/config"
	"workplacemapping/internal/delivery"
	"workplacemapping/internal/logging"
)

// builder returns nil when the provider has no endpoint configured.
type builder func(cfg *config.DeliveryConfig, client *http.Client) (delivery.NotificationChannel, error)

var registry = map[string]builder{
	FunctionID: func(cfg *config.DeliveryConfig, client *http.Client) (delivery.NotificationChannel, error) {
		if cfg.FunctionURL == "" {
			return nil, nil
		}
		return NewFunctionChannel(cfg.FunctionURL, cfg.FunctionKey, client), nil
	},
	RelayID: func(cfg *config.DeliveryConfig, client *http.Client) (delivery.NotificationChannel, error) {
		if cfg.RelayURL == "" {
			return nil, nil
		}
		return NewRelayChannel(cfg.RelayURL, client), nil
	},
	EmbeddedFormID: func(cfg *config.DeliveryConfig, client *http.Client) (delivery.NotificationChannel, error) {
		if cfg.EmbeddedFormURL == "" {
			return nil, nil
		}
		return NewEmbeddedFormChannel(cfg.EmbeddedFormURL, cfg.EmbeddedFormName, cfg.EmbeddedFormEncoding, client)
	},
}

// FromConfig builds the channel list in cfg.Priority order. Unknown ids are
// an error; known but unconfigured providers are skipped.
func FromConfig(cfg *config.DeliveryConfig, client *http.Client) ([]delivery.NotificationChannel, error) {
	log := logging.For("channels")
	if client == nil {
		client = NewHTTPClient()
	}

	var out []delivery.NotificationChannel
	seen := make(map[string]bool, len(cfg.Priority))
	for _, raw := range cfg.Priority {
		id := strings.TrimSpace(raw)
		build, ok := registry[id]
		if !ok {
			return nil, fmt.Errorf("unknown notification channel %q", id)
		}
		if seen[id] {
			return nil, fmt.Errorf("notification channel %q listed twice", id)
		}
		seen[id] = true

		ch, err := build(cfg, client)
		if err != nil {
			return nil, fmt.Errorf("channel %s: %w", id, err)
		}
		if ch == nil {
			log.WithField("channel", id).Warn("channel has no endpoint configured, skipping")
			continue
		}
		out = append(out, ch)
	}

	if len(out) == 0 {
		log.Warn("no notification channels configured; inquiries will only be stored")
	}
	return out, nil
}
