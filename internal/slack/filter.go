package slack

import (
	"log/slog"
	"strings"
)

// FilterChannels applies an allow-list of channel names or IDs.
// An empty allow-list keeps everything. Configured entries that match
// nothing are logged so typos surface instead of silently syncing nothing.
func FilterChannels(channels []Channel, allowList []string) []Channel {
	if len(allowList) == 0 {
		return channels
	}

	needle := make(map[string]bool, len(allowList))
	for _, name := range allowList {
		needle[strings.TrimPrefix(name, "#")] = true
	}

	var out []Channel
	found := make(map[string]bool)
	for _, ch := range channels {
		if needle[ch.Name] || needle[ch.ID] {
			out = append(out, ch)
			found[ch.Name] = true
			found[ch.ID] = true
		}
	}

	for name := range needle {
		if !found[name] {
			slog.Warn("Configured channel not found or not accessible", "channel", name)
		}
	}

	return out
}
