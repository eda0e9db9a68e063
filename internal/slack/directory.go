package slack

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

var (
	mentionRe = regexp.MustCompile(`<@([A-Z0-9]+)>`)
	channelRe = regexp.MustCompile(`<#[A-Z0-9]+\|([^>]*)>`)
	linkRe    = regexp.MustCompile(`<(https?://[^|>]+)(?:\|([^>]*))?>`)
	specialRe = regexp.MustCompile(`<!(here|channel|everyone)>`)
)

// Directory maps user IDs to display names for one sync cycle.
// It is read-only after construction and safe for concurrent use.
type Directory struct {
	names map[string]string
}

// BuildDirectory fetches the workspace user list once. The orchestrator
// rebuilds it at the start of every cycle.
func BuildDirectory(ctx context.Context, api API) (*Directory, error) {
	users, err := api.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("build user directory: %w", err)
	}

	names := make(map[string]string, len(users))
	for _, u := range users {
		names[u.ID] = u.Name
	}
	slog.Debug("Built user directory", "users", len(names))
	return &Directory{names: names}, nil
}

// NewDirectory builds a directory from a fixed mapping. Used in tests.
func NewDirectory(names map[string]string) *Directory {
	if names == nil {
		names = map[string]string{}
	}
	return &Directory{names: names}
}

// Name resolves a user ID to a display name, falling back to the raw ID.
func (d *Directory) Name(userID string) string {
	if name, ok := d.names[userID]; ok && name != "" {
		return name
	}
	if userID == "" {
		return "unknown"
	}
	return userID
}

// Resolve rewrites Slack mrkdwn syntax into plain readable text:
//
//	<@U123>          -> @username
//	<#C123|general>  -> #general
//	<https://x|txt>  -> txt (https://x)
//	<https://x>      -> https://x
//	<!here>          -> @here
func (d *Directory) Resolve(text string) string {
	text = mentionRe.ReplaceAllStringFunc(text, func(m string) string {
		id := mentionRe.FindStringSubmatch(m)[1]
		return "@" + d.Name(id)
	})
	text = channelRe.ReplaceAllString(text, "#$1")
	text = linkRe.ReplaceAllStringFunc(text, func(m string) string {
		groups := linkRe.FindStringSubmatch(m)
		if groups[2] != "" {
			return fmt.Sprintf("%s (%s)", groups[2], groups[1])
		}
		return groups[1]
	})
	text = specialRe.ReplaceAllString(text, "@$1")
	return strings.TrimSpace(text)
}
