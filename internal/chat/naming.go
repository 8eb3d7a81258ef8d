package chat

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/flemzord/mnemo/internal/provider"
	"github.com/flemzord/mnemo/internal/usage"
)

const maxTitleRunes = 80

const namingInstructions = `You name conversations. Reply with a short title (at most six words) describing the exchange below. Reply with the title only: no quotes, no punctuation at the end, no preamble.`

// nameConversation asks the generator for a title and stores it.
// Failures are logged and otherwise ignored.
func (s *Service) nameConversation(ctx context.Context, conversationID, userMsg, reply string) {
	input := "user: " + userMsg + "\nassistant: " + reply
	start := s.now()
	resp, err := provider.CompleteText(ctx, s.generator, namingInstructions, input)
	if err != nil {
		s.logger.Warn("conversation naming skipped", "conversation_id", conversationID, "error", err)
		return
	}
	s.record(ctx, usage.OperationNaming, &resp.Usage, s.now().Sub(start), conversationID, "")

	title := CleanTitle(resp.Content)
	if title == "" {
		s.logger.Warn("conversation naming skipped: empty title", "conversation_id", conversationID)
		return
	}
	if err := s.convs.SetTitle(ctx, conversationID, title); err != nil {
		s.logger.Warn("conversation title not saved", "conversation_id", conversationID, "error", err)
		return
	}
	s.logger.Debug("conversation named", "conversation_id", conversationID, "title", title)
}

// CleanTitle keeps the first line of raw, strips wrapping quotes and
// trailing punctuation, and caps the length.
func CleanTitle(raw string) string {
	title := strings.TrimSpace(raw)
	if i := strings.IndexByte(title, '\n'); i >= 0 {
		title = title[:i]
	}
	title = strings.TrimPrefix(title, "Title:")
	title = strings.Trim(strings.TrimSpace(title), "\"'`*")
	title = strings.TrimRight(title, ".!?;: ")
	if utf8.RuneCountInString(title) > maxTitleRunes {
		title = strings.TrimSpace(string([]rune(title)[:maxTitleRunes]))
	}
	return title
}
