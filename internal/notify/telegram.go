// Package notify posts lifecycle run summaries to a Telegram admin chat.
package notify

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/29m10/foodeasy-backend/internal/lifecycle"
	"github.com/29m10/foodeasy-backend/internal/mealplan"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// maxListedErrors caps the per-record errors included in one message.
const maxListedErrors = 10

// Notifier sends run summaries to a single Telegram chat.
type Notifier struct {
	api         *tgbotapi.BotAPI
	chatID      int64
	onlyOnError bool
	logger      *zap.SugaredLogger
}

// NewTelegramNotifier authorizes the bot and returns a Notifier for chatID.
func NewTelegramNotifier(token string, chatID int64, onlyOnError bool, logger *zap.SugaredLogger) (*Notifier, error) {
	return newTelegramNotifier(token, tgbotapi.APIEndpoint, &http.Client{}, chatID, onlyOnError, logger)
}

func newTelegramNotifier(token, endpoint string, client *http.Client, chatID int64, onlyOnError bool, logger *zap.SugaredLogger) (*Notifier, error) {
	api, err := tgbotapi.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("failed to init telegram api: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	logger.Debugw("Authorized on telegram", "account", api.Self.UserName)

	return &Notifier{api: api, chatID: chatID, onlyOnError: onlyOnError, logger: logger}, nil
}

// NotifyRun posts the summary of a run. runErr is the run-level error, if any.
// Clean runs are not posted when the notifier only reports errors.
func (n *Notifier) NotifyRun(summary lifecycle.Summary, runErr error) error {
	if n.onlyOnError && runErr == nil && !summary.HasErrors() {
		n.logger.Debugw("Skipping notification for clean run", "run_id", summary.RunID)
		return nil
	}

	msg := tgbotapi.NewMessage(n.chatID, FormatSummary(summary, runErr))
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := n.api.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram notification: %w", err)
	}
	return nil
}

// FormatSummary renders a run summary as Telegram Markdown.
func FormatSummary(summary lifecycle.Summary, runErr error) string {
	var sb strings.Builder

	icon := "✅"
	switch {
	case runErr != nil:
		icon = "❌"
	case summary.HasErrors():
		icon = "⚠️"
	}
	sb.WriteString(fmt.Sprintf("%s *Meal Plan Lifecycle* %s\n", icon, mealplan.FormatDate(summary.Today)))
	if summary.DryRun {
		sb.WriteString("_Dry run, nothing was written_\n")
	}
	sb.WriteString(fmt.Sprintf("Run: `%s`\n\n", summary.RunID))

	if runErr != nil {
		sb.WriteString(fmt.Sprintf("*Run failed:* %s\n\n", escape(runErr.Error())))
	}

	sb.WriteString(fmt.Sprintf("• Active plans: %d\n", summary.TotalActive))
	sb.WriteString(fmt.Sprintf("• Deactivated: %d\n", summary.Inactivated))
	sb.WriteString(fmt.Sprintf("• Generated: %d\n", summary.Generated))
	if summary.Skipped > 0 {
		sb.WriteString(fmt.Sprintf("• Skipped: %d\n", summary.Skipped))
	}
	sb.WriteString(fmt.Sprintf("• Errors: %d\n", len(summary.Errors)))
	if summary.Usage.TotalTokens > 0 {
		sb.WriteString(fmt.Sprintf("• Tokens: %d\n", summary.Usage.TotalTokens))
	}

	if summary.HasErrors() {
		sb.WriteString("\n🚨 *Failures*\n")
		for i, e := range summary.Errors {
			if i == maxListedErrors {
				sb.WriteString(fmt.Sprintf("… and %d more\n", len(summary.Errors)-maxListedErrors))
				break
			}
			sb.WriteString(fmt.Sprintf("• %s\n", escape(e.Error())))
		}
	}

	return sb.String()
}

func escape(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s)
}
