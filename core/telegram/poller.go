package telegram

import (
	"log/slog"
	"net"
	"strconv"
	"time"

	coreconfig "github.com/m3rciful/marketbot/core/config"

	tele "gopkg.in/telebot.v4"
)

const defaultLongPoll = 10 * time.Second

// allowedUpdates limits delivery to what the routes handle.
var allowedUpdates = []string{"message", "callback_query"}

// newPoller picks a webhook or long poller from the normalized config and
// returns the attributes describing it for the startup log.
func newPoller(tc coreconfig.TelegramConfig, wc coreconfig.WebhookConfig) (tele.Poller, []slog.Attr) {
	if tc.RunMode == coreconfig.RunModeWebhook {
		listen := net.JoinHostPort(wc.Listen, strconv.Itoa(wc.Port))
		return &tele.Webhook{
				Listen:         listen,
				AllowedUpdates: allowedUpdates,
				Endpoint:       &tele.WebhookEndpoint{PublicURL: wc.URL},
			}, []slog.Attr{
				slog.String("mode", coreconfig.RunModeWebhook),
				slog.String("listen", listen),
				slog.String("public_url", wc.URL),
			}
	}
	timeout := defaultLongPoll
	if tc.LongPollTimeoutSeconds > 0 {
		timeout = time.Duration(tc.LongPollTimeoutSeconds) * time.Second
	}
	return &tele.LongPoller{Timeout: timeout, AllowedUpdates: allowedUpdates}, []slog.Attr{
		slog.String("mode", coreconfig.RunModeLongpoll),
		slog.Duration("timeout", timeout),
	}
}
