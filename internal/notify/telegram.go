package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Sender delivers one rendered message to one chat.
type Sender interface {
	Send(ctx context.Context, chatID, text string) error
}

// TelegramOptions 描述 Telegram 推送参数。
type TelegramOptions struct {
	BotToken  string
	BaseURL   string
	Timeout   time.Duration
	Attempts  int
	BaseDelay time.Duration
	Sleep     SleepFunc
	// Limiter meters retries against the shared send budget. The first attempt
	// is metered by the caller.
	Limiter Limiter
}

// TelegramSender 通过 Telegram Bot API 推送消息。
type TelegramSender struct {
	botToken  string
	baseURL   string
	attempts  int
	baseDelay time.Duration
	sleep     SleepFunc
	limiter   Limiter
	client    *http.Client
	logger    zerolog.Logger
}

// NewTelegramSender 构造 Telegram 推送器。
func NewTelegramSender(opts TelegramOptions, logger zerolog.Logger) *TelegramSender {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.telegram.org"
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 3
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = time.Second
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepCtx
	}

	return &TelegramSender{
		botToken:  opts.BotToken,
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		attempts:  opts.Attempts,
		baseDelay: opts.BaseDelay,
		sleep:     opts.Sleep,
		limiter:   opts.Limiter,
		client:    &http.Client{Timeout: opts.Timeout},
		logger:    logger.With().Str("component", "telegram").Logger(),
	}
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	Parameters  struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

// errHardFailure marks a response that must not be retried.
var errHardFailure = errors.New("telegram: request rejected")

// Send 调用 sendMessage API，失败时按指数退避重试，429 时遵循 retry_after。
func (t *TelegramSender) Send(ctx context.Context, chatID, text string) error {
	body, err := json.Marshal(map[string]any{
		"chat_id":                  chatID,
		"text":                     text,
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	})
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < t.attempts; attempt++ {
		wait, err := t.post(ctx, body)
		if err == nil {
			return nil
		}
		if errors.Is(err, errHardFailure) {
			return err
		}
		lastErr = err
		if attempt == t.attempts-1 {
			break
		}

		if wait <= 0 {
			wait = t.baseDelay << attempt
		}
		t.logger.Warn().Err(err).
			Str("chat_id", chatID).
			Int("attempt", attempt+1).
			Dur("wait", wait).
			Msg("telegram 发送失败，准备重试")
		if err := t.sleep(ctx, wait); err != nil {
			return err
		}
		if t.limiter != nil {
			if err := t.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("telegram: wait for send slot: %w", err)
			}
		}
	}
	return fmt.Errorf("telegram: gave up after %d attempts: %w", t.attempts, lastErr)
}

// post returns a provider-supplied wait when the response was a 429.
func (t *TelegramSender) post(ctx context.Context, body []byte) (time.Duration, error) {
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("%w: create request: %v", errHardFailure, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	var result telegramResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&result)

	if resp.StatusCode == http.StatusTooManyRequests {
		wait := time.Duration(result.Parameters.RetryAfter) * time.Second
		return wait, fmt.Errorf("telegram rate limited (retry_after=%ds)", result.Parameters.RetryAfter)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("%w: status %d %s", errHardFailure, resp.StatusCode, result.Description)
	}
	if decodeErr == nil && !result.OK {
		return 0, fmt.Errorf("%w: ok=false %s", errHardFailure, result.Description)
	}
	return 0, nil
}

var _ Sender = (*TelegramSender)(nil)
