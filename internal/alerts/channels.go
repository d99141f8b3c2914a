package alerts

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"broadcaster/pkg/retry"
)

var channelJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// Alert - данные одного алерта, передаваемые каждому каналу
type Alert struct {
	AccountID   string
	AccountName string
	MarginRatio float64
	Equity      float64
	Threshold   float64
	Timestamp   time.Time
}

// Critical возвращает true для порогов 90%+
func (a Alert) Critical() bool {
	return a.Threshold >= 0.90
}

// Message - текст алерта для push каналов
func (a Alert) Message() string {
	return fmt.Sprintf("MARGIN ALERT\n%s\nMargin: %.1f%%\n%s",
		a.AccountName, a.MarginRatio*100, a.Timestamp.Format("2006-01-02 15:04:05"))
}

// CallMessage - текст для TTS телефонного звонка
func (a Alert) CallMessage() string {
	return fmt.Sprintf("Margin alert for account %s. Margin is %.0f percent. Equity is %.0f dollars.",
		a.AccountName, a.MarginRatio*100, a.Equity)
}

// Channel - один канал доставки уведомлений.
//
// MinThreshold определяет ярус эскалации: канал вызывается только
// когда превышенный порог >= MinThreshold. Ошибки Send изолируются
// менеджером per-channel и не блокируют остальные каналы.
type Channel interface {
	Name() string
	MinThreshold() float64
	Configured() bool
	Send(ctx context.Context, alert Alert) error
}

// httpDoer позволяет подставить mock в тестах каналов
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// retryCfg - общая retry конфигурация для всех HTTP каналов.
// Алерт важнее экономии запросов, но звонок не должен зависать:
// 3 попытки с короткими задержками. Permanent ошибки (4xx: неверные
// креды, битый номер) и отмена контекста не повторяются.
var retryCfg = retry.Config{
	MaxRetries:   3,
	InitialDelay: 500 * time.Millisecond,
	MaxDelay:     5 * time.Second,
	Multiplier:   2.0,
	JitterFactor: 0.2,
	RetryIf: func(err error) bool {
		return retry.IsRetryable(err) && retry.RetryIfNotContext(err)
	},
}

func postForm(ctx context.Context, client httpDoer, reqURL string, form url.Values, basicUser, basicPass string) error {
	return retry.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, strings.NewReader(form.Encode()))
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if basicUser != "" {
			req.SetBasicAuth(basicUser, basicPass)
		}

		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			// неверные креды или номер - повторять бессмысленно
			return retry.Permanent(fmt.Errorf("status %d", resp.StatusCode))
		}
		return fmt.Errorf("status %d", resp.StatusCode)
	}, retryCfg)
}

// ============================================================
// Telegram
// ============================================================

// TelegramChannel отправляет сообщение через Telegram Bot API.
// Ярус 1: вызывается от 70%.
type TelegramChannel struct {
	BotToken string
	ChatID   string
	Client   httpDoer
	BaseURL  string // переопределяется в тестах
}

func (c *TelegramChannel) Name() string          { return "telegram" }
func (c *TelegramChannel) MinThreshold() float64 { return 0.70 }
func (c *TelegramChannel) Configured() bool      { return c.BotToken != "" && c.ChatID != "" }

func (c *TelegramChannel) Send(ctx context.Context, alert Alert) error {
	text := alert.Message()
	if alert.Critical() {
		text = "CRITICAL\n\n" + text
	}

	base := c.BaseURL
	if base == "" {
		base = "https://api.telegram.org"
	}
	reqURL := fmt.Sprintf("%s/bot%s/sendMessage", base, c.BotToken)

	payload, err := channelJSON.Marshal(map[string]string{
		"chat_id": c.ChatID,
		"text":    text,
	})
	if err != nil {
		return err
	}

	return retry.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(payload))
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.Client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)

		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			// неверный токен или chat_id - повторять бессмысленно
			return retry.Permanent(fmt.Errorf("telegram status %d", resp.StatusCode))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("telegram status %d", resp.StatusCode)
		}
		return nil
	}, retryCfg)
}

// ============================================================
// Pushover
// ============================================================

// PushoverChannel отправляет push уведомление через Pushover.
// Ярус 1: вызывается от 70%. Priority растёт с порогом:
// 0 до 90%, 1 от 90%, 2 (emergency с retry/expire) от 95%.
type PushoverChannel struct {
	AppToken string
	UserKey  string
	Client   httpDoer
	BaseURL  string
}

func (c *PushoverChannel) Name() string          { return "pushover" }
func (c *PushoverChannel) MinThreshold() float64 { return 0.70 }
func (c *PushoverChannel) Configured() bool      { return c.AppToken != "" && c.UserKey != "" }

func (c *PushoverChannel) Send(ctx context.Context, alert Alert) error {
	priority := 0
	switch {
	case alert.Threshold >= 0.95:
		priority = 2
	case alert.Threshold >= 0.90:
		priority = 1
	}

	form := url.Values{}
	form.Set("token", c.AppToken)
	form.Set("user", c.UserKey)
	form.Set("title", "Margin Alert: "+alert.AccountName)
	form.Set("message", alert.Message())
	form.Set("priority", fmt.Sprintf("%d", priority))
	if priority >= 1 {
		form.Set("sound", "siren")
	} else {
		form.Set("sound", "pushover")
	}
	if priority == 2 {
		// emergency priority требует retry и expire
		form.Set("retry", "60")
		form.Set("expire", "3600")
	}

	base := c.BaseURL
	if base == "" {
		base = "https://api.pushover.net"
	}
	return postForm(ctx, c.Client, base+"/1/messages.json", form, "", "")
}

// ============================================================
// Twilio SMS и телефонный звонок
// ============================================================

// TwilioConfig - общие креды Twilio для SMS и звонков.
// Аутентификация через API Key (SID + Secret), AccountSID
// используется только в URL.
type TwilioConfig struct {
	AccountSID   string
	APIKeySID    string
	APIKeySecret string
	ToNumber     string
	FromNumber   string
	BaseURL      string
}

func (c TwilioConfig) configured() bool {
	return c.AccountSID != "" && c.APIKeySID != "" && c.APIKeySecret != "" &&
		c.ToNumber != "" && c.FromNumber != ""
}

func (c TwilioConfig) endpoint(resource string) string {
	base := c.BaseURL
	if base == "" {
		base = "https://api.twilio.com"
	}
	return fmt.Sprintf("%s/2010-04-01/Accounts/%s/%s.json", base, c.AccountSID, resource)
}

// SMSChannel отправляет SMS через Twilio. Ярус 2: от 80%.
type SMSChannel struct {
	Config TwilioConfig
	Client httpDoer
}

func (c *SMSChannel) Name() string          { return "sms" }
func (c *SMSChannel) MinThreshold() float64 { return 0.80 }
func (c *SMSChannel) Configured() bool      { return c.Config.configured() }

func (c *SMSChannel) Send(ctx context.Context, alert Alert) error {
	body := alert.Message()
	if len(body) > 1600 {
		body = body[:1600] // лимит SMS
	}

	form := url.Values{}
	form.Set("To", c.Config.ToNumber)
	form.Set("From", c.Config.FromNumber)
	form.Set("Body", body)

	return postForm(ctx, c.Client, c.Config.endpoint("Messages"), form,
		c.Config.APIKeySID, c.Config.APIKeySecret)
}

// CallChannel инициирует телефонный звонок через Twilio с TTS
// сообщением. Ярус 3: от 90%. Сообщение повторяется дважды.
type CallChannel struct {
	Config TwilioConfig
	Client httpDoer
}

func (c *CallChannel) Name() string          { return "phone_call" }
func (c *CallChannel) MinThreshold() float64 { return 0.90 }
func (c *CallChannel) Configured() bool      { return c.Config.configured() }

func (c *CallChannel) Send(ctx context.Context, alert Alert) error {
	msg := alert.CallMessage()
	twiml := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<Response>
    <Say voice="alice">%s</Say>
    <Pause length="1"/>
    <Say voice="alice">%s</Say>
</Response>`, msg, msg)

	form := url.Values{}
	form.Set("To", c.Config.ToNumber)
	form.Set("From", c.Config.FromNumber)
	form.Set("Twiml", twiml)

	return postForm(ctx, c.Client, c.Config.endpoint("Calls"), form,
		c.Config.APIKeySID, c.Config.APIKeySecret)
}
