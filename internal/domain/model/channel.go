package model

import (
	"fmt"
	"strings"
	"time"
)

// ChannelType identifies a messaging provider.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type ChannelType string

const (
	ChannelDingTalk ChannelType = "dingtalk"
	ChannelWeCom    ChannelType = "wecom"
	ChannelWeComApp ChannelType = "wecom_app"
	ChannelTelegram ChannelType = "telegram"
	ChannelFeishu   ChannelType = "feishu"
	ChannelDiscord  ChannelType = "discord"
	ChannelBark     ChannelType = "bark"
	ChannelWebhook  ChannelType = "webhook"
)

// ChannelTypes lists every supported provider in display order.
func ChannelTypes() []ChannelType {
	return []ChannelType{
		ChannelDingTalk,
		ChannelWeCom,
		ChannelWeComApp,
		ChannelTelegram,
		ChannelFeishu,
		ChannelDiscord,
		ChannelBark,
		ChannelWebhook,
	}
}

// Valid returns true if the channel type is one of the supported providers.
func (t ChannelType) Valid() bool {
	switch t {
	case ChannelDingTalk, ChannelWeCom, ChannelWeComApp, ChannelTelegram,
		ChannelFeishu, ChannelDiscord, ChannelBark, ChannelWebhook:
		return true
	default:
		return false
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *ChannelType) UnmarshalText(text []byte) error {
	v := ChannelType(strings.ToLower(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("invalid channel type: %q", string(text))
	}
	*t = v
	return nil
}

// Channel is a configured messaging provider with its credentials.
// Only the credential fields relevant to Type are populated.
type Channel struct {
	ID        string         `json:"id"                  db:"id"`
	UserID    string         `json:"userId"              db:"user_id"`
	Name      string         `json:"name"                db:"name"`
	Type      ChannelType    `json:"type"                db:"type"`
	Status    EndpointStatus `json:"status"              db:"status"`
	Webhook   string         `json:"webhook,omitempty"   db:"webhook"`
	Secret    string         `json:"secret,omitempty"    db:"secret"`
	CorpID    string         `json:"corpId,omitempty"    db:"corp_id"`
	AgentID   string         `json:"agentId,omitempty"   db:"agent_id"`
	BotToken  string         `json:"botToken,omitempty"  db:"bot_token"`
	ChatID    string         `json:"chatId,omitempty"    db:"chat_id"`
	CreatedAt time.Time      `json:"createdAt"           db:"created_at"`
}
