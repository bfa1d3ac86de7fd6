package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Settings returns a flat snapshot of the non-secret settings currently loaded.
func Settings() map[string]any {
	if Global == nil {
		return map[string]any{}
	}
	return map[string]any{
		"app_version":                    Global.App.Version,
		"app_env":                        Global.App.Environment,
		"app_timezone":                   Global.App.Timezone,
		"db_driver":                      Global.Database.Driver,
		"valkey_enabled":                 Global.Database.ValkeyEnabled,
		"gateway_base_url":               Global.Gateway.BaseURL,
		"queue_driver":                   queueDriver(Global.Queue.RabbitURL),
		"attachments_max_size_mb":        Global.Storage.MaxSizeMB,
		"chat_send_message_workers":      Global.Chat.SendWorkers,
		"chat_mark_as_read_max_messages": Global.Chat.MarkAsReadMax,
		"scheduler_tick_seconds":         int(Global.Campaign.Tick / time.Second),
	}
}

func queueDriver(url string) string {
	if url == "" {
		return "memory"
	}
	return "rabbitmq"
}

// Helpers
func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(viper.GetString(key)); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := getEnv(key, ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if v := getEnv(key, ""); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := getEnv(key, ""); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := getEnv(key, ""); v != "" {
		vLower := strings.ToLower(v)
		return vLower == "1" || vLower == "true" || vLower == "yes" || vLower == "on"
	}
	return fallback
}

func getEnvSeconds(key string, fallback int) time.Duration {
	return time.Duration(getEnvInt(key, fallback)) * time.Second
}

func capDuration(d, max time.Duration) time.Duration {
	if d <= 0 || d > max {
		return max
	}
	return d
}

func splitList(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
