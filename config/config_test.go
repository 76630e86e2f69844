package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetEnv(t *testing.T) {
	t.Setenv("MARKETPLACE_TEST_KEY", "value")

	assert.Equal(t, "value", GetEnv("MARKETPLACE_TEST_KEY", "fallback"))
	assert.Equal(t, "fallback", GetEnv("MARKETPLACE_MISSING_KEY", "fallback"))
}

func TestGetDuration(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{name: "duration string", value: "90s", want: 90 * time.Second},
		{name: "bare seconds", value: "30", want: 30 * time.Second},
		{name: "garbage falls back", value: "soon", want: time.Minute},
		{name: "unset falls back", value: "", want: time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("MARKETPLACE_TEST_DURATION", tt.value)
			assert.Equal(t, tt.want, GetDuration("MARKETPLACE_TEST_DURATION", time.Minute))
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("KAFKA_BROKER", "k1:9092,k2:9092")

	cfg := Load("vendor-service", ":8085")

	assert.Equal(t, "vendor-service", cfg.Service)
	assert.Equal(t, ":8085", cfg.HTTPAddr)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "vendor-service", cfg.ConsumerGroup)
	assert.Equal(t, "order_events", cfg.OrderEventsTopic)
}
