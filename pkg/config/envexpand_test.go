package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestExpandEnv(t *testing.T) {
	tests := []struct {
		name  string
		input string
		env   map[string]string
		want  string
	}{
		{
			name:  "template reference",
			input: "redis_addr: {{.PC_REDIS}}",
			env:   map[string]string{"PC_REDIS": "localhost:6379"},
			want:  "redis_addr: localhost:6379",
		},
		{
			name:  "several references on one line",
			input: "url: https://{{.PC_HOST}}:{{.PC_PORT}}",
			env:   map[string]string{"PC_HOST": "chat.example.com", "PC_PORT": "443"},
			want:  "url: https://chat.example.com:443",
		},
		{
			name:  "shell style is left alone",
			input: "channel: ${PC_CHANNEL}",
			env:   map[string]string{"PC_CHANNEL": "C1"},
			want:  "channel: ${PC_CHANNEL}",
		},
		{
			name:  "literal dollar survives",
			input: "password: p@ss$word",
			want:  "password: p@ss$word",
		},
		{
			name:  "missing variable is empty",
			input: "channel: {{.PC_MISSING_CHANNEL}}",
			want:  "channel: ",
		},
		{
			name:  "value with equals sign",
			input: "key: {{.PC_B64}}",
			env:   map[string]string{"PC_B64": "YWJj=="},
			want:  "key: YWJj==",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			assert.Equal(t, tt.want, string(ExpandEnv([]byte(tt.input))))
		})
	}
}

func TestExpandEnvMalformedTemplatePassesThrough(t *testing.T) {
	for _, input := range []string{"key: {{.VAR", "key: {{}}", "key: {{.A {{.B}}}}"} {
		t.Run(input, func(t *testing.T) {
			assert.Equal(t, input, string(ExpandEnv([]byte(input))))
		})
	}
}

func TestExpandEnvThenParse(t *testing.T) {
	t.Setenv("PC_SLOTS", "4")

	var out struct {
		Sessions SessionsConfig `yaml:"sessions"`
	}
	data := ExpandEnv([]byte("sessions:\n  default_max_slots: {{.PC_SLOTS}}\n"))
	require.NoError(t, yaml.Unmarshal(data, &out))
	assert.Equal(t, 4, out.Sessions.DefaultMaxSlots)
}
