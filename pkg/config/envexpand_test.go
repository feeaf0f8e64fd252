package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gopkg.in/yaml.v3"
)

func TestExpandEnvSubstitutesConfiguredValues(t *testing.T) {
	tests := []struct {
		name  string
		input string
		env   map[string]string
		want  string
	}{
		{
			name:  "single placeholder resolves against environment",
			input: "secret_key: {{.NANGO_SECRET_KEY}}",
			env:   map[string]string{"NANGO_SECRET_KEY": "nango_live_abc123"},
			want:  "secret_key: nango_live_abc123",
		},
		{
			name:  "dollar-brace form is left alone, only {{.VAR}} is template syntax",
			input: "bearer_token: ${MCP_BEARER_TOKEN}",
			env:   map[string]string{"MCP_BEARER_TOKEN": "tok"},
			want:  "bearer_token: ${MCP_BEARER_TOKEN}",
		},
		{
			name:  "bare $VAR in a regex-flavored value is left alone",
			input: "pattern: ^gmail\\.user.*$",
			env:   map[string]string{},
			want:  "pattern: ^gmail\\.user.*$",
		},
		{
			name:  "several placeholders resolve on one line",
			input: "url: {{.LLM_SCHEME}}://{{.LLM_HOST}}:{{.LLM_PORT}}",
			env: map[string]string{
				"LLM_SCHEME": "https",
				"LLM_HOST":   "llm-gateway.internal",
				"LLM_PORT":   "443",
			},
			want: "url: https://llm-gateway.internal:443",
		},
		{
			name:  "unset variable expands to empty, validation catches it later",
			input: "compiler_addr: {{.COMPILER_GRPC_ADDR}}",
			env:   map[string]string{},
			want:  "compiler_addr: ",
		},
		{
			name:  "one resolved and one unset placeholder on the same line",
			input: "addr: {{.LLM_HOST}}:{{.LLM_PORT}}",
			env:   map[string]string{"LLM_HOST": "localhost"},
			want:  "addr: localhost:",
		},
		{
			name:  "content without placeholders passes through untouched",
			input: "system:\n  dashboard_url: http://localhost:3000",
			env:   map[string]string{"UNUSED": "value"},
			want:  "system:\n  dashboard_url: http://localhost:3000",
		},
		{
			name:  "placeholders inside a YAML sequence",
			input: "args:\n  - {{.MCP_ARG_0}}\n  - {{.MCP_ARG_1}}",
			env: map[string]string{
				"MCP_ARG_0": "--transport",
				"MCP_ARG_1": "stdio",
			},
			want: "args:\n  - --transport\n  - stdio",
		},
		{
			name:  "placeholders inside a nested mapping",
			input: "mcp_servers:\n  gmail:\n    url: {{.GMAIL_MCP_URL}}\n    type: {{.GMAIL_MCP_TYPE}}",
			env: map[string]string{
				"GMAIL_MCP_URL":  "http://localhost:9001",
				"GMAIL_MCP_TYPE": "http",
			},
			want: "mcp_servers:\n  gmail:\n    url: http://localhost:9001\n    type: http",
		},
		{
			name:  "expanded value carrying punctuation is inserted verbatim",
			input: "bearer_token: {{.MCP_BEARER_TOKEN}}",
			env:   map[string]string{"MCP_BEARER_TOKEN": "a!b@c#d$e%f"},
			want:  "bearer_token: a!b@c#d$e%f",
		},
		{
			name:  "a literal dollar sign next to a placeholder is preserved",
			input: "note: budget$ {{.QUEUE_WORKER_COUNT}}",
			env:   map[string]string{"QUEUE_WORKER_COUNT": "4"},
			want:  "note: budget$ 4",
		},
		{
			name:  "underscore-heavy variable name resolves",
			input: "key: {{.NANGO_BASE_URL}}",
			env:   map[string]string{"NANGO_BASE_URL": "https://api.nango.dev"},
			want:  "key: https://api.nango.dev",
		},
		{
			name:  "adjacent placeholders with no separator both resolve",
			input: "{{.PROVIDER}}{{.RESOURCE}}",
			env: map[string]string{
				"PROVIDER": "gmail",
				"RESOURCE": "messages",
			},
			want: "gmailmessages",
		},
		{
			name:  "placeholder inside a quoted scalar",
			input: `dashboard_url: "https://{{.DASHBOARD_HOST}}/runs"`,
			env:   map[string]string{"DASHBOARD_HOST": "app.cortex.run"},
			want:  `dashboard_url: "https://app.cortex.run/runs"`,
		},
		{
			name:  "empty-string environment value resolves to an empty scalar",
			input: "bearer_token: {{.MCP_BEARER_TOKEN}}",
			env:   map[string]string{"MCP_BEARER_TOKEN": ""},
			want:  "bearer_token: ",
		},
		{
			name:  "numeric-looking value stays a plain string substitution",
			input: "poller_interval_seconds: {{.POLLER_INTERVAL_SECONDS}}",
			env:   map[string]string{"POLLER_INTERVAL_SECONDS": "60"},
			want:  "poller_interval_seconds: 60",
		},
		{
			name: "full provider block with several placeholders",
			input: `
providers:
  salesforce:
    resource: {{.SF_RESOURCE}}
    entity_shaper: {{.SF_SHAPER}}
mcp_servers:
  salesforce:
    type: http
    url: {{.SF_MCP_URL}}
    bearer_token: {{.SF_MCP_TOKEN}}
`,
			env: map[string]string{
				"SF_RESOURCE": "leads",
				"SF_SHAPER":   "crm_record",
				"SF_MCP_URL":  "https://mcp.internal/salesforce",
				"SF_MCP_TOKEN": "sftok_456",
			},
			want: `
providers:
  salesforce:
    resource: leads
    entity_shaper: crm_record
mcp_servers:
  salesforce:
    type: http
    url: https://mcp.internal/salesforce
    bearer_token: sftok_456
`,
		},
		{
			name:  "a masking-style ${} pattern inside a string literal survives expansion",
			input: `redact_patterns:\n  - pattern: "user_\${USER_ID}_.*"`,
			env:   map[string]string{"USER_ID": "123"},
			want:  `redact_patterns:\n  - pattern: "user_\${USER_ID}_.*"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v) // restored automatically after the subtest
			}

			result := ExpandEnv([]byte(tt.input))
			assert.Equal(t, tt.want, string(result))
		})
	}
}

func TestExpandEnvEmptyInputRoundTrips(t *testing.T) {
	assert.Equal(t, "", string(ExpandEnv([]byte(""))))
}

func TestExpandEnvLiteralBackslashNIsNotANewline(t *testing.T) {
	// `\n` here is the two-byte sequence backslash-n, as it would appear
	// inside a YAML string value, not an actual newline. text/template
	// only rewrites {{...}} sections, so it must pass through untouched.
	input := `cron: {{.POLLER_CRON}}\nnext_field: value`
	t.Setenv("POLLER_CRON", "*/5 * * * *")

	result := ExpandEnv([]byte(input))
	assert.Contains(t, string(result), `*/5 * * * *\nnext_field: value`)
}

func TestExpandEnvIsSafeForConcurrentCalls(t *testing.T) {
	// config.Initialize may one day load multiple files concurrently;
	// ExpandEnv must not share mutable state across calls.
	input := []byte("key: {{.QUEUE_WORKER_COUNT}}")
	t.Setenv("QUEUE_WORKER_COUNT", "8")

	const goroutines = 100
	results := make([]string, goroutines)
	done := make(chan struct{})

	for i := 0; i < goroutines; i++ {
		go func(index int) {
			results[index] = string(ExpandEnv(input))
			done <- struct{}{}
		}(i)
	}
	for i := 0; i < goroutines; i++ {
		<-done
	}

	for i, result := range results {
		assert.Equal(t, "key: 8", result, "goroutine %d produced a divergent result", i)
	}
}

// TestExpandEnvFallsBackToOriginalOnBadTemplateSyntax exercises the "on any
// parse or execution error, return the input unchanged" contract: cortex.yaml
// is hand-written, and a stray brace should surface as a YAML error, not a
// template panic or a silently mangled config file.
func TestExpandEnvFallsBackToOriginalOnBadTemplateSyntax(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "unclosed placeholder", input: "secret_key: {{.NANGO_SECRET_KEY"},
		{name: "opening braces only", input: "secret_key: {{"},
		{name: "one closing brace short", input: "secret_key: {{.NANGO_SECRET_KEY}"},
		{name: "braces reversed", input: "secret_key: }}.NANGO_SECRET_KEY{{"},
		{name: "missing leading dot", input: "secret_key: {{NANGO_SECRET_KEY}}"},
		{name: "doubled-up braces", input: "secret_key: {{{{.NANGO_SECRET_KEY}}}}"},
		{name: "tripled opening braces", input: "secret_key: {{{.NANGO_SECRET_KEY}}}"},
		{name: "space inside the field name", input: "secret_key: {{.NANGO SECRET KEY}}"},
		{name: "punctuation inside the field name", input: "secret_key: {{.NANGO-SECRET-KEY!}}"},
		{name: "unclosed placeholder between valid lines", input: "host: localhost\nsecret_key: {{.NANGO_SECRET_KEY\nport: 8080"},
		{name: "two unclosed placeholders", input: "key1: {{.VAR1\nkey2: {{.VAR2"},
		{name: "pipeline syntax is not configured", input: "secret_key: {{.NANGO_SECRET_KEY | upper}}"},
		{name: "field access chained off a string value", input: "secret_key: {{.NANGO_SECRET_KEY.Nested.Field}}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("NANGO_SECRET_KEY", "should-not-leak")
			t.Setenv("VAR1", "should-not-leak")
			t.Setenv("VAR2", "should-not-leak")

			result := ExpandEnv([]byte(tt.input))

			assert.Equal(t, tt.input, string(result), "malformed template syntax must pass through byte-for-byte")
			assert.NotContains(t, string(result), "should-not-leak")
		})
	}
}

// TestExpandEnvThenYAMLUnmarshal exercises the real pipeline: a template
// failure doesn't need to fail config loading outright, only when the
// resulting bytes are also invalid YAML.
func TestExpandEnvThenYAMLUnmarshal(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantYAMLOK bool
	}{
		{
			name: "plain YAML with no placeholders",
			input: `
system:
  dashboard_url: http://localhost:3000
`,
			wantYAMLOK: true,
		},
		{
			name: "unclosed placeholder but still valid YAML once quoted",
			input: `
system:
  api_key: "{{.NANGO_SECRET_KEY"
`,
			wantYAMLOK: true,
		},
		{
			name: "unclosed placeholder AND broken indentation",
			input: `
system:
  api_key: {{.NANGO_SECRET_KEY
    bad_indent: true
`,
			wantYAMLOK: false,
		},
		{
			name: "unclosed placeholder inside a flow sequence stays valid YAML",
			input: `
mcp_servers:
  gmail:
    args: ["--token", "{{.NANGO_SECRET_KEY"]
`,
			wantYAMLOK: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expanded := ExpandEnv([]byte(tt.input))

			var out map[string]any
			err := yaml.Unmarshal(expanded, &out)

			if tt.wantYAMLOK {
				assert.NoError(t, err)
				assert.NotNil(t, out)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

// TestExpandEnvReturnsOriginalSliceOnError pins down that the fallback path
// hands back the exact original slice (not a re-copy), since loader.go reads
// the file once and expects ExpandEnv's output to be safe to reuse either way.
func TestExpandEnvReturnsOriginalSliceOnError(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "unclosed placeholder", input: "key: {{.VAR"},
		{name: "empty placeholder", input: "key: {{}}"},
		{name: "nested unclosed placeholders", input: "key: {{.VAR1 {{.VAR2}}}}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := []byte(tt.input)
			result := ExpandEnv(input)

			assert.Equal(t, tt.input, string(result))
			assert.True(t, &input[0] == &result[0], "must return the original byte slice, not a copy, on error")
		})
	}
}
