package config

import (
	"bytes"
	"os"
	"text/template"
)

// ExpandEnv expands environment variables in the tuning YAML through Go
// templates, using {{.VAR_NAME}} syntax instead of $VAR.
//
// Tuning files routinely carry literal $ characters that shell-style
// expansion would mangle:
//   - Broker URLs with encoded credentials: amqp://user:p@ss$word@host
//   - Template part text pasted inline for testing: "price\$[0-9]+"
//   - Queue address patterns: ${prefix}_pipelines
//
// Examples:
//   - {{.AMQP_URL}} → value of AMQP_URL
//   - {{.DB_HOST}}:{{.DB_PORT}} → both variables expanded in place
//   - address: "${AMQP_PREFIX}_events" → preserved literally ($ not touched)
//
// Missing variables expand to the empty string; Tuning validation rejects
// required fields left empty that way.
func ExpandEnv(data []byte) []byte {
	tmpl, err := template.New("tuning").Option("missingkey=zero").Parse(string(data))
	if err != nil {
		// Not a template (or malformed); YAML without template syntax
		// passes through untouched.
		return data
	}

	envMap := make(map[string]string)
	for _, env := range os.Environ() {
		// Split on the first = only; values may contain = themselves.
		if idx := bytes.IndexByte([]byte(env), '='); idx > 0 {
			envMap[env[:idx]] = env[idx+1:]
		}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, envMap); err != nil {
		return data
	}
	return buf.Bytes()
}
