package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/cortexchat/internal/config"
	"github.com/cortexchat/internal/logging"
)

// EnvCheckResult holds the environment overrides found for the configuration
type EnvCheckResult struct {
	Missing  []string          // Credential variables that are not set
	Present  map[string]string // CORTEXCHAT_ variables that are set (secrets masked)
	Warnings []string          // Non-fatal warnings
}

var credentialVars = []string{
	config.EnvPrefix + "SNOWFLAKE__ACCOUNT_URL",
	config.EnvPrefix + "SNOWFLAKE__TOKEN",
}

// CheckEnvOverrides inspects environ for CORTEXCHAT_ overrides
func CheckEnvOverrides(environ []string) *EnvCheckResult {
	result := &EnvCheckResult{
		Missing:  []string{},
		Present:  make(map[string]string),
		Warnings: []string{},
	}

	for _, kv := range environ {
		key, val, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, config.EnvPrefix) || val == "" {
			continue
		}
		if isSecretVar(key) {
			val = logging.MaskSecret(val)
		}
		result.Present[key] = val

		if !strings.Contains(strings.TrimPrefix(key, config.EnvPrefix), "__") {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("%s has no section separator (use __, e.g. %sSNOWFLAKE__TOKEN)", key, config.EnvPrefix))
		}
	}

	for _, v := range credentialVars {
		if _, ok := result.Present[v]; !ok {
			result.Missing = append(result.Missing, v)
		}
	}

	return result
}

func isSecretVar(key string) bool {
	upper := strings.ToUpper(key)
	return strings.HasSuffix(upper, "TOKEN") || strings.Contains(upper, "SECRET") || strings.Contains(upper, "PASSWORD")
}

// PrintEnvCheck prints the environment check results
func PrintEnvCheck(w io.Writer, result *EnvCheckResult) {
	fmt.Fprintln(w, "=== Environment Check ===")
	fmt.Fprintln(w, "")

	if len(result.Missing) > 0 {
		fmt.Fprintln(w, "Not set in the environment (must come from the config file):")
		for _, v := range result.Missing {
			fmt.Fprintf(w, "   - %s\n", v)
		}
		fmt.Fprintln(w, "")
	}

	if len(result.Present) > 0 {
		keys := make([]string, 0, len(result.Present))
		for k := range result.Present {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		fmt.Fprintln(w, "Environment overrides:")
		for _, k := range keys {
			fmt.Fprintf(w, "   - %s = %s\n", k, result.Present[k])
		}
		fmt.Fprintln(w, "")
	}

	for _, warning := range result.Warnings {
		fmt.Fprintf(w, "Warning: %s\n", warning)
	}

	fmt.Fprintln(w, "=========================")
}
