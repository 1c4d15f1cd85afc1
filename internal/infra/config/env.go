package config

import (
	"fmt"
	"os"
	"regexp"
)

// envToken matches ${VAR} and ${VAR:-default}.
var envToken = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

func substituteEnv(raw []byte) ([]byte, error) {
	var firstErr error
	out := envToken.ReplaceAllFunc(raw, func(match []byte) []byte {
		groups := envToken.FindSubmatch(match)
		name := string(groups[1])
		hasDefault := len(groups[2]) > 0
		if val, ok := os.LookupEnv(name); ok {
			return []byte(val)
		}
		if hasDefault {
			return groups[3]
		}
		if firstErr == nil {
			firstErr = fmt.Errorf("unresolved environment variable %q with no default", name)
		}
		return match
	})
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}
