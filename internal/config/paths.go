package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ResolveChatDBPath finds the message store based on flag, env, config,
// or the platform default, in that order.
func ResolveChatDBPath(explicit, configured string) (string, error) {
	tried := []string{}

	if explicit != "" {
		path := expandPath(explicit)
		if fileExists(path) {
			return path, nil
		}
		return "", fmt.Errorf("message database not found at %s", path)
	}

	if env := os.Getenv("CHATVAULT_DB"); env != "" {
		path := expandPath(env)
		tried = append(tried, path)
		if fileExists(path) {
			return path, nil
		}
	}

	if configured != "" {
		path := expandPath(configured)
		tried = append(tried, path)
		if fileExists(path) {
			return path, nil
		}
	}

	for _, path := range defaultChatDBPaths() {
		path = expandPath(path)
		tried = append(tried, path)
		if fileExists(path) {
			return path, nil
		}
	}

	return "", fmt.Errorf("could not find message database (is Full Disk Access granted?); tried: %s", strings.Join(tried, ", "))
}

func defaultChatDBPaths() []string {
	return []string{
		"~/Library/Messages/chat.db",
	}
}

func expandPath(path string) string {
	if path == "" {
		return path
	}
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return os.ExpandEnv(path)
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return false
	}
	return err == nil && !info.IsDir()
}
