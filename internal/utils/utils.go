// Package utils holds small helpers shared by the commands.
package utils

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/mitchellh/go-homedir"
)

// ExpandPath expands tilde and all environment variables from the given
// path.
func ExpandPath(path string) string {
	s, err := homedir.Expand(path)
	if err == nil {
		return os.ExpandEnv(s)
	}
	return os.ExpandEnv(path)
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SafeFileName turns an episode title into a file name.
func SafeFileName(title, ext string) string {
	name := strings.Trim(unsafeName.ReplaceAllString(strings.TrimSpace(title), "-"), "-.")
	if name == "" {
		name = "episode"
	}
	return filepath.Clean(name + ext)
}
