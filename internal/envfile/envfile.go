// Package envfile maintains the operator-editable .env file shared by the
// supervisor and the worker.
package envfile

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"

	"github.com/subosito/gotenv"
)

// Keys lists the settings exposed to the operator, in file order.
var Keys = []string{"DISCORD_WEBHOOK_URL", "HASHTAG", "POLL_SECONDS", "MAX_TEXT_LEN", "HIGHLIGHT_IDS"}

// Defaults holds the value written for each key when the file is created.
var Defaults = map[string]string{
	"DISCORD_WEBHOOK_URL": "",
	"HASHTAG":             "animaymg",
	"POLL_SECONDS":        "30",
	"MAX_TEXT_LEN":        "0",
	"HIGHLIGHT_IDS":       "",
}

// ErrInvalidValue is returned by Patch for values the file cannot hold on one line.
var ErrInvalidValue = errors.New("invalid env value")

var (
	keyLine    = regexp.MustCompile(`^\s*([A-Za-z0-9_]+)\s*=`)
	extraBreak = regexp.MustCompile(`\n{3,}`)
)

const header = "# Local config for tagrelay\n" +
	"# Auto-generated on supervisor startup if missing.\n" +
	"# Keep secrets private and do not commit this file.\n" +
	"# Quote values that contain #, $ or spaces, e.g. HASHTAG='#foo'.\n"

// Ensure creates the file with a comment header and defaults when it does not exist.
// It reports whether a new file was written.
func Ensure(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("stat env file: %w", err)
	}
	var b strings.Builder
	b.WriteString(header)
	for _, key := range Keys {
		fmt.Fprintf(&b, "%s=%s\n", key, Defaults[key])
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o600); err != nil {
		return false, fmt.Errorf("write env file: %w", err)
	}
	return true, nil
}

// Values returns the recognized keys, defaulted, overlaid with what the file holds.
// A missing file yields the defaults.
func Values(path string) (map[string]string, error) {
	values := make(map[string]string, len(Keys))
	for _, key := range Keys {
		values[key] = Defaults[key]
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return values, nil
		}
		return nil, fmt.Errorf("read env file: %w", err)
	}
	parsed, err := gotenv.StrictParse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse env file: %w", err)
	}
	for _, key := range Keys {
		if val, ok := parsed[key]; ok {
			values[key] = val
		}
	}
	return values, nil
}

// Patch rewrites the recognized keys with the supplied values. Unrelated lines
// and comments are kept in place, duplicate recognized keys are dropped and any
// recognized key the file lacks is appended.
func Patch(path string, patch map[string]string) (map[string]string, error) {
	values, err := Values(path)
	if err != nil {
		return nil, err
	}
	for key, val := range patch {
		if !slices.Contains(Keys, key) {
			continue
		}
		values[key] = val
	}
	encoded := make(map[string]string, len(Keys))
	for _, key := range Keys {
		enc, err := encode(values[key])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		encoded[key] = key + "=" + enc
	}

	var lines []string
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		lines = strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
		for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
			lines = lines[:len(lines)-1]
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("read env file: %w", err)
	}

	out := make([]string, 0, len(lines)+len(Keys))
	written := make(map[string]bool, len(Keys))
	for _, line := range lines {
		m := keyLine.FindStringSubmatch(line)
		if m == nil || !slices.Contains(Keys, m[1]) {
			out = append(out, line)
			continue
		}
		if written[m[1]] {
			continue
		}
		written[m[1]] = true
		out = append(out, encoded[m[1]])
	}
	for _, key := range Keys {
		if !written[key] {
			out = append(out, encoded[key])
		}
	}

	body := extraBreak.ReplaceAllString(strings.Join(out, "\n"), "\n\n")
	body = strings.Trim(body, "\n") + "\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		return nil, fmt.Errorf("write env file: %w", err)
	}
	return values, nil
}

// encode renders val so gotenv reads it back unchanged. Plain values stay bare;
// anything gotenv would treat as a comment, a variable or a quote is wrapped in
// single quotes, which gotenv takes literally.
func encode(val string) (string, error) {
	if strings.ContainsAny(val, "\r\n") {
		return "", fmt.Errorf("%w: line breaks are not allowed", ErrInvalidValue)
	}
	if !strings.ContainsAny(val, "#$'\"\\ \t") {
		return val, nil
	}
	if strings.HasSuffix(val, "\\") {
		return "", fmt.Errorf("%w: quoted value cannot end with a backslash", ErrInvalidValue)
	}
	return "'" + val + "'", nil
}

// SetHighlight persists the highlighted handles as HIGHLIGHT_IDS.
func SetHighlight(path string, handles []string) error {
	_, err := Patch(path, map[string]string{"HIGHLIGHT_IDS": strings.Join(handles, ",")})
	return err
}
