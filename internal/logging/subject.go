package logging

import "strings"

// FormatSubject builds the pair/job/channel subject string used in console output.
func FormatSubject(pair, jobGUID, channel string) string {
	pair = strings.TrimSpace(pair)
	jobGUID = strings.TrimSpace(jobGUID)
	channel = strings.TrimSpace(channel)
	parts := make([]string, 0, 3)
	if pair != "" {
		parts = append(parts, pair)
	}
	if jobGUID != "" {
		parts = append(parts, "Job "+jobGUID)
	}
	if channel != "" {
		parts = append(parts, "#"+channel)
	}
	return strings.Join(parts, " · ")
}
