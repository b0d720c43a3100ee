package verification

import "regexp"

// Older backends only embed the dev code in the free-text message.
var devCodePattern = regexp.MustCompile(`\[DEV MODE\][^0-9]*(\d{6})\b`)

func extractDevCode(res CodeIssued) string {
	if len(res.DevCode) == CodeLength {
		return res.DevCode
	}
	if m := devCodePattern.FindStringSubmatch(res.Message); m != nil {
		return m[1]
	}
	return ""
}
