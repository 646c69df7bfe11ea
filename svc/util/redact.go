package util

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"regexp"
)

var (
	tokenPattern  = regexp.MustCompile(`[A-Za-z0-9_-]{32,}`)
	secretPattern = regexp.MustCompile(`(?i)(api_dev_key|api_user_key|api_user_password|password|token|secret|key)=([^\s&]+)`)
)

func RedactPasteContent(content string) string {
	if len(content) == 0 {
		return ""
	}
	if len(content) <= 20 {
		return "[REDACTED]"
	}
	return content[:10] + "...[REDACTED]..." + content[len(content)-10:]
}
func RedactIP(ip string) string {
	host, _, err := net.SplitHostPort(ip)
	if err == nil {
		ip = host
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		hash := sha256.Sum256([]byte(ip))
		return "hash:" + hex.EncodeToString(hash[:8])
	}
	if ipv4 := parsed.To4(); ipv4 != nil {
		ipv4[3] = 0
		return ipv4.String()
	}
	ipv6 := parsed.To16()
	for i := 4; i < 16; i++ {
		ipv6[i] = 0
	}
	return ipv6.String()
}

// RedactLogLine masks anything that looks like a key or a form credential.
func RedactLogLine(line string) string {
	line = secretPattern.ReplaceAllString(line, "$1=[REDACTED]")
	line = tokenPattern.ReplaceAllString(line, "[TOKEN-REDACTED]")
	return line
}
