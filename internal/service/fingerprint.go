package service

import "regexp"

var (
	uaDetailRe   = regexp.MustCompile(`\(([^)]+)\)`)
	uaPlatformRe = regexp.MustCompile(`(Windows|Mac|Linux|Android|iPhone|iPad)`)
)

// DeviceFingerprint derives a coarse device label from a User-Agent header.
// It is a best-effort audit signal, never an identity key: absent headers
// simply yield an empty-ish fingerprint.
func DeviceFingerprint(userAgent string) string {
	var detail, platform string
	if m := uaDetailRe.FindStringSubmatch(userAgent); len(m) > 1 {
		detail = m[1]
	}
	if m := uaPlatformRe.FindStringSubmatch(userAgent); len(m) > 1 {
		platform = m[1]
	}

	fp := platform + "_" + detail
	if len(fp) > 100 {
		fp = fp[:100]
	}
	return fp
}
