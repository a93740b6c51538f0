package codec

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// ParseDataURI accepts either "<prefix>,<base64>" (a data URI such as
// "data:image/png;base64,....") or bare base64 and returns the decoded
// bytes.
func ParseDataURI(s string) ([]byte, error) {
	payload := strings.TrimSpace(s)
	if _, after, ok := strings.Cut(payload, ","); ok {
		payload = after
	}
	payload = strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', ' ', '\t':
			return -1
		}
		return r
	}, payload)
	if payload == "" {
		return nil, fmt.Errorf("%w: empty base64 payload", ErrImageFormat)
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		raw, rawErr := base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if rawErr != nil {
			return nil, fmt.Errorf("%w: invalid base64: %v", ErrImageFormat, err)
		}
		data = raw
	}
	return data, nil
}

// DataURI renders data as a base64 data URI with the format's content type.
func DataURI(format string, data []byte) string {
	return "data:" + ContentType(format) + ";base64," + base64.StdEncoding.EncodeToString(data)
}
