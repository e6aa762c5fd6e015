package tracking

import "net/url"

// UTMKeys are the campaign parameters captured on a click.
var UTMKeys = []string{"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content"}

const maxUTMValueLen = 255

// CaptureUTM extracts the non-empty UTM parameters from q, or nil if none.
func CaptureUTM(q url.Values) map[string]string {
	var out map[string]string
	for _, key := range UTMKeys {
		v := q.Get(key)
		if v == "" {
			continue
		}
		if out == nil {
			out = make(map[string]string, len(UTMKeys))
		}
		out[key] = truncate(v, maxUTMValueLen)
	}
	return out
}
