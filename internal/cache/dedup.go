package cache

import (
	"net/url"
	"sort"
	"strings"

	"github.com/jonathan/study-resources/internal/db"
	"github.com/jonathan/study-resources/internal/types"
)

var trackingParams = map[string]bool{
	"fbclid": true, "gclid": true, "msclkid": true, "ref": true, "si": true,
}

// NormalizeURL canonicalizes a URL for duplicate detection. It returns ""
// when the URL cannot be parsed or has no host.
func NormalizeURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return ""
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme == "http" {
		scheme = "https"
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	host = strings.TrimSuffix(strings.TrimSuffix(host, ":443"), ":80")

	q := u.Query()
	keys := make([]string, 0, len(q))
	for k := range q {
		lk := strings.ToLower(k)
		if strings.HasPrefix(lk, "utm_") || trackingParams[lk] {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var query []string
	for _, k := range keys {
		vals := q[k]
		sort.Strings(vals)
		for _, v := range vals {
			query = append(query, url.QueryEscape(k)+"="+url.QueryEscape(v))
		}
	}

	path := strings.TrimRight(u.EscapedPath(), "/")
	out := scheme + "://" + host + path
	if len(query) > 0 {
		out += "?" + strings.Join(query, "&")
	}
	return out
}

// DedupKey returns the identity of a candidate within its partition, or ""
// when the candidate has none.
func DedupKey(kind types.ResourceKind, c types.Candidate) string {
	switch kind {
	case types.KindVideo:
		if c.ExternalID != "" {
			return "video:" + c.ExternalID
		}
		if u := NormalizeURL(c.URL); u != "" {
			return "url:" + u
		}
	case types.KindLink:
		if u := NormalizeURL(c.URL); u != "" {
			return "url:" + u
		}
	case types.KindExercise:
		if c.Exercise != nil {
			if s := types.Fold(c.Exercise.Statement); s != "" {
				return "exercise:" + db.Hash(s)[:32]
			}
		}
	}
	return ""
}
