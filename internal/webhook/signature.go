package webhook

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/url"
	"sort"
	"strings"
)

// SignatureHeader carries the base64 HMAC-SHA1 of a webhook request.
const SignatureHeader = "X-Signature"

// Sign computes the signature of a form-encoded request: the URL followed by
// every POST parameter as key then value, keys sorted.
func Sign(secret, requestURL string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(requestURL)
	for _, k := range keys {
		for _, v := range params[k] {
			b.WriteString(k)
			b.WriteString(v)
		}
	}
	return sign(secret, b.String())
}

// SignBody computes the signature of a raw JSON request: the URL followed by the body.
func SignBody(secret, requestURL string, body []byte) string {
	return sign(secret, requestURL+string(body))
}

func sign(secret, data string) string {
	h := hmac.New(sha1.New, []byte(secret))
	h.Write([]byte(data))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

func verify(expected, signature string) bool {
	return signature != "" && hmac.Equal([]byte(expected), []byte(signature))
}
