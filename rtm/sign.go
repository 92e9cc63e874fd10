package rtm

import (
	"crypto/md5"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// Params holds the request parameters for a single API call.
// Keys are unique; values are sent unencoded to the signer and
// URL-encoded on the wire.
type Params map[string]string

// clone returns a shallow copy so callers can keep building on the
// original without affecting an in-flight request.
func (p Params) clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Sign computes the api_sig for a parameter set: the md5 digest of the
// shared secret followed by every key/value pair concatenated in
// lexicographic key order, rendered as lowercase hex. The result depends
// only on the parameter set, not on insertion order.
func Sign(secret string, params Params) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(secret)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(params[k])
	}

	sum := md5.Sum([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// SignedURL builds a full request URL for base, appending every parameter
// plus the api_sig computed over them.
func SignedURL(base, secret string, params Params) string {
	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}
	values.Set("api_sig", Sign(secret, params))
	return base + "?" + values.Encode()
}
