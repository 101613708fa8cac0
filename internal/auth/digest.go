// Package auth implements the HTTP Digest challenge-response scheme spoken by
// the LOM320 web module (RFC 2617, MD5 with optional qop=auth).
package auth

import (
	"crypto/md5"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"
)

// challengeTTL bounds how long a server nonce is reused before a fresh
// challenge is requested. The LOM firmware expires nonces after a few minutes.
const challengeTTL = 5 * time.Minute

var challengeParamRe = regexp.MustCompile(`(\w+)=("[^"]*"|[^,]+)`)

// challenge holds the parameters of a WWW-Authenticate: Digest header.
type challenge struct {
	realm     string
	nonce     string
	qop       string
	algorithm string
	opaque    string
}

// parseChallenge parses a WWW-Authenticate header value. It returns false when
// the header does not carry a Digest challenge.
func parseChallenge(header string) (challenge, bool) {
	if !strings.HasPrefix(header, "Digest ") {
		return challenge{}, false
	}

	params := make(map[string]string)
	for _, m := range challengeParamRe.FindAllStringSubmatch(header[len("Digest "):], -1) {
		params[strings.ToLower(m[1])] = strings.Trim(m[2], `"`)
	}

	ch := challenge{
		realm:     params["realm"],
		nonce:     params["nonce"],
		qop:       params["qop"],
		algorithm: params["algorithm"],
		opaque:    params["opaque"],
	}
	if ch.algorithm == "" {
		ch.algorithm = "MD5"
	}
	// qop may list several directives; auth is the only one the LOM uses.
	if strings.Contains(ch.qop, "auth") {
		ch.qop = "auth"
	}
	if ch.realm == "" || ch.nonce == "" {
		return challenge{}, false
	}

	return ch, true
}

// Transport is an http.RoundTripper that answers Digest challenges with the
// configured credentials. It caches the server challenge so steady-state
// requests need a single round trip, and re-challenges once on 401 before
// giving up. Only body-less requests are supported; the LOM protocol is GET
// throughout.
type Transport struct {
	Username string
	Password string
	Base     http.RoundTripper

	mu      sync.Mutex
	chal    *challenge
	chalAt  time.Time
	counter uint32
}

// NewTransport creates a digest transport around base. A nil base falls back
// to http.DefaultTransport.
func NewTransport(username, password string, base http.RoundTripper) *Transport {
	return &Transport{Username: username, Password: password, Base: base}
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Body != nil {
		return nil, fmt.Errorf("digest transport does not support request bodies")
	}

	if ch := t.cachedChallenge(); ch != nil {
		authed := req.Clone(req.Context())
		authed.Header.Set("Authorization", t.authorize(req.Method, requestURI(req), *ch))
		res, err := t.base().RoundTrip(authed)
		if err != nil {
			return nil, err
		}
		if res.StatusCode != http.StatusUnauthorized {
			return res, nil
		}
		// Nonce expired or rejected; fall through and re-challenge.
		t.invalidate()
		res.Body.Close()
	}

	res, err := t.base().RoundTrip(req.Clone(req.Context()))
	if err != nil {
		return nil, err
	}
	if res.StatusCode != http.StatusUnauthorized {
		return res, nil
	}

	ch, ok := parseChallenge(res.Header.Get("WWW-Authenticate"))
	if !ok {
		// Not a Digest server, or bad credentials against a stale nonce;
		// surface the 401 to the caller.
		return res, nil
	}
	res.Body.Close()

	t.storeChallenge(ch)
	authed := req.Clone(req.Context())
	authed.Header.Set("Authorization", t.authorize(req.Method, requestURI(req), ch))

	res, err = t.base().RoundTrip(authed)
	if err != nil {
		return nil, err
	}
	if res.StatusCode == http.StatusUnauthorized {
		t.invalidate()
	}
	return res, nil
}

func (t *Transport) cachedChallenge() *challenge {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.chal == nil || time.Since(t.chalAt) > challengeTTL {
		t.chal = nil
		return nil
	}
	ch := *t.chal
	return &ch
}

func (t *Transport) storeChallenge(ch challenge) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.chal = &ch
	t.chalAt = time.Now()
	t.counter = 0
}

func (t *Transport) invalidate() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.chal = nil
	t.counter = 0
}

// authorize computes the Authorization header for one request.
func (t *Transport) authorize(method, uri string, ch challenge) string {
	t.mu.Lock()
	t.counter++
	nc := fmt.Sprintf("%08x", t.counter)
	t.mu.Unlock()

	cnonce := newCnonce()

	ha1 := md5hex(t.Username + ":" + ch.realm + ":" + t.Password)
	ha2 := md5hex(method + ":" + uri)

	var response string
	if ch.qop != "" {
		response = md5hex(strings.Join([]string{ha1, ch.nonce, nc, cnonce, ch.qop, ha2}, ":"))
	} else {
		response = md5hex(ha1 + ":" + ch.nonce + ":" + ha2)
	}

	parts := []string{
		fmt.Sprintf("username=%q", t.Username),
		fmt.Sprintf("realm=%q", ch.realm),
		fmt.Sprintf("nonce=%q", ch.nonce),
		fmt.Sprintf("uri=%q", uri),
		fmt.Sprintf("response=%q", response),
		"algorithm=" + ch.algorithm,
	}
	if ch.qop != "" {
		parts = append(parts, "qop="+ch.qop, "nc="+nc, fmt.Sprintf("cnonce=%q", cnonce))
	}
	if ch.opaque != "" {
		parts = append(parts, fmt.Sprintf("opaque=%q", ch.opaque))
	}

	return "Digest " + strings.Join(parts, ", ")
}

// requestURI returns the path?query form used in the digest computation.
func requestURI(req *http.Request) string {
	uri := req.URL.EscapedPath()
	if uri == "" {
		uri = "/"
	}
	if req.URL.RawQuery != "" {
		uri += "?" + req.URL.RawQuery
	}
	return uri
}

func md5hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func newCnonce() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
