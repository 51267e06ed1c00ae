package rtspbase

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// URL is an RTSP URL: an HTTP URL with the rtsp/rtsps scheme and no opaque
// or fragment parts, trimmed to what a server needs to route a request to
// a stream (no credential handling, since this server issues no requests
// of its own).
type URL url.URL

var escapeRegexp = regexp.MustCompile(`^(.+?)://(.*?)@(.*?)/(.*?)$`)

// ParseURL parses an RTSP URL, working around a Go stdlib quirk where
// percent-escaped characters inside userinfo are mishandled
// (https://github.com/golang/go/issues/30611).
func ParseURL(s string) (*URL, error) {
	m := escapeRegexp.FindStringSubmatch(s)
	if m != nil {
		m[3] = strings.ReplaceAll(m[3], "%25", "%")
		m[3] = strings.ReplaceAll(m[3], "%", "%25")
		s = m[1] + "://" + m[2] + "@" + m[3] + "/" + m[4]
	}

	u, err := url.Parse(s)
	if err != nil {
		return nil, err
	}

	if u.Scheme != "rtsp" && u.Scheme != "rtsps" {
		return nil, fmt.Errorf("unsupported scheme '%s'", u.Scheme)
	}
	if u.Opaque != "" {
		return nil, fmt.Errorf("URLs with opaque data are not supported")
	}
	if u.Fragment != "" {
		return nil, fmt.Errorf("URLs with fragments are not supported")
	}

	return (*URL)(u), nil
}

// String implements fmt.Stringer.
func (u *URL) String() string {
	return (*url.URL)(u).String()
}

// StreamPath returns the URL path with its leading slash stripped, the
// stream name the registry looks sessions up by.
func (u *URL) StreamPath() string {
	return strings.TrimPrefix(u.Path, "/")
}
