package signalk

import (
	"net/url"
	"strings"
)

const (
	pathPosition         = "navigation.position"
	pathHeadingTrue      = "navigation.headingTrue"
	pathAnchorPosition   = "navigation.anchor.position"
	pathAnchorMaxRadius  = "navigation.anchor.maxRadius"
	pathAnchorRodeLength = "navigation.anchor.rodeLength"
)

// Config locates the SignalK server.
type Config struct {
	// URL is the server root, e.g. http://openplotter.local:3000
	URL   string
	Token string
}

func (c Config) apiURL(path string) string {
	return strings.TrimRight(c.URL, "/") + "/signalk/v1/api/vessels/self/" + strings.ReplaceAll(path, ".", "/")
}

func (c Config) streamURL() (string, error) {
	u, err := url.Parse(strings.TrimRight(c.URL, "/") + "/signalk/v1/stream")
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	q := u.Query()
	q.Set("subscribe", "none")
	u.RawQuery = q.Encode()
	return u.String(), nil
}
