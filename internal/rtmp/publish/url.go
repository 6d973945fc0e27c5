package publish

import (
	"fmt"
	"net"
	"strings"

	"github.com/alxayo/rtmp-publish/internal/errors"
)

// defaultPort is used when the URL carries no explicit port, per the
// publisher spec's URL grammar (§6 of the original spec / §8 S2).
const defaultPort = "1935"

// target is the parsed form of a server URL: rtmp://host[:port]/app/playPath.
type target struct {
	host     string
	port     string
	app      string
	playPath string
}

// addr returns the host:port pair suitable for net.Dialer.DialContext.
func (t target) addr() string {
	return net.JoinHostPort(t.host, t.port)
}

// parseServerURL accepts rtmp://, http://, and https:// schemes (the latter
// two are normalised to rtmp, per §4.5's "SetServer accepts rtmp://,
// http://, https://" requirement) and an implicit-scheme form
// ("host/app/play" with no "://" at all), prepending "rtmp://" to it.
// The path must be exactly "/<app>/<playPath>" — one slash after stripping
// the leading slash — otherwise BadUrl is returned (§8 S3).
func parseServerURL(raw string) (target, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return target{}, errors.NewUrlError("publish.parse_url", fmt.Errorf("empty server url"))
	}

	normalized := raw
	switch {
	case strings.HasPrefix(raw, "rtmp://"):
		// already in the expected scheme
	case strings.HasPrefix(raw, "http://"):
		normalized = "rtmp://" + strings.TrimPrefix(raw, "http://")
	case strings.HasPrefix(raw, "https://"):
		normalized = "rtmp://" + strings.TrimPrefix(raw, "https://")
	case strings.Contains(raw, "://"):
		scheme := raw[:strings.Index(raw, "://")]
		return target{}, errors.NewUrlError("publish.parse_url", fmt.Errorf("unsupported scheme %q", scheme))
	default:
		normalized = "rtmp://" + raw
	}

	rest := strings.TrimPrefix(normalized, "rtmp://")
	slash := strings.IndexByte(rest, '/')
	if slash < 0 {
		return target{}, errors.NewUrlError("publish.parse_url", fmt.Errorf("missing /app/playPath in %q", raw))
	}
	hostport := rest[:slash]
	path := rest[slash+1:] // everything after the first '/', leading slash stripped

	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		host, port = hostport, defaultPort
	}
	if host == "" {
		return target{}, errors.NewUrlError("publish.parse_url", fmt.Errorf("missing host in %q", raw))
	}

	segs := strings.Split(path, "/")
	if len(segs) != 2 || segs[0] == "" || segs[1] == "" {
		return target{}, errors.NewUrlError("publish.parse_url", fmt.Errorf("path must be exactly /app/playPath, got %q", path))
	}

	return target{host: host, port: port, app: segs[0], playPath: segs[1]}, nil
}

// formatServerURL is the inverse of parseServerURL, used by the round-trip
// test property parse(format(host, port, app, play)) == (host, port, app, play).
func formatServerURL(host, port, app, playPath string) string {
	if port == "" {
		port = defaultPort
	}
	return fmt.Sprintf("rtmp://%s/%s/%s", net.JoinHostPort(host, port), app, playPath)
}
