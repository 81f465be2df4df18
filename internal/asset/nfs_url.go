package asset

import (
	"fmt"
	"strings"

	"github.com/aimerfeng/neuralfs/internal/errors"
)

// scheme is the custom URL scheme the shell uses to embed assets without
// hardcoding the loopback port. A URL of the form nfs://<kind>/<id> addresses the same
// resource as http://127.0.0.1:<port>/<kind>/<id>.
const scheme = "nfs://"

// BuildNFSURL constructs the nfs:// form of an asset reference for a given
// route kind ("thumbnail", "preview", or "file") and asset id.
func BuildNFSURL(kind, id string) string {
	return fmt.Sprintf("%s%s/%s", scheme, kind, id)
}

// ParseNFSURL extracts the route kind and asset id from an nfs:// URL so
// the shell's embedding layer (a <webview> or similar) can be pointed at
// one consistent addressing scheme that the asset server resolves the same
// way regardless of whether it arrived over HTTP or the custom scheme.
func ParseNFSURL(raw string) (kind, id string, err error) {
	if !strings.HasPrefix(raw, scheme) {
		return "", "", errors.ValidationError("not an nfs:// url: "+raw, nil)
	}
	rest := strings.TrimPrefix(raw, scheme)
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", errors.ValidationError("malformed nfs:// url: "+raw, nil)
	}
	switch parts[0] {
	case "thumbnail", "preview", "file":
		return parts[0], parts[1], nil
	default:
		return "", "", errors.ValidationError("unknown nfs:// route: "+parts[0], nil)
	}
}
