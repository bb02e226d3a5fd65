package obs

import "strings"

// collections whose next path segment is a resource id.
var idCollections = map[string]bool{
	"organizations": true,
	"projects":      true,
	"stories":       true,
	"entries":       true,
	"members":       true,
	"invitations":   true,
}

// CanonicalPath normalizes a request path into a low-cardinality metric
// label: resource ids under known collections become ":id" and query
// strings are dropped.
func CanonicalPath(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if p == "" || p == "/" {
		return "/"
	}
	segments := strings.Split(strings.Trim(p, "/"), "/")
	for i := 0; i < len(segments)-1; i++ {
		if idCollections[segments[i]] {
			segments[i+1] = ":id"
			i++
		}
	}
	return "/" + strings.Join(segments, "/")
}
