package client

import (
	"net/url"
	"regexp"
	"strings"
)

// Stored-video references reach the pipeline in three shapes: a full signed
// URL from the storage host, a bucket-prefixed path, or a bare key. All of
// them normalize to the bucket-relative key the storage API expects.
var storageObjectPattern = regexp.MustCompile(`/storage/v1/object/(?:public|authenticated)/[^/]+/(.+)`)

// knownBucketPrefixes are bucket names that sometimes leak into stored
// references as a leading path segment.
var knownBucketPrefixes = []string{"videos/", "frames/"}

// ResolveStorageKey normalizes a stored-object reference into a canonical
// bucket-relative key. Pure function, no I/O; the result is percent-decoded
// exactly once.
func ResolveStorageKey(ref string) string {
	key := ref

	if m := storageObjectPattern.FindStringSubmatch(ref); m != nil {
		key = m[1]
		if i := strings.IndexByte(key, '?'); i >= 0 {
			key = key[:i]
		}
	} else {
		for _, prefix := range knownBucketPrefixes {
			if strings.HasPrefix(key, prefix) {
				key = key[len(prefix):]
				break
			}
		}
	}

	if decoded, err := url.PathUnescape(key); err == nil {
		key = decoded
	}
	return key
}
