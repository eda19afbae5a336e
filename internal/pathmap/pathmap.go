// Package pathmap translates local file paths into the path namespace a media
// server uses for the same files.
package pathmap

import "strings"

// ResolvedPath is a file path as the media server sees it, together with the
// folder that contains it.
type ResolvedPath struct {
	File   string
	Folder string
}

// Translate maps a local path into the remote namespace.
//
// When a local prefix is set, its first occurrence is replaced with the remote
// prefix (which may be empty). When only a remote prefix is set, it is prepended.
// With neither, the path is returned unchanged. The substitution is purely
// textual; nothing checks that the result exists.
func Translate(localPath, localPrefix, remotePrefix string) ResolvedPath {
	file := rewritePath(localPath, localPrefix, remotePrefix)
	return ResolvedPath{
		File:   file,
		Folder: Folder(file),
	}
}

// Folder returns everything before the final path separator.
func Folder(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return ""
	}
	return path[:idx]
}

// Segments splits a path into its non-empty components.
func Segments(path string) []string {
	parts := strings.Split(path, "/")
	segments := make([]string, 0, len(parts))
	for _, part := range parts {
		if part != "" {
			segments = append(segments, part)
		}
	}
	return segments
}

func rewritePath(path, localPrefix, remotePrefix string) string {
	switch {
	case localPrefix != "":
		return strings.Replace(path, localPrefix, remotePrefix, 1)
	case remotePrefix != "":
		return remotePrefix + path
	default:
		return path
	}
}
