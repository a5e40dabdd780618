// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

var contentTypes = map[string]string{
	".html": "text/html; charset=utf-8",
	".css":  "text/css; charset=utf-8",
	".js":   "application/javascript; charset=utf-8",
	".mjs":  "application/javascript; charset=utf-8",
	".json": "application/json; charset=utf-8",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".svg":  "image/svg+xml",
	".ico":  "image/x-icon",
	".webp": "image/webp",
	".txt":  "text/plain; charset=utf-8",
}

func contentTypeFor(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// staticHandler serves files from the configured static directory. "/" and
// directories serve their index.html. Paths escaping the directory get 403.
func (s *Server) staticHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "405 Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}

		cfg, _, _ := s.snapshot()
		root, err := filepath.Abs(cfg.Server.StaticDir)
		if err != nil {
			http.Error(w, "404 Not Found", http.StatusNotFound)
			return
		}

		name, ok := resolveStatic(root, r.URL.Path)
		if !ok {
			http.Error(w, "403 Forbidden", http.StatusForbidden)
			return
		}

		info, err := os.Stat(name)
		if err == nil && info.IsDir() {
			name = filepath.Join(name, "index.html")
			info, err = os.Stat(name)
		}
		if err != nil || info.IsDir() {
			http.Error(w, "404 Not Found", http.StatusNotFound)
			return
		}

		f, err := os.Open(name)
		if err != nil {
			http.Error(w, "404 Not Found", http.StatusNotFound)
			return
		}
		defer f.Close()

		w.Header().Set("Content-Type", contentTypeFor(name))
		http.ServeContent(w, r, info.Name(), info.ModTime(), f)
	})
}

// resolveStatic maps a URL path to a file under root. It reports false for
// paths with parent segments or NUL bytes, or that would land outside root.
func resolveStatic(root, urlPath string) (string, bool) {
	if strings.ContainsRune(urlPath, 0) {
		return "", false
	}
	for _, seg := range strings.Split(strings.ReplaceAll(urlPath, `\`, "/"), "/") {
		if seg == ".." {
			return "", false
		}
	}

	clean := path.Clean("/" + urlPath)
	name := filepath.Join(root, filepath.FromSlash(clean))
	if name != root && !strings.HasPrefix(name, root+string(filepath.Separator)) {
		return "", false
	}
	return name, true
}
