package rpc

// LoadRequest is the request body for POST /load. Files are per-target
// documentable trees that together form one module.
type LoadRequest struct {
	Module    string   `json:"module"`
	ModuleDir string   `json:"module_dir,omitempty"`
	Extension string   `json:"extension,omitempty"`
	Files     []string `json:"files"`
	// Replace discards an already loaded module of the same name instead of
	// merging the new trees into it.
	Replace bool `json:"replace,omitempty"`
}

type ModuleResult struct {
	Module    string   `json:"module"`
	Pages     int      `json:"pages"`
	Locations int      `json:"locations"`
	Platforms []string `json:"platforms,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// ProgressLine is a single line of NDJSON streamed from the load endpoint.
type ProgressLine struct {
	Type    string        `json:"type"` // "progress" or "result"
	Message string        `json:"message,omitempty"`
	Result  *ModuleResult `json:"result,omitempty"`
}

// ResolveRequest is the request body for POST /resolve. From names the ID of
// the page the link appears on; empty means the module root.
type ResolveRequest struct {
	Module    string   `json:"module"`
	ID        string   `json:"id"`
	Platforms []string `json:"platforms,omitempty"`
	From      string   `json:"from,omitempty"`
}

type ResolveResponse struct {
	Path  string `json:"path,omitempty"`
	Found bool   `json:"found"`
	// Persisted is set when the module was not loaded and the path came from
	// the published location table.
	Persisted bool `json:"persisted,omitempty"`
}

// ExternalRequest is the request body for POST /external.
type ExternalRequest struct {
	ID string `json:"id"`
}

type ExternalResponse struct {
	URL   string `json:"url,omitempty"`
	Found bool   `json:"found"`
}

// RewriteRequest is the request body for POST /rewrite.
type RewriteRequest struct {
	Module      string            `json:"module"`
	From        string            `json:"from,omitempty"`
	Platforms   []string          `json:"platforms,omitempty"`
	Markdown    string            `json:"markdown"`
	FrontMatter map[string]string `json:"front_matter,omitempty"`
}

type RewriteResponse struct {
	Markdown   string   `json:"markdown"`
	Unresolved []string `json:"unresolved,omitempty"`
}

// StatusResponse is the response body for GET /status.
type StatusResponse struct {
	Modules     []ModuleStatus   `json:"modules"`
	Manifests   []ManifestStatus `json:"manifests"`
	IndexBuilds int64            `json:"index_builds"`
	Fetches     int64            `json:"fetches"`
}

type ModuleStatus struct {
	Name      string `json:"name"`
	ModuleDir string `json:"module_dir"`
	Loaded    bool   `json:"loaded"`
	Pages     int    `json:"pages,omitempty"`
	Locations int    `json:"locations"`
}

type ManifestStatus struct {
	URL      string `json:"url"`
	Format   string `json:"format"`
	Packages int    `json:"packages"`
}

// ClearCacheResponse is the response body for POST /clear-cache.
type ClearCacheResponse struct {
	Manifests int64 `json:"manifests"`
}
