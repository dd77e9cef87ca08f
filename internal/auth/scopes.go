package auth

// Known OAuth scopes accepted by the track API.
const (
	ScopeTracksWrite = "tracks:write"
	ScopeTracksRead  = "tracks:read"
)
