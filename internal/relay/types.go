// Package relay defines core types shared across the worker and supervisor.
package relay

// Candidate is a single post scraped from the watched feed before filtering.
// Absent values are represented by empty strings.
type Candidate struct {
	// ID is the opaque post identifier taken from the detail link.
	ID string
	// Text is the raw rendered post text.
	Text string
	// Handle is the author's account name without the leading "@".
	Handle string
	// DisplayName is the author's visible name.
	DisplayName string
	// AvatarURL points at the author's profile image.
	AvatarURL string
}

// Snapshot is what one fetch of the feed page yields.
type Snapshot struct {
	Candidates []Candidate
	Title      string
	// LoginWall is set when the page body looks like a login prompt.
	LoginWall bool
}

// Payload is the filtered, normalized message handed to the sinks.
type Payload struct {
	// ID is the candidate id the payload was derived from.
	ID        string
	Content   string
	Username  string
	AvatarURL string
	Handle    string
}
