package domain

// User is the identity returned by the user catalog.
// Only the ID matters for session tracking.
type User struct {
	ID          string `json:"id" yaml:"id"`
	DisplayName string `json:"display_name,omitempty" yaml:"display_name,omitempty"`
}

// Book is the display information returned by the book catalog.
type Book struct {
	ID       string `json:"id" yaml:"id"`
	Title    string `json:"title" yaml:"title"`
	CoverURL string `json:"cover_url,omitempty" yaml:"cover_url,omitempty"`
}
