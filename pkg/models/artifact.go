package models

// File paths committed to every published repository, in commit order.
const (
	FileIndex   = "index.html"
	FileReadme  = "README.md"
	FileLicense = "LICENSE"
)

// File is a single path and its content.
type File struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// GeneratedArtifact holds the files produced for one task request.
type GeneratedArtifact struct {
	// Content is the model-produced application source (index.html).
	Content string `json:"content"`
	// Readme is the README.md text.
	Readme string `json:"readme"`
	// License is the LICENSE text.
	License string `json:"license"`
}

// Files returns the artifact as an ordered file set.
func (a GeneratedArtifact) Files() []File {
	return []File{
		{Path: FileIndex, Content: a.Content},
		{Path: FileReadme, Content: a.Readme},
		{Path: FileLicense, Content: a.License},
	}
}
