package generation

import "fmt"

// ParseError means the model answer could not be decoded at all.
type ParseError struct {
	// Excerpt is a bounded prefix of the raw answer for logs.
	Excerpt string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse model response: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// MissingArtifactError means the decoded answer lacks the html document.
type MissingArtifactError struct {
	Field string
}

func (e *MissingArtifactError) Error() string {
	return fmt.Sprintf("model response has no %s", e.Field)
}

// InvalidArtifactError means a refinement did not return HTML.
type InvalidArtifactError struct {
	Excerpt string
}

func (e *InvalidArtifactError) Error() string {
	return "refined output is not an HTML document"
}
