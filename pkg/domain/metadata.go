package domain

// SourceUploaded marks reports whose HTML was uploaded instead of generated.
const SourceUploaded = "UPLOADED"

// AIMetadata accumulates model usage for a report across generation and
// refinement calls.
type AIMetadata struct {
	Model         string        `json:"model,omitempty"`
	InputTokens   int64         `json:"inputTokens"`
	OutputTokens  int64         `json:"outputTokens"`
	Duration      int64         `json:"duration"`
	ProjectStatus ProjectHealth `json:"projectStatus,omitempty"`
	Source        string        `json:"source,omitempty"`
}

// UploadedMetadata is the zero-cost marker stored on HTML uploads.
func UploadedMetadata() AIMetadata {
	return AIMetadata{Source: SourceUploaded}
}

// Add folds the usage of one call into the accumulated value. Counters are
// summed; model and project status take the latest non-empty value.
func (m AIMetadata) Add(call AIMetadata) AIMetadata {
	out := m
	out.InputTokens += call.InputTokens
	out.OutputTokens += call.OutputTokens
	out.Duration += call.Duration
	if call.Model != "" {
		out.Model = call.Model
	}
	if call.ProjectStatus != "" {
		out.ProjectStatus = call.ProjectStatus
	}
	if call.Source != "" {
		out.Source = call.Source
	}
	return out
}

// Accumulate adds call onto prior, treating a nil prior as zero usage.
func Accumulate(prior *AIMetadata, call AIMetadata) AIMetadata {
	if prior == nil {
		return AIMetadata{}.Add(call)
	}
	return prior.Add(call)
}

// Uploaded reports whether the metadata carries the upload sentinel.
func (m AIMetadata) Uploaded() bool {
	return m.Source == SourceUploaded
}
