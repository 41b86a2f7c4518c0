package models

// Placeholder tokens embedded by the analysis model in the generated
// document HTML. Each appears exactly once and is replaced during
// assembly with artifact markup, or with an empty string when the
// artifact was not produced.
const (
	AudioPlaceholder   = "[[AUDIO_PLAYER_PLACEHOLDER]]"
	DiagramPlaceholder = "[[DIAGRAM_PLACEHOLDER]]"
)

// UploadedFile is one architecture document submitted for analysis.
type UploadedFile struct {
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

// DiagramOptions configure AI-generated diagram images.
type DiagramOptions struct {
	AspectRatio    string `json:"aspect_ratio"`
	NumberOfImages int    `json:"number_of_images"`
	Style          string `json:"style"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
}

// AnalysisRequest carries the user input for one analysis run.
type AnalysisRequest struct {
	Files          []UploadedFile `json:"files"`
	Context        string         `json:"context"`
	Constraints    string         `json:"constraints"`
	Priorities     string         `json:"priorities"`
	Voice          string         `json:"voice,omitempty"`
	NarrationStyle string         `json:"narration_style,omitempty"`
	Diagram        DiagramOptions `json:"diagram"`
}

// AnalysisResponse is the raw output of the document analysis call,
// before audio and diagram artifacts are assembled in. DocumentHTML
// still contains the placeholder tokens.
type AnalysisResponse struct {
	DocumentHTML     string `json:"document_html"`
	DocumentMarkdown string `json:"document_markdown"`
	AudioSummary     string `json:"audio_summary,omitempty"`
	DiagramPrompt    string `json:"diagram_prompt,omitempty"`
}

// ArtifactStatus tracks the lifecycle of an optional artifact within a
// composite result.
type ArtifactStatus string

const (
	ArtifactNotRequested ArtifactStatus = "not_requested"
	ArtifactPending      ArtifactStatus = "pending"
	ArtifactReady        ArtifactStatus = "ready"
	ArtifactFailed       ArtifactStatus = "failed"
)

// AnalysisResult is the composite artifact handed to the presentation
// layer: final document with artifact markup spliced in, plus the raw
// payloads and per-artifact status.
type AnalysisResult struct {
	DocumentHTML     string         `json:"document_html"`
	DocumentMarkdown string         `json:"document_markdown"`
	AudioData        string         `json:"audio_data,omitempty"`
	AudioStatus      ArtifactStatus `json:"audio_status"`
	DiagramImages    []string       `json:"diagram_images,omitempty"`
	DiagramStatus    ArtifactStatus `json:"diagram_status"`
	DiagramPrompt    string         `json:"diagram_prompt,omitempty"`
}
