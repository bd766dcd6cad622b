package domain

import "time"

type PipelineState string

const (
	StateReceived           PipelineState = "received"
	StateClassifying        PipelineState = "classifying"
	StateExtracting         PipelineState = "extracting"
	StateAssembled          PipelineState = "assembled"
	StateMerged             PipelineState = "merged"
	StateDiscrepancyChecked PipelineState = "discrepancy_checked"

	StateClassificationFailed PipelineState = "classification_failed"
	StateExtractionFailed     PipelineState = "extraction_failed"
	StateMergeFailed          PipelineState = "merge_failed"
)

func (s PipelineState) Failed() bool {
	switch s {
	case StateClassificationFailed, StateExtractionFailed, StateMergeFailed:
		return true
	default:
		return false
	}
}

// PipelineRun records how far one document got and what each completed
// state produced.
type PipelineRun struct {
	State          PipelineState         `json:"state"`
	History        []PipelineState       `json:"history"`
	Content        string                `json:"-"`
	Classification *ClassificationResult `json:"classification,omitempty"`
	Document       *Document             `json:"document,omitempty"`
	Entity         *Entity               `json:"entity,omitempty"`
	Discrepancies  []Discrepancy         `json:"discrepancies,omitempty"`
}

func NewPipelineRun() *PipelineRun {
	return &PipelineRun{
		State:   StateReceived,
		History: []PipelineState{StateReceived},
	}
}

func (r *PipelineRun) Advance(state PipelineState) {
	r.State = state
	r.History = append(r.History, state)
}

// PipelineResult is what a full upload run returns to its caller.
type PipelineResult struct {
	Document       Document             `json:"document"`
	Classification ClassificationResult `json:"classification"`
	Entity         *Entity              `json:"entity"`
	Discrepancies  []Discrepancy        `json:"discrepancies"`
	States         []PipelineState      `json:"states"`
}

// MergeOutcome is one applied update: the snapshot it started from, the
// written result and the discrepancies found between them.
type MergeOutcome struct {
	Before        *Entity
	After         *Entity
	Discrepancies []Discrepancy
}

type UploadRequest struct {
	Kind        EntityKind
	EntityID    string
	Filename    string
	ContentType string
	Data        []byte
	// Blob is set when the bytes were already stored, as in the async path.
	Blob *BlobObject
}

type UploadStatus string

const (
	UploadQueued     UploadStatus = "queued"
	UploadProcessing UploadStatus = "processing"
	UploadReady      UploadStatus = "ready"
	UploadFailed     UploadStatus = "failed"
)

// Upload tracks one asynchronous document upload.
type Upload struct {
	ID           string       `json:"id"`
	EntityKind   EntityKind   `json:"entity_kind"`
	EntityID     string       `json:"entity_id"`
	Filename     string       `json:"filename"`
	MimeType     string       `json:"mime_type"`
	StoragePath  string       `json:"storage_path"`
	URL          string       `json:"url"`
	Size         int64        `json:"size"`
	Status       UploadStatus `json:"status"`
	DocumentType DocumentType `json:"document_type,omitempty"`
	Confidence   float64      `json:"confidence"`
	Error        string       `json:"error,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

type JobQuery struct {
	Title       string `json:"job_title"`
	Description string `json:"job_description"`
	Skills      string `json:"job_skills"`
	Education   string `json:"job_education_requirements"`
	Limit       int    `json:"limit"`
}

type CandidateMatch struct {
	Candidate *Entity `json:"candidate"`
	Score     float64 `json:"score"`
}
