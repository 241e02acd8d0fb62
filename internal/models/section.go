package models

// SectionKey is one of the fixed longform report sections (spec §3, §4.1).
type SectionKey string

const (
	SectionExecutiveSummary SectionKey = "executive_summary"
	SectionBackground       SectionKey = "background"
	SectionAnalysis         SectionKey = "analysis"
	SectionRecommendations  SectionKey = "recommendations"
)

// SectionOrder is the fixed rendering order for longform synthesis.
var SectionOrder = []SectionKey{
	SectionExecutiveSummary,
	SectionBackground,
	SectionAnalysis,
	SectionRecommendations,
}

// SectionAllowedRoles maps each section to the note roles it may draw from.
// Background and analysis favor page-level evidence; the executive summary and
// recommendations lean on step-level and critic synthesis.
var SectionAllowedRoles = map[SectionKey][]NoteRole{
	SectionExecutiveSummary: {NoteRoleStepSummary, NoteRoleCrossJobSummary},
	SectionBackground:       {NoteRolePageSummary, NoteRoleCrossJobSummary},
	SectionAnalysis:         {NoteRolePageSummary, NoteRoleStepSummary},
	SectionRecommendations:  {NoteRoleStepSummary, NoteRoleCriticNote},
}

// SectionStatus is the lifecycle state of a Section Draft.
type SectionStatus string

const (
	SectionStatusPending   SectionStatus = "pending"
	SectionStatusCompleted SectionStatus = "completed"
)

// CitationMapEntry records which citation numbers a note contributed to a
// section, for SectionDraft.CitationMap (spec §3).
type CitationMapEntry struct {
	NoteID          int64 `json:"note_id"`
	CitationNumbers []int `json:"citation_numbers"`
}

// SectionDraft is one persisted fragment of the final report (spec §3).
type SectionDraft struct {
	ID          int64              `json:"id"`
	JobID       string             `json:"job_id"`
	SectionKey  SectionKey         `json:"section_key"`
	Status      SectionStatus      `json:"status"`
	Tokens      int                `json:"tokens"`
	Content     string             `json:"content"`
	CitationMap []CitationMapEntry `json:"citation_map,omitempty"`
}
