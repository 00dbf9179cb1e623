package types

// ClusterGroup is the display view of the evidence units tagged with one role.
type ClusterGroup struct {
	Role     RoleID          `json:"role"`
	Label    string          `json:"label"`
	Weight   float64         `json:"weight"`
	Items    []EvidenceUnit  `json:"items"`
	Evidence []EvidenceChunk `json:"evidence"`
}

// ClusterView is the structured clusters response for a session.
type ClusterView struct {
	SessionID        string              `json:"session_id"`
	Generation       int64               `json:"generation"`
	Mode             string              `json:"mode"`
	Distribution     RoleFitDistribution `json:"role_fit_distribution"`
	Clusters         []ClusterGroup      `json:"clusters"`
	Incomplete       bool                `json:"extraction_incomplete,omitempty"`
	IncompleteReason string              `json:"incomplete_reason,omitempty"`
}

// ClusterMatch is the match fraction for one role. A nil MatchPct means the job description
// had no retrievable evidence for the role.
type ClusterMatch struct {
	Role     RoleID          `json:"cluster"`
	Label    string          `json:"label"`
	Weight   float64         `json:"weight"`
	MatchPct *float64        `json:"match_pct"`
	Evidence []EvidenceChunk `json:"evidence"`
}

// MatchEvidence groups the chunks retrieved from both sides of a match.
type MatchEvidence struct {
	ResumeChunks []EvidenceChunk `json:"resume_chunks"`
	JDChunks     []EvidenceChunk `json:"jd_chunks"`
}

// MatchDebug carries diagnostic values that never feed the overall score.
type MatchDebug struct {
	Method           string   `json:"method"`
	OracleOverall    *float64 `json:"oracle_overall,omitempty"`
	OracleIncomplete bool     `json:"oracle_incomplete,omitempty"`
	JDChunkCount     int      `json:"jd_chunk_count"`
	NullRoles        []RoleID `json:"null_roles,omitempty"`
}

// RoleRecommendation is a role the candidate fits, with the oracle's reasons.
type RoleRecommendation struct {
	Role    RoleID   `json:"role"`
	Score   float64  `json:"score"`
	Reasons []string `json:"reasons"`
}

// Requirements are the job description's stated requirements.
type Requirements struct {
	MustHave   []string `json:"must_have"`
	NiceToHave []string `json:"nice_to_have"`
}

// GapAnalysis splits requirements into those the evidence covers and those it does not.
type GapAnalysis struct {
	Matched          []string `json:"matched"`
	Missing          []string `json:"missing"`
	AskUserQuestions []string `json:"ask_user_questions"`
}

// FitAnalysis is the oracle's qualitative reading of a match. It is display data and never
// feeds the match numbers.
type FitAnalysis struct {
	RecommendedRoles []RoleRecommendation `json:"recommended_roles"`
	Requirements     Requirements         `json:"requirements"`
	Gap              GapAnalysis          `json:"gap"`
}

// IsZero reports whether the analysis carries nothing to show.
func (a FitAnalysis) IsZero() bool {
	return len(a.RecommendedRoles) == 0 &&
		len(a.Requirements.MustHave) == 0 && len(a.Requirements.NiceToHave) == 0 &&
		len(a.Gap.Matched) == 0 && len(a.Gap.Missing) == 0 && len(a.Gap.AskUserQuestions) == 0
}

// MatchResult is the reconciled match of a session against one job description.
// Overall is nil when the match cannot be evaluated.
type MatchResult struct {
	SessionID      string         `json:"session_id"`
	JDRef          string         `json:"jd_ref,omitempty"`
	PerCluster     []ClusterMatch `json:"cluster_matches"`
	Overall        *float64       `json:"overall_match_pct"`
	CannotEvaluate bool           `json:"cannot_evaluate,omitempty"`
	Reason         string         `json:"reason,omitempty"`
	Evidence       MatchEvidence  `json:"evidence"`
	Analysis       *FitAnalysis   `json:"analysis,omitempty"`
	Debug          MatchDebug     `json:"debug"`
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}
