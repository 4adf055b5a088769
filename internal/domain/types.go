// Package domain contains core entities for copy-number variant (CNV) pathogenicity
// classification: the queried locus, the ACMG guideline section evaluations returned
// by the backend, the machine-learning risk estimate and the severity scale used to
// render both.
//
// Reference: Riggs et al. (2020) Technical standards for the interpretation and
// reporting of constitutional copy-number variants. Genet Med. 22(2):245-257.
// doi: 10.1038/s41436-019-0686-8
package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SectionCount is the number of ACMG CNV scoring sections evaluated per locus.
const SectionCount = 5

// NoReason is the justification shown for a section without resolvable evidence.
const NoReason = "No reason..."

// VariantKind is the copy-number direction of a CNV.
type VariantKind string

const (
	VariantKindGain VariantKind = "gain"
	VariantKindLoss VariantKind = "loss"
)

// String returns the wire form of the variant kind
func (k VariantKind) String() string {
	return string(k)
}

// IsValid reports whether the kind is gain or loss
func (k VariantKind) IsValid() bool {
	return k == VariantKindGain || k == VariantKindLoss
}

// ParseVariantKind accepts the wire names as well as the duplication/deletion
// spellings used by the submission form.
func ParseVariantKind(s string) (VariantKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "gain", "duplication", "dup":
		return VariantKindGain, nil
	case "loss", "deletion", "del":
		return VariantKindLoss, nil
	}
	return "", NewValidationError("variant_kind", "must be gain or loss", s)
}

// Chromosomes lists the accepted chromosome names in karyotype order.
var Chromosomes = func() []string {
	out := make([]string, 0, 24)
	for i := 1; i <= 22; i++ {
		out = append(out, "chr"+strconv.Itoa(i))
	}
	return append(out, "chrX", "chrY")
}()

// IsValidChromosome reports whether name is one of chr1..chr22, chrX, chrY
func IsValidChromosome(name string) bool {
	for _, c := range Chromosomes {
		if c == name {
			return true
		}
	}
	return false
}

// Locus identifies a CNV on the GRCh38 reference.
type Locus struct {
	Chromosome  string      `json:"chromosome"`
	Start       int64       `json:"start"`
	End         int64       `json:"end"`
	VariantKind VariantKind `json:"variant_kind"`
}

// Validate checks the locus invariants before it is submitted.
func (l Locus) Validate() error {
	if !IsValidChromosome(l.Chromosome) {
		return NewValidationError("chromosome", "must be one of chr1..chr22, chrX, chrY", l.Chromosome)
	}
	if l.Start < 0 {
		return NewValidationError("start", "must not be negative", l.Start)
	}
	if l.End <= l.Start {
		return NewValidationError("end", "end location is before start location", l.End)
	}
	if !l.VariantKind.IsValid() {
		return NewValidationError("variant_kind", "must be gain or loss", l.VariantKind)
	}
	return nil
}

// Region renders the locus as chrom:start-end, the form used by the risk endpoint.
func (l Locus) Region() string {
	return fmt.Sprintf("%s:%d-%d", l.Chromosome, l.Start, l.End)
}

// Size returns the CNV length in bases.
func (l Locus) Size() int64 {
	return l.End - l.Start
}

// Nomenclature renders the locus with comma-grouped coordinates, e.g.
// chr5:0-15,680,000. Display only.
func (l Locus) Nomenclature() string {
	return fmt.Sprintf("%s:%s-%s", l.Chromosome, groupThousands(l.Start), groupThousands(l.End))
}

func groupThousands(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}

// EvidenceOption is one selectable guideline criterion of a section catalog.
type EvidenceOption struct {
	Label           string   `json:"label"`
	SuggestedPoints *float64 `json:"suggested_points,omitempty"`
	MinScore        float64  `json:"min_score"`
	MaxScore        float64  `json:"max_score"`
	EvidenceText    string   `json:"evidence_text"`
}

// EvidenceCatalog maps a section id (1..5) to its options in catalog order.
type EvidenceCatalog map[int][]EvidenceOption

// Find returns the option with the given label in a section.
func (c EvidenceCatalog) Find(section int, label string) (*EvidenceOption, bool) {
	for i := range c[section] {
		if c[section][i].Label == label {
			opt := c[section][i]
			return &opt, true
		}
	}
	return nil, false
}

// SectionResult is the backend's evaluation of one guideline section.
type SectionResult struct {
	Section int     `json:"section"`
	Option  string  `json:"option"`
	Score   float64 `json:"score"`
	Reason  string  `json:"reason"`
}

// SectionResults holds exactly one result per section, indexed by section id - 1.
type SectionResults [SectionCount]SectionResult

// Get returns the result for section id 1..5.
func (r *SectionResults) Get(section int) (*SectionResult, bool) {
	if r == nil || !IsValidSection(section) {
		return nil, false
	}
	return &r[section-1], true
}

// IsValidSection reports whether id addresses one of the five sections
func IsValidSection(id int) bool {
	return id >= 1 && id <= SectionCount
}

// RiskSeverity is the verdict reported by the risk model.
type RiskSeverity string

const (
	RiskPathogenic       RiskSeverity = "Pathogenic"
	RiskLikelyPathogenic RiskSeverity = "Likely Pathogenic"
	RiskUncertain        RiskSeverity = "Uncertain"
	RiskLikelyBenign     RiskSeverity = "Likely Benign"
	RiskBenign           RiskSeverity = "Benign"
)

// ParseRiskSeverity normalizes the spellings the risk model may emit
// ("likely_pathogenic", "Likely Pathogenic", "LIKELY-PATHOGENIC", ...).
func ParseRiskSeverity(s string) (RiskSeverity, error) {
	norm := strings.NewReplacer("_", "", "-", "", " ", "").Replace(strings.ToLower(s))
	switch norm {
	case "pathogenic":
		return RiskPathogenic, nil
	case "likelypathogenic":
		return RiskLikelyPathogenic, nil
	case "uncertain", "uncertainsignificance", "vus", "unknown":
		return RiskUncertain, nil
	case "likelybenign":
		return RiskLikelyBenign, nil
	case "benign":
		return RiskBenign, nil
	}
	return "", fmt.Errorf("unknown risk severity %q", s)
}

// RiskEstimate is the risk model's output for a locus.
type RiskEstimate struct {
	OverallRisk float64      `json:"overall_risk"`
	Severity    RiskSeverity `json:"severity"`
}

// Validate checks that the probability lies in [0, 1].
func (r RiskEstimate) Validate() error {
	if r.OverallRisk < 0 || r.OverallRisk > 1 || r.OverallRisk != r.OverallRisk {
		return fmt.Errorf("overall_risk %v outside [0,1]", r.OverallRisk)
	}
	return nil
}

// Snapshot is one consistent, fully successful set of backend evaluations.
// Sessions replace their snapshot only as a whole.
type Snapshot struct {
	Locus      Locus          `json:"locus"`
	Sections   SectionResults `json:"sections"`
	Risk       RiskEstimate   `json:"risk"`
	Generation uint64         `json:"generation"`
	AcceptedAt time.Time      `json:"accepted_at"`
}
