package crawler

import (
	"fmt"
	"sort"

	"github.com/JakeFAU/jobpost-crawler/internal/record"
)

// criticalFields maps a configurable field name to its presence check.
var criticalFields = map[string]func(p *record.JobPageRaw) bool{
	"description":     selectedDescription,
	"salary":          func(p *record.JobPageRaw) bool { return p.SalaryStatus == record.StatusSuccess },
	"applicant_count": func(p *record.JobPageRaw) bool { return p.ApplicantCountStatus == record.StatusSuccess },
	"easy_apply":      func(p *record.JobPageRaw) bool { return p.EasyApplyFlagStatus == record.StatusSuccess },
	"remote_label":    func(p *record.JobPageRaw) bool { return p.RemoteLabelStatus == record.StatusSuccess },
	"posted_by":       func(p *record.JobPageRaw) bool { return p.PostedByStatus == record.StatusSuccess },
	"insight":         func(p *record.JobPageRaw) bool { return p.JobInsightSectionRawText != nil },
	"location":        func(p *record.JobPageRaw) bool { return p.LocationFromPanelRaw != nil },
	"criteria":        func(p *record.JobPageRaw) bool { return len(p.PageMetadata) > 0 },
	"json_ld":         func(p *record.JobPageRaw) bool { return p.EmbeddedJSONLD != nil },
	"job_json":        func(p *record.JobPageRaw) bool { return p.EmbeddedJobJSON != nil },
}

// selectedDescription reports a description found by a selector. Text from
// the largest-block fallback does not count.
func selectedDescription(p *record.JobPageRaw) bool {
	if p.JobDescriptionRawText == nil {
		return false
	}
	return p.DescriptionExtractMethod == nil || *p.DescriptionExtractMethod != record.FallbackMethod
}

// DefaultCriticalFields is the field set the default thresholds are tuned for.
var DefaultCriticalFields = []string{"description", "salary", "applicant_count"}

// QualityScorer tiers job records by how many critical fields are present.
type QualityScorer struct {
	checks []func(p *record.JobPageRaw) bool
	high   int
	medium int
}

// NewQualityScorer validates the field names and thresholds.
func NewQualityScorer(fields []string, high, medium int) (*QualityScorer, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("quality: no critical fields")
	}
	if medium <= 0 || medium > high || high > len(fields) {
		return nil, fmt.Errorf("quality: thresholds must satisfy 0 < medium (%d) <= high (%d) <= %d", medium, high, len(fields))
	}
	checks := make([]func(p *record.JobPageRaw) bool, 0, len(fields))
	for _, name := range fields {
		check, ok := criticalFields[name]
		if !ok {
			return nil, fmt.Errorf("quality: unknown critical field %q (known: %v)", name, knownCriticalFields())
		}
		checks = append(checks, check)
	}
	return &QualityScorer{checks: checks, high: high, medium: medium}, nil
}

// Count returns how many critical fields p populates.
func (q *QualityScorer) Count(p *record.JobPageRaw) int {
	n := 0
	for _, check := range q.checks {
		if check(p) {
			n++
		}
	}
	return n
}

// Tier returns the quality tier for p.
func (q *QualityScorer) Tier(p *record.JobPageRaw) record.Quality {
	switch n := q.Count(p); {
	case n >= q.high:
		return record.QualityHigh
	case n >= q.medium:
		return record.QualityMedium
	default:
		return record.QualityLow
	}
}

// CompanyQuality tiers a company page: about text plus two metadata fields
// is high, either signal alone is medium.
func CompanyQuality(p *record.CompanyPageRaw) record.Quality {
	meta := 0
	for _, v := range []*string{
		p.CompanyIndustryRaw, p.CompanySizeRaw, p.CompanyHeadquartersRaw, p.CompanyTypeRaw,
		p.CompanySpecialtiesRaw, p.CompanyFoundedRaw, p.CompanyWebsiteRaw,
	} {
		if v != nil {
			meta++
		}
	}
	about := p.CompanyAboutRawText != nil
	switch {
	case about && meta >= 2:
		return record.QualityHigh
	case about || meta > 0:
		return record.QualityMedium
	default:
		return record.QualityLow
	}
}

func knownCriticalFields() []string {
	names := make([]string, 0, len(criticalFields))
	for name := range criticalFields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
