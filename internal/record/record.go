// Package record defines the frozen raw schema written for job and company
// records. Every raw value is captured as it appeared on the page; a nil
// pointer means the value was not found.
package record

import "time"

const (
	// ScraperVersion identifies the extraction logic that produced a record.
	ScraperVersion = "1.0.0"
	// RawSchemaVersion identifies the layout of the record types below.
	RawSchemaVersion = "1.0.0"
)

// TimeLayout is the ISO 8601 layout used for every timestamp in a record.
const TimeLayout = "2006-01-02T15:04:05.000000Z07:00"

// FormatTime renders t in UTC using TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// Quality is the coarse completeness label attached to records.
type Quality string

// Quality tiers.
const (
	QualityHigh   Quality = "high"
	QualityMedium Quality = "medium"
	QualityLow    Quality = "low"
)

// Field status values for independently extracted page fields.
const (
	StatusSuccess  = "success"
	StatusNotFound = "not_found"
)

// FallbackMethod marks a description taken from the largest text block on
// the page instead of a configured selector.
const FallbackMethod = -1

// Listing is one card from a search results page.
type Listing struct {
	TitleRaw       *string `json:"title_raw"`
	CompanyRaw     *string `json:"company_raw"`
	LocationRaw    *string `json:"location_raw"`
	DatePostedRaw  *string `json:"date_posted_raw"`
	DatePostedAttr *string `json:"date_posted_attr"`
	JobURL         *string `json:"job_url"`
	CompanyURL     *string `json:"company_url"`
}

// JobRecord is the persisted unit of job data.
type JobRecord struct {
	ScraperVersion   string         `json:"scraper_version"`
	RawSchemaVersion string         `json:"raw_schema_version"`
	ScrapeMetadata   ScrapeMetadata `json:"scrape_metadata"`
	JobIdentity      JobIdentity    `json:"job_identity"`
	JobCardRaw       JobCardRaw     `json:"job_card_raw"`
	JobPageRaw       JobPageRaw     `json:"job_page_raw"`
	CompanyInfo      CompanyInfo    `json:"company_info"`
	QualityTracking  JobQuality     `json:"quality_tracking"`
	Hashing          JobHashing     `json:"hashing"`
}

// ID returns the job identity hash, or "" when unset.
func (r JobRecord) ID() string {
	return deref(r.JobIdentity.JobIDRaw)
}

// ScrapeMetadata describes the run that produced a record.
type ScrapeMetadata struct {
	SearchKeyword   *string `json:"search_keyword"`
	SearchLocation  *string `json:"search_location"`
	ScrapeTimestamp string  `json:"scrape_timestamp"`
	UserAgentUsed   *string `json:"user_agent_used"`
	RunID           string  `json:"run_id"`
}

// JobIdentity holds the stable identity of a job posting.
type JobIdentity struct {
	JobIDRaw *string `json:"job_id_raw"`
	JobURL   *string `json:"job_url"`
}

// JobCardRaw holds the listing-card values for a job.
type JobCardRaw struct {
	TitleRaw       *string `json:"title_raw"`
	CompanyRaw     *string `json:"company_raw"`
	LocationRaw    *string `json:"location_raw"`
	DatePostedRaw  *string `json:"date_posted_raw"`
	DatePostedAttr *string `json:"date_posted_attr"`
}

// JobPageRaw holds the detail-page values for a job.
type JobPageRaw struct {
	JobDescriptionRawText    *string `json:"job_description_raw_text"`
	JobDescriptionRawHTML    *string `json:"job_description_raw_html"`
	DescriptionExtractMethod *int    `json:"description_extract_method"`

	JobInsightSectionRawText *string `json:"job_insight_section_raw_text"`
	JobInsightSectionRawHTML *string `json:"job_insight_section_raw_html"`

	SalaryRawText        *string `json:"salary_raw_text"`
	SalaryStatus         string  `json:"salary_status"`
	SalaryMethod         *int    `json:"salary_method"`
	ApplicantCountRaw    *string `json:"applicant_count_raw"`
	ApplicantCountStatus string  `json:"applicant_count_status"`
	ApplicantCountMethod *int    `json:"applicant_count_method"`
	EasyApplyFlagRaw     *string `json:"easy_apply_flag_raw"`
	EasyApplyFlagStatus  string  `json:"easy_apply_flag_status"`
	EasyApplyFlagMethod  *int    `json:"easy_apply_flag_method"`
	RemoteLabelRaw       *string `json:"remote_label_raw"`
	RemoteLabelStatus    string  `json:"remote_label_status"`
	RemoteLabelMethod    *int    `json:"remote_label_method"`
	PostedByRaw          *string `json:"posted_by_raw"`
	PostedByStatus       string  `json:"posted_by_status"`
	PostedByMethod       *int    `json:"posted_by_method"`

	LocationFromPanelRaw    *string `json:"location_from_panel_raw"`
	LocationFromPanelMethod *int    `json:"location_from_panel_method"`

	EmploymentTypeRaw *string           `json:"employment_type_raw"`
	SeniorityRaw      *string           `json:"seniority_raw"`
	IndustryRaw       *string           `json:"industry_raw"`
	JobFunctionRaw    *string           `json:"job_function_raw"`
	PageMetadata      map[string]string `json:"page_metadata"`

	EmbeddedJSONLD  *string `json:"embedded_json_ld"`
	EmbeddedJobJSON *string `json:"embedded_job_json"`
}

// CompanyInfo references the company a job belongs to.
type CompanyInfo struct {
	CompanyURL    *string `json:"company_url"`
	CompanyIDHash *string `json:"company_id_hash"`
}

// JobQuality tracks extraction completeness and fetch history for a job.
type JobQuality struct {
	ExtractionQuality Quality `json:"extraction_quality"`
	SelectorHits      int     `json:"selector_hits"`
	StatusCodeHistory []int   `json:"status_code_history"`
	RetryCount        int     `json:"retry_count"`
}

// JobHashing carries content and identity digests for a job.
type JobHashing struct {
	JobDescriptionContentHash *string `json:"job_description_content_hash"`
	JobPostIDHash             *string `json:"job_post_id_hash"`
}

// CompanyRecord is the persisted unit of company data, one per company
// identity hash per run.
type CompanyRecord struct {
	ScraperVersion   string            `json:"scraper_version"`
	RawSchemaVersion string            `json:"raw_schema_version"`
	CompanyIdentity  CompanyIdentity   `json:"company_identity"`
	CompanyPageRaw   CompanyPageRaw    `json:"company_page_raw"`
	Hashing          CompanyHashing    `json:"hashing"`
	Timestamps       CompanyTimestamps `json:"timestamps"`
	QualityTracking  CompanyQuality    `json:"quality_tracking"`
}

// ID returns the company identity hash.
func (r CompanyRecord) ID() string {
	return r.CompanyIdentity.CompanyIDHash
}

// CompanyIdentity holds the stable identity of a company.
type CompanyIdentity struct {
	CompanyIDHash  string  `json:"company_id_hash"`
	CompanyNameRaw *string `json:"company_name_raw"`
	CompanyURL     string  `json:"company_url"`
}

// CompanyPageRaw holds the about-page values for a company.
type CompanyPageRaw struct {
	CompanyAboutRawText    *string `json:"company_about_raw_text"`
	CompanyAboutRawHTML    *string `json:"company_about_raw_html"`
	CompanyAboutMethod     *int    `json:"company_about_method"`
	CompanyIndustryRaw     *string `json:"company_industry_raw"`
	CompanySizeRaw         *string `json:"company_size_raw"`
	CompanyHeadquartersRaw *string `json:"company_headquarters_raw"`
	CompanyTypeRaw         *string `json:"company_type_raw"`
	CompanySpecialtiesRaw  *string `json:"company_specialties_raw"`
	CompanyFoundedRaw      *string `json:"company_founded_raw"`
	CompanyWebsiteRaw      *string `json:"company_website_raw"`
	// MetadataMethods maps a metadata field name to the strategy that found it.
	MetadataMethods map[string]string `json:"metadata_methods"`
}

// CompanyHashing carries the about-text digest.
type CompanyHashing struct {
	CompanyContentHash *string `json:"company_content_hash"`
}

// CompanyTimestamps bound the references to a company within a run.
type CompanyTimestamps struct {
	FirstSeen string `json:"first_seen"`
	LastSeen  string `json:"last_seen"`
}

// CompanyQuality tracks extraction completeness for a company.
type CompanyQuality struct {
	ExtractionQuality Quality `json:"extraction_quality"`
	RetryCount        int     `json:"retry_count"`
}

// String returns a pointer to s, or nil when s is empty.
func String(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Int returns a pointer to v.
func Int(v int) *int {
	return &v
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
