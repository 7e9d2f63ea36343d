package extract

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Table is the swappable selector configuration. Site markup changes are
// handled by editing a table file rather than code.
type Table struct {
	Listing ListingSelectors `yaml:"listing"`
	Detail  DetailSelectors  `yaml:"detail"`
	Company CompanySelectors `yaml:"company"`
}

// ListingSelectors locate the fields of one results-page card.
type ListingSelectors struct {
	Card        string   `yaml:"card"`
	Title       string   `yaml:"title"`
	Company     string   `yaml:"company"`
	Location    string   `yaml:"location"`
	Link        string   `yaml:"link"`
	Date        string   `yaml:"date"`
	CompanyLink []string `yaml:"company_link"`
}

// DetailSelectors locate the fields of a job detail page.
type DetailSelectors struct {
	Description    []string `yaml:"description"`
	Insight        []string `yaml:"insight"`
	Salary         []string `yaml:"salary"`
	ApplicantCount []string `yaml:"applicant_count"`
	EasyApply      []string `yaml:"easy_apply"`
	PostedBy       []string `yaml:"posted_by"`
	Location       []string `yaml:"location"`
	RemoteLabel    []string `yaml:"remote_label"`
	CriteriaItem   string   `yaml:"criteria_item"`
	CriteriaHeader string   `yaml:"criteria_header"`
	CriteriaValue  string   `yaml:"criteria_value"`
	JobJSONHints   []string `yaml:"job_json_hints"`
}

// LabelRule maps a label keyword to a company metadata field.
type LabelRule struct {
	Keyword string `yaml:"keyword"`
	Field   string `yaml:"field"`
}

// CompanySelectors locate the fields of a company about page.
type CompanySelectors struct {
	About    []string            `yaml:"about"`
	Labels   []LabelRule         `yaml:"labels"`
	Fallback map[string][]string `yaml:"fallback"`
}

// Company metadata field names.
const (
	FieldIndustry     = "industry"
	FieldSize         = "company_size"
	FieldHeadquarters = "headquarters"
	FieldType         = "type"
	FieldSpecialties  = "specialties"
	FieldFounded      = "founded"
	FieldWebsite      = "website"
)

var companyFields = []string{
	FieldIndustry, FieldSize, FieldHeadquarters, FieldType, FieldSpecialties, FieldFounded, FieldWebsite,
}

// DefaultTable returns the built-in selectors for guest job pages.
func DefaultTable() Table {
	return Table{
		Listing: ListingSelectors{
			Card:     "li",
			Title:    "h3.base-search-card__title",
			Company:  "h4.base-search-card__subtitle",
			Location: "span.job-search-card__location",
			Link:     "a.base-card__full-link",
			Date:     "time.job-search-card__listdate, time.job-search-card__listdate--new",
			CompanyLink: []string{
				"h4.base-search-card__subtitle a[href]",
				"a.hidden-nested-link[href]",
			},
		},
		Detail: DetailSelectors{
			Description: []string{
				"div.show-more-less-html__markup",
				"div.description__text",
				"section.show-more-less-html",
				"article.jobs-description",
				"div.jobs-description__content",
				"div.core-section-container__content",
			},
			Insight: []string{
				"div.job-details-jobs-unified-top-card__job-insight",
				"div.jobs-unified-top-card__job-insight",
				"ul.job-details-jobs-unified-top-card__job-insight",
				"div.top-card-layout__entity-info",
				"section.top-card-layout",
			},
			Salary: []string{
				"div.salary-main-rail__data-body",
				"span.top-card-layout__salary-info",
				"div.compensation__salary",
				"div.job-details-jobs-unified-top-card__job-insight--highlight",
			},
			ApplicantCount: []string{
				"span.num-applicants__caption",
				"span.topcard__flavor--metadata",
				"figcaption.num-applicants__caption",
			},
			EasyApply: []string{
				"span.easy-apply-badge",
				"button.jobs-apply-button--top-card",
				"span.topcard__flavor--easy-apply",
			},
			PostedBy: []string{
				"div.message-the-recruiter",
				"div.hirer-card__hirer-information",
				"a.message-the-recruiter__cta",
			},
			Location: []string{
				"span.job-details-jobs-unified-top-card__primary-description-container",
				"span.topcard__flavor--bullet",
				"span.job-search-card__location",
			},
			RemoteLabel: []string{
				"span.job-details-jobs-unified-top-card__workplace-type",
				"span.topcard__flavor--workplace-type",
				"span.job-search-card__workplace-type",
			},
			CriteriaItem:   "li.description__job-criteria-item",
			CriteriaHeader: "h3.description__job-criteria-subheader",
			CriteriaValue:  "span.description__job-criteria-text",
			JobJSONHints: []string{
				"jobPosting", "hiringOrganization", "employmentType",
				"jobLocation", "baseSalary", "validThrough",
			},
		},
		Company: CompanySelectors{
			About: []string{
				`p[class="break-words white-space-pre-wrap mb5 text-body-small t-black--light"]`,
				"section.core-section-container",
				"p.break-words",
				"div.core-section-container__content",
				`section[data-test-id="about-us"]`,
			},
			Labels: []LabelRule{
				{Keyword: "industry", Field: FieldIndustry},
				{Keyword: "company size", Field: FieldSize},
				{Keyword: "headquarters", Field: FieldHeadquarters},
				{Keyword: "type", Field: FieldType},
				{Keyword: "specialties", Field: FieldSpecialties},
				{Keyword: "founded", Field: FieldFounded},
				{Keyword: "website", Field: FieldWebsite},
			},
			Fallback: map[string][]string{
				FieldIndustry:     {`div[data-test-id="about-us__industry"]`, `div[data-test-id="about-us__industries"]`},
				FieldSize:         {`div[data-test-id="about-us__size"]`},
				FieldHeadquarters: {`div[data-test-id="about-us__headquarters"]`},
				FieldType:         {`div[data-test-id="about-us__organizationType"]`},
				FieldSpecialties:  {`div[data-test-id="about-us__specialties"]`},
				FieldFounded:      {`div[data-test-id="about-us__foundedOn"]`},
				FieldWebsite:      {`div[data-test-id="about-us__website"]`},
			},
		},
	}
}

// LoadTable reads a YAML table from path. Sections missing from the file
// keep their built-in defaults.
func LoadTable(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Table{}, fmt.Errorf("read selector table: %w", err)
	}
	table := DefaultTable()
	if err := yaml.Unmarshal(data, &table); err != nil {
		return Table{}, fmt.Errorf("parse selector table %s: %w", path, err)
	}
	if err := table.Validate(); err != nil {
		return Table{}, fmt.Errorf("selector table %s: %w", path, err)
	}
	return table, nil
}

// Validate checks that every required selector is present.
func (t Table) Validate() error {
	required := map[string]string{
		"listing.card":           t.Listing.Card,
		"listing.link":           t.Listing.Link,
		"detail.criteria_item":   t.Detail.CriteriaItem,
		"detail.criteria_header": t.Detail.CriteriaHeader,
		"detail.criteria_value":  t.Detail.CriteriaValue,
	}
	for name, v := range required {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("%s must be set", name)
		}
	}
	if len(t.Detail.Description) == 0 {
		return fmt.Errorf("detail.description must list at least one selector")
	}
	known := make(map[string]struct{}, len(companyFields))
	for _, f := range companyFields {
		known[f] = struct{}{}
	}
	for _, rule := range t.Company.Labels {
		if _, ok := known[rule.Field]; !ok {
			return fmt.Errorf("company.labels: unknown field %q", rule.Field)
		}
	}
	for field := range t.Company.Fallback {
		if _, ok := known[field]; !ok {
			return fmt.Errorf("company.fallback: unknown field %q", field)
		}
	}
	return nil
}
