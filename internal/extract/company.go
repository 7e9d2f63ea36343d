package extract

import (
	"context"
	"errors"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/jobpost-crawler/internal/crawler"
	"github.com/JakeFAU/jobpost-crawler/internal/logging"
	"github.com/JakeFAU/jobpost-crawler/internal/record"
)

const (
	aboutPath        = "/about"
	minAboutLength   = 10
	methodLabelScan  = "dt_dd_scan"
	methodDataTestID = "data_test_id"
)

// NormalizeCompanyURL canonicalizes a company URL to its about sub-page.
// Applying it twice yields the same URL.
func NormalizeCompanyURL(raw string) (string, error) {
	stripped, err := crawler.StripQuery(raw, nil)
	if err != nil {
		return "", err
	}
	trimmed := strings.TrimRight(stripped, "/")
	if strings.HasSuffix(trimmed, aboutPath) {
		return trimmed + "/", nil
	}
	return trimmed + aboutPath + "/", nil
}

// CompanyExtractor fetches company about pages and extracts their raw fields.
type CompanyExtractor struct {
	pages   crawler.PageSource
	profile crawler.Profile
	sel     CompanySelectors
	about   Chain
	logger  *zap.Logger
}

// NewCompanyExtractor builds a CompanyExtractor that fetches through pages.
// A zero profile uses crawler.DefaultCompanyProfile.
func NewCompanyExtractor(pages crawler.PageSource, table Table, profile crawler.Profile, logger *zap.Logger) *CompanyExtractor {
	if profile.Name == "" {
		profile = crawler.DefaultCompanyProfile()
	}
	return &CompanyExtractor{
		pages:   pages,
		profile: profile,
		sel:     table.Company,
		about:   textChain(table.Company.About, minAboutLength, true),
		logger:  logging.OrNop(logger).Named("company"),
	}
}

// CanonicalURL implements crawler.CompanySource. URLs that cannot be parsed
// are returned unchanged so they still fail visibly at fetch time.
func (e *CompanyExtractor) CanonicalURL(raw string) string {
	u, err := NormalizeCompanyURL(raw)
	if err != nil {
		e.logger.Debug("company url left as is", zap.String("url", raw), zap.Error(err))
		return raw
	}
	return u
}

// Extract implements crawler.CompanySource. Any fetched page counts as
// success, even when no field was found.
func (e *CompanyExtractor) Extract(ctx context.Context, url string) crawler.CompanyResult {
	target := e.CanonicalURL(url)
	page, err := e.pages.FetchPage(ctx, target, e.profile)
	if err != nil {
		res := crawler.CompanyResult{URL: target, Err: err}
		var fetchErr *crawler.FetchError
		if errors.As(err, &fetchErr) {
			res.Attempts = fetchErr.Attempts
		}
		return res
	}
	return crawler.CompanyResult{
		Success:  true,
		URL:      target,
		Fields:   e.Parse(page),
		Attempts: page.Attempts,
	}
}

// Parse extracts the about text and metadata fields from a fetched page.
func (e *CompanyExtractor) Parse(page *crawler.Page) record.CompanyPageRaw {
	fields := record.CompanyPageRaw{MetadataMethods: map[string]string{}}
	if page == nil || page.Doc == nil {
		return fields
	}
	doc := page.Doc.Selection

	if m, ok := e.about.Run(doc); ok {
		fields.CompanyAboutRawText = record.String(m.Value)
		fields.CompanyAboutRawHTML = record.String(m.HTML)
		fields.CompanyAboutMethod = record.Int(m.Method)
	}

	found := e.scanLabels(doc)
	for field, value := range found {
		setCompanyField(&fields, field, value)
		fields.MetadataMethods[field] = methodLabelScan
	}
	for _, field := range companyFields {
		if _, ok := found[field]; ok {
			continue
		}
		for _, css := range e.sel.Fallback[field] {
			el := doc.Find(css).First()
			if el.Length() == 0 {
				continue
			}
			if v := inlineText(el); v != "" {
				setCompanyField(&fields, field, v)
				fields.MetadataMethods[field] = methodDataTestID
				break
			}
		}
	}

	e.logger.Debug("company page parsed",
		zap.String("url", page.URL),
		zap.Bool("about", fields.CompanyAboutRawText != nil),
		zap.Int("metadata_fields", len(fields.MetadataMethods)),
	)
	return fields
}

// scanLabels walks every dt on the page, matches its label against the
// keyword table and reads the following dd. The first match per field wins.
func (e *CompanyExtractor) scanLabels(doc *goquery.Selection) map[string]string {
	found := map[string]string{}
	doc.Find("dt").Each(func(_ int, dt *goquery.Selection) {
		label := strings.ToLower(inlineText(dt))
		if label == "" {
			return
		}
		field := ""
		for _, rule := range e.sel.Labels {
			if strings.Contains(label, strings.ToLower(rule.Keyword)) {
				field = rule.Field
				break
			}
		}
		if field == "" {
			return
		}
		if _, done := found[field]; done {
			return
		}
		dd := dt.NextAllFiltered("dd").First()
		if dd.Length() == 0 {
			return
		}
		if v := inlineText(dd); v != "" {
			found[field] = v
		}
	})
	return found
}

func setCompanyField(p *record.CompanyPageRaw, field, value string) {
	v := record.String(value)
	switch field {
	case FieldIndustry:
		p.CompanyIndustryRaw = v
	case FieldSize:
		p.CompanySizeRaw = v
	case FieldHeadquarters:
		p.CompanyHeadquartersRaw = v
	case FieldType:
		p.CompanyTypeRaw = v
	case FieldSpecialties:
		p.CompanySpecialtiesRaw = v
	case FieldFounded:
		p.CompanyFoundedRaw = v
	case FieldWebsite:
		p.CompanyWebsiteRaw = v
	}
}
