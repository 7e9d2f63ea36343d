package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/jobpost-crawler/internal/crawler"
	"github.com/JakeFAU/jobpost-crawler/internal/logging"
	"github.com/JakeFAU/jobpost-crawler/internal/record"
)

const (
	defaultMinDescriptionLength = 50
	defaultFallbackMinLength    = 200
	ldJSONSelector              = `script[type="application/ld+json"]`
)

// DetailOptions tunes a DetailExtractor.
type DetailOptions struct {
	// MinDescriptionLength is the exclusive lower bound on description length.
	MinDescriptionLength int
	// FallbackMinLength is the exclusive lower bound for the largest-block fallback.
	FallbackMinLength int
	Profile           crawler.Profile
}

// DetailExtractor fetches job detail pages and extracts their raw fields.
type DetailExtractor struct {
	pages   crawler.PageSource
	profile crawler.Profile
	sel     DetailSelectors

	description Chain
	insight     Chain
	location    Chain
	salary      Chain
	applicants  Chain
	easyApply   Chain
	remote      Chain
	postedBy    Chain

	logger *zap.Logger
}

// NewDetailExtractor builds a DetailExtractor that fetches through pages.
func NewDetailExtractor(pages crawler.PageSource, table Table, opts DetailOptions, logger *zap.Logger) *DetailExtractor {
	if opts.MinDescriptionLength <= 0 {
		opts.MinDescriptionLength = defaultMinDescriptionLength
	}
	if opts.FallbackMinLength <= 0 {
		opts.FallbackMinLength = defaultFallbackMinLength
	}
	if opts.Profile.Name == "" {
		opts.Profile = crawler.DefaultDetailProfile()
	}
	sel := table.Detail

	description := textChain(sel.Description, opts.MinDescriptionLength, true)
	description.Fallback = LargestBlock{MinLen: opts.FallbackMinLength}

	return &DetailExtractor{
		pages:       pages,
		profile:     opts.Profile,
		sel:         sel,
		description: description,
		insight:     textChain(sel.Insight, 0, true),
		location:    textChain(sel.Location, 0, false),
		salary:      textChain(sel.Salary, 0, false),
		applicants:  textChain(sel.ApplicantCount, 0, false),
		easyApply:   textChain(sel.EasyApply, 0, false),
		remote:      textChain(sel.RemoteLabel, 0, false),
		postedBy:    textChain(sel.PostedBy, 0, false),
		logger:      logging.OrNop(logger).Named("detail"),
	}
}

// Extract implements crawler.DetailSource.
func (e *DetailExtractor) Extract(ctx context.Context, url string) crawler.DetailResult {
	page, err := e.pages.FetchPage(ctx, url, e.profile)
	if err != nil {
		res := crawler.DetailResult{Err: err}
		var fetchErr *crawler.FetchError
		if errors.As(err, &fetchErr) {
			res.Attempts = fetchErr.Attempts
			res.StatusHistory = fetchErr.StatusHistory
		}
		return res
	}

	fields, hits, err := e.Parse(page)
	res := crawler.DetailResult{
		Attempts:      page.Attempts,
		StatusHistory: page.StatusHistory,
	}
	if err != nil {
		res.Err = err
		return res
	}
	res.Success = true
	res.Fields = fields
	res.SelectorHits = hits
	return res
}

// Parse extracts raw fields from an already fetched page. It fails with
// crawler.ErrNoDescription when no description could be found; every other
// field is optional.
func (e *DetailExtractor) Parse(page *crawler.Page) (record.JobPageRaw, int, error) {
	var fields record.JobPageRaw
	if page == nil || page.Doc == nil {
		return fields, 0, fmt.Errorf("parse detail: %w", crawler.ErrNoDescription)
	}
	doc := page.Doc.Selection
	hits := 0

	desc, ok := e.description.Run(doc)
	if !ok {
		e.logger.Error("description extraction failed",
			zap.String("url", page.URL),
			zap.Int("selectors_tried", len(e.sel.Description)),
		)
		return fields, 0, fmt.Errorf("%s: %w", page.URL, crawler.ErrNoDescription)
	}
	if desc.Method == record.FallbackMethod {
		e.logger.Warn("description taken from largest text block", zap.String("url", page.URL))
	} else {
		// Markup of the element the text came from.
		fields.JobDescriptionRawHTML = record.String(desc.HTML)
	}
	fields.JobDescriptionRawText = record.String(desc.Value)
	fields.DescriptionExtractMethod = record.Int(desc.Method)
	hits++

	if m, ok := e.location.Run(doc); ok {
		fields.LocationFromPanelRaw = record.String(m.Value)
		fields.LocationFromPanelMethod = record.Int(m.Method)
		hits++
	}

	if m, ok := e.insight.Run(doc); ok {
		fields.JobInsightSectionRawText = record.String(m.Value)
		fields.JobInsightSectionRawHTML = record.String(m.HTML)
		hits++
	}

	var found bool
	fields.SalaryRawText, fields.SalaryStatus, fields.SalaryMethod, found = statusField(e.salary, doc)
	if found {
		hits++
	}
	fields.ApplicantCountRaw, fields.ApplicantCountStatus, fields.ApplicantCountMethod, found = statusField(e.applicants, doc)
	if found {
		hits++
	}
	fields.EasyApplyFlagRaw, fields.EasyApplyFlagStatus, fields.EasyApplyFlagMethod, _ = statusField(e.easyApply, doc)
	fields.RemoteLabelRaw, fields.RemoteLabelStatus, fields.RemoteLabelMethod, _ = statusField(e.remote, doc)
	fields.PostedByRaw, fields.PostedByStatus, fields.PostedByMethod, _ = statusField(e.postedBy, doc)

	criteria := e.criteria(doc)
	fields.EmploymentTypeRaw = lookup(criteria, "employment_type")
	fields.SeniorityRaw = lookup(criteria, "seniority_level")
	fields.IndustryRaw = lookup(criteria, "industries")
	fields.JobFunctionRaw = lookup(criteria, "job_function")
	if fields.EmploymentTypeRaw != nil || fields.SeniorityRaw != nil ||
		fields.IndustryRaw != nil || fields.JobFunctionRaw != nil {
		hits++
	}
	fields.PageMetadata = criteria
	if len(criteria) > 0 {
		hits++
	}

	if ld := embeddedJSONLD(doc); ld != nil {
		fields.EmbeddedJSONLD = ld
		hits++
	}
	if js := embeddedJobJSON(doc, e.sel.JobJSONHints); js != nil {
		fields.EmbeddedJobJSON = js
		hits++
	}
	return fields, hits, nil
}

// statusField runs chain and reports the value, its status label, and the
// index of the selector that matched.
func statusField(chain Chain, doc *goquery.Selection) (*string, string, *int, bool) {
	m, ok := chain.Run(doc)
	if !ok {
		return nil, record.StatusNotFound, nil, false
	}
	return record.String(m.Value), record.StatusSuccess, record.Int(m.Method), true
}

// criteria reads the label/value list under the description. Keys are
// lowercased with spaces replaced by underscores.
func (e *DetailExtractor) criteria(doc *goquery.Selection) map[string]string {
	out := map[string]string{}
	doc.Find(e.sel.CriteriaItem).Each(func(_ int, item *goquery.Selection) {
		header := item.Find(e.sel.CriteriaHeader).First()
		value := item.Find(e.sel.CriteriaValue).First()
		if header.Length() == 0 || value.Length() == 0 {
			return
		}
		key := strings.ReplaceAll(strings.ToLower(inlineText(header)), " ", "_")
		out[key] = inlineText(value)
	})
	return out
}

func lookup(m map[string]string, key string) *string {
	v, ok := m[key]
	if !ok {
		return nil
	}
	return &v
}

// embeddedJSONLD returns the first linked-data script that is valid JSON.
func embeddedJSONLD(doc *goquery.Selection) *string {
	var out *string
	doc.Find(ldJSONSelector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		content := strings.TrimSpace(s.Text())
		if content == "" || !json.Valid([]byte(content)) {
			return true
		}
		out = &content
		return false
	})
	return out
}

// embeddedJobJSON returns the first JSON value found in a non linked-data
// script whose content mentions one of hints.
func embeddedJobJSON(doc *goquery.Selection, hints []string) *string {
	var out *string
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if t, _ := s.Attr("type"); strings.EqualFold(t, "application/ld+json") {
			return true
		}
		content := strings.TrimSpace(s.Text())
		if content == "" || !containsAny(content, hints) {
			return true
		}
		if v, ok := firstJSONValue(content); ok {
			out = &v
			return false
		}
		return true
	})
	return out
}

// firstJSONValue decodes the JSON object or array starting at the first
// opening brace or bracket in s.
func firstJSONValue(s string) (string, bool) {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return "", false
	}
	var raw json.RawMessage
	if err := json.NewDecoder(strings.NewReader(s[start:])).Decode(&raw); err != nil {
		return "", false
	}
	return string(raw), true
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
