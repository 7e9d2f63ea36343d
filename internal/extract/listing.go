package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/jobpost-crawler/internal/crawler"
	"github.com/JakeFAU/jobpost-crawler/internal/logging"
	"github.com/JakeFAU/jobpost-crawler/internal/record"
)

// ListingExtractor parses search results pages into listing cards.
type ListingExtractor struct {
	sel    ListingSelectors
	logger *zap.Logger
}

// NewListingExtractor builds a ListingExtractor from the listing section of
// table.
func NewListingExtractor(table Table, logger *zap.Logger) *ListingExtractor {
	return &ListingExtractor{
		sel:    table.Listing,
		logger: logging.OrNop(logger).Named("listing"),
	}
}

// ParseListings implements crawler.ListingParser. Cards whose job link cannot
// be parsed are skipped; the rest of the page is still returned.
func (e *ListingExtractor) ParseListings(page *crawler.Page) []record.Listing {
	if page == nil || page.Doc == nil {
		return nil
	}
	base, _ := url.Parse(page.URL)

	var out []record.Listing
	page.Doc.Find(e.sel.Card).Each(func(i int, card *goquery.Selection) {
		listing, ok, err := e.parseCard(card, base)
		if err != nil {
			e.logger.Warn("skip listing card",
				zap.String("page", page.URL),
				zap.Int("index", i),
				zap.Error(err),
			)
			return
		}
		if ok {
			out = append(out, listing)
		}
	})
	return out
}

// parseCard returns false for elements that are not job cards at all.
func (e *ListingExtractor) parseCard(card *goquery.Selection, base *url.URL) (record.Listing, bool, error) {
	title := fieldText(card, e.sel.Title)
	href, hasLink := card.Find(e.sel.Link).First().Attr("href")
	href = strings.TrimSpace(href)
	if title == nil && (!hasLink || href == "") {
		return record.Listing{}, false, nil
	}

	listing := record.Listing{
		TitleRaw:    title,
		CompanyRaw:  fieldText(card, e.sel.Company),
		LocationRaw: fieldText(card, e.sel.Location),
	}
	if date := card.Find(e.sel.Date).First(); date.Length() > 0 {
		listing.DatePostedRaw = record.String(inlineText(date))
		if attr, ok := date.Attr("datetime"); ok {
			listing.DatePostedAttr = record.String(strings.TrimSpace(attr))
		}
	}

	if href != "" {
		jobURL, err := crawler.StripQuery(href, base)
		if err != nil {
			return record.Listing{}, false, err
		}
		listing.JobURL = record.String(jobURL)
	}

	for _, css := range e.sel.CompanyLink {
		raw, ok := card.Find(css).First().Attr("href")
		if !ok || strings.TrimSpace(raw) == "" {
			continue
		}
		companyURL, err := crawler.StripQuery(strings.TrimSpace(raw), base)
		if err != nil {
			e.logger.Debug("ignore company link", zap.String("href", raw), zap.Error(err))
			continue
		}
		listing.CompanyURL = record.String(companyURL)
		break
	}
	return listing, true, nil
}

// fieldText returns the stripped text of the first match for css, or nil.
func fieldText(sel *goquery.Selection, css string) *string {
	if css == "" {
		return nil
	}
	el := sel.Find(css).First()
	if el.Length() == 0 {
		return nil
	}
	return record.String(inlineText(el))
}
