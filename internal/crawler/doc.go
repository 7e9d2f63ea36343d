// Package crawler drives the polite multi-phase job crawl: listing pages,
// then job detail pages with interleaved company about pages, then
// finalization. Fetches run strictly sequentially through one PageFetcher.
package crawler
