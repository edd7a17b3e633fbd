// Package gmail retrieves message summaries from the Gmail API. Message
// ids are listed with a single search call and the per-message details
// are fetched in one multipart batch request, so a page of results costs
// two round trips regardless of size.
package gmail
