// Package content provides a client for a headless content service that
// wraps entities as {id, attributes} and lists as {data, meta}.
//
// # Architecture
//
// The package is organized into several components:
//
//   - Client: HTTP transport with auth headers, per-request timeouts and bounded
//     exponential-backoff retry
//   - Errors: a closed taxonomy of failure kinds; every transport failure is
//     classified before it reaches a caller
//   - Params: typed query builder for filters, sort, populate and pagination
//   - Normalization: flattening of wrapped entities and pagination extraction
//   - Provider: lazily created, replaceable process-wide client
//
// # Usage
//
//	cfg, err := config.Resolve(config.WithBaseURL("https://cms.example.com/api"))
//	if err != nil {
//		log.Fatal(err)
//	}
//	client, err := content.NewClient(cfg, logger)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	article, err := client.FindOne(ctx, "/articles",
//		[]content.Filter{content.Eq("slug", "hello")}, content.Params{})
//	if err != nil {
//		log.Fatal(err)
//	}
//	if article == nil {
//		// no match, which is not an error
//	}
//
// # Error Handling
//
// All failures are *Error values. Match them by kind with errors.Is:
//
//	if errors.Is(err, content.ErrNotFound) {
//		// 404
//	}
//	if errors.Is(err, content.ErrMaxRetriesExceeded) {
//		// the service kept failing after every retry
//	}
//
// UserMessage returns text that can be shown to end users as is.
package content
