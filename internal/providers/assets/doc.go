// Package assets mirrors the capability scripts sandbox documents load
// (babel, p5, react, react-dom) so a document generated with an asset base
// can be served without reaching third-party CDNs from the browser.
//
// Upstream calls go through a resty client on a retryablehttp transport and
// a circuit breaker. Bodies are cached with a precompressed gzip copy and
// revalidated with ETags once the cache TTL passes.
package assets
