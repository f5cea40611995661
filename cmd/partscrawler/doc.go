// Command partscrawler mirrors a phone-parts catalog into a local store.
//
// Architecture overview:
//   - Discovery: the catalog root is fetched once and its navigation menu is flattened into brands, categories and
//     models. Every model becomes one crawl task. A missing or empty menu aborts the run with a diagnostic dump.
//   - Crawl: tasks flow through a FIFO queue to a fixed pool of workers, each owning one page-fetch session (a
//     chromedp tab, or a colly collector for server-rendered catalogs). Workers pause a random politeness delay
//     before every request, bound each fetch with a timeout and never retry.
//   - Classify and reconcile: listings are filtered down to replacement parts, typed and checked for stock, then
//     diffed against the previous snapshot. Parts that were not re-observed stay in the merged snapshot.
//   - Persistence and fanout: navigation, snapshot and changeset go to the configured store (JSON files, Postgres
//     or MongoDB). The superseded snapshot and a Markdown report go to the blob store (local, GCS or memory) and a
//     compact Pub/Sub notification is published when a topic is configured.
//   - Observability: zap logs carry the run id; progress events are batched to a log sink and Prometheus
//     collectors, which are pushed to a Pushgateway after the run when one is configured.
//
// Usage:
//
//	partscrawler crawl [--concurrency N] [--min-delay-ms N] [--max-delay-ms N] [--request-timeout-ms N]
//	partscrawler serve [--port N]
//
// Both commands accept --config; every key can also be set through PARTSCRAWLER_* environment variables.
// crawl exits 0 when the run completes, even with per-task failures, and 1 on a fatal error or interrupt.
package main
