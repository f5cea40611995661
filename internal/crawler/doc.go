// Package crawler holds the catalog domain model (navigation entities, crawl
// tasks, raw records, classified parts, snapshots and changesets), the typed
// errors of a crawl run, and the capability interfaces implemented by the
// fetch drivers, stores, blob stores and publishers.
package crawler
