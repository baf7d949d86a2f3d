// Package vectorstore stores chunk vectors and answers nearest-neighbour
// queries by cosine similarity.
//
// Three stores share the Store interface:
//
//   - memory: the reference store. A linear scan over an in-process map.
//   - chromem: an in-process chromem-go collection.
//   - qdrant: a Qdrant collection over gRPC.
//
// Every store holds the vectors of a single document. NewStore wraps the
// selected store with Prometheus metrics and OpenTelemetry spans.
package vectorstore
