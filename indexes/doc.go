// Package indexes maintains the secondary index tables of recdb.
//
// # Overview
//
// Records are schemaless blobs. To make them searchable every declared
// index writes rows into one of five typed tables:
//
//	RecordString    value text, normalized and capped at 500 bytes
//	RecordNumber    value double
//	RecordUuid      value uuid, used for references too
//	RecordLocation  value point geometry (spatial indexing only)
//	RecordRegion    value polygon geometry (spatial indexing only)
//
// Each row is (id, typeId, symbolId, value). The symbolId is the interned
// unique name of the index, see package symbols. The table is chosen by the
// item type of the index's first field; unknown types go to RecordString.
//
// # Extraction
//
// Find walks an object's values for the global indexes and the indexes of
// its class. Collections and maps are flattened. References become the
// referenced id. Embedded records are walked recursively, their indexes are
// named after the chain of embedding fields:
//
//	Article/title           class index
//	tags                    global index
//	Article/author/name     index "name" of an embedded author
//
// Dates become epoch milliseconds, enums their name, locales a BCP 47 tag.
// If any field of an index has no value the whole index is skipped for the
// object. Compound indexes produce the cartesian product of their fields'
// values.
//
// # Writing
//
// IndexManager runs inside the write transaction of the records it indexes.
// Rows of the written ids are deleted from every table first, then the fresh
// extraction is inserted with one multi-row INSERT per table. Identical rows
// within a batch are written once. Compound rows store the first component
// of each tuple, so tuples sharing a first value collapse into one row.
//
// Symbols are never created inside a write transaction. Rows reports the
// names it could not resolve and the caller creates them before retrying.
//
// # Metrics
//
// Prometheus metrics report rows written and deleted per table, duplicates
// skipped and the duration of each phase.
package indexes
