// Package export turns in-memory tabular records into downloadable artifacts.
//
// This package holds the export domain logic independent of any transport.
// It is used by the HTTP server, the exportctl CLI, and the report
// orchestrator without modification.
//
// # Formats
//
// Three formats are supported, selected with [ParseFormat]:
//
//   - csv: header line plus one line per record, quoted only where required
//   - excel (aliases: workbook, xlsx): single-sheet XLSX workbook
//   - pdf (alias: document): paginated A4 document with a running footer
//
// # Degradation
//
// Workbook and document generation depend on codec modules that are loaded
// lazily through the [CodecRegistry]. A codec that fails to load stays
// unavailable for the lifetime of the registry.
//
//   - excel degrades silently to csv with the same options.
//   - pdf degrades to an HTML document and sets [Result.Notice].
//
// Neither degradation is reported as an error. The only errors returned by
// [Exporter.Export] are precondition failures ([ErrEmptyInput],
// [UnsupportedFormatError]), a failed HTML fallback ([DocumentRenderError]),
// and sink failures during the final download.
//
// # Columns
//
// Columns come from the explicit [HeaderMap] when one is given, otherwise
// from the keys of the first record in their original order:
//
//	headers := export.HeaderMap{{Key: "machine", Label: "Machine"}, {Key: "status", Label: "Status"}}
//	res, err := exporter.Export(ctx, records, "csv", export.Options{Headers: headers}, sink)
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each error category has a code for support reference (EXP, DOC, RPT, DL).
package export
