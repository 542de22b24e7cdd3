// Package core provides the pipeline logic for the NY flights dataset.
//
// The package holds all domain logic independent of any transport. It is
// used by the HTTP handlers and the CLI alike, and by tests without a store
// other than a temporary SQLite file.
//
// # Architecture
//
//   - Metadata: the column sheet (xlsx, csv or yaml) that drives every step.
//   - Type registry: metadata type names bound to casts, see [RegisterType].
//   - Stages: [DataClean], [NullCheck], [KeysCheck] and [FeatEng], pure
//     functions from table to table.
//   - Service: runs the stages end to end and saves the result, see
//     [Service.Run].
//
// # Metadata
//
// Each row of the sheet describes one column of the raw data:
//
//	tabela | cols_originais | cols_renamed | tipo_original | tipo_formatted | key | null_tolerance | std_str | corrige_hr
//	nyflights | dep_time | datetime_partida | float | datetime | 0 | 0.05 | 0 | 1
//
// Columns missing from the sheet header fall back to defaults; only
// cols_originais and tipo_original are required.
//
// # Pipeline Run
//
//  1. Data and metadata load concurrently; the data file is decoded to UTF-8
//  2. Rows with a null key column are dropped
//  3. [DataClean] casts, selects, renames and standardizes
//  4. [NullCheck] and [KeysCheck] report problems without failing the run
//  5. [FeatEng] derives delay, day period and status columns
//  6. The table is saved under the metadata tabela and the run is logged
//
// Concurrent runs are capped by a [RunLimiter].
//
// # Error Handling
//
// Technical errors are mapped to user-facing messages using [MapError].
// Each category has a code for support reference:
//
//   - META001-META003: metadata sheet errors
//   - VAL001-VAL004: column mismatch, coercion and CSV errors
//   - STORE001-STORE003: store errors
//   - RUN001-RUN004: busy, cancelled, missing input or bad options
//   - UPL001-UPL002: HTTP upload errors
package core
