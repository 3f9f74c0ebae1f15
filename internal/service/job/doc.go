// Package job processes SMS jobs end to end: it loads a job, compiles its
// placement into a DuckDB script, runs the script against the cube, and
// publishes one event per matched recipient.
//
// The service depends on the Repository interface defined here and on
// narrow interfaces for the DuckDB engine, S3 listing and locking, so tests
// can swap any of them. Postgres storage lives in repository/postgres/.
package job
