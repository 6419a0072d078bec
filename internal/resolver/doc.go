// Package resolver turns a date into a puzzle document by walking an ordered
// list of upstream candidates. Candidates are tried one at a time; the first
// one that answers with a 2xx status and a parseable document wins and no
// later candidate is contacted. Transport failures, non-2xx statuses and
// extraction misses all advance to the next candidate. When the list is
// exhausted the caller receives a *NotFoundError carrying every URL tried.
//
// Diagnostics (body snapshots, attempt ledger rows, resolution events) are
// written through optional sinks and never influence the outcome.
package resolver
