// Package docq retrieves remote XML, JSON and HTML documents, caches the
// responses with configurable expiration, parses them into a uniform
// read-only tree and queries that tree with a compact selector language
// modeled after CSS and jQuery.
//
// This package contains domain types and interfaces following Ben Johnson's
// Standard Package Layout. Implementations live in subdirectories named
// after their primary dependency (e.g., etree/, gjson/, sqlite/).
package docq
