// Package model provides the shared data types for bypassd.
//
// This package contains type definitions and small pure helpers only. All
// other internal packages import model; model imports nothing internal.
//
// Key design constraints:
//   - Domains are always stored in normalized form (see NormalizeDomain)
//   - Strategy numbers are plain ints; a lock may reference a strategy that no
//     longer exists in the current catalog
//   - History is keyed by (domain, strategy) only, never by protocol
//   - No float types in rates; ComputeRate uses integer rounding
package model
