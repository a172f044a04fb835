// Package ir defines the data model shared by every other medsync package.
//
// This package contains type definitions and their serialization only. All
// other internal packages import ir; ir imports nothing internal.
//
// It covers:
//   - Replication records: SyncRecord/SyncItem (outbound) and
//     ImportRecord/ImportItem (the receiver's verdict)
//   - ChangeDescriptor, the decoded form of one item payload
//   - Entity, a persisted clinical object addressed by (type, guid)
//   - Value, the constrained value set used for entity fields
//
// Key design constraints:
//   - NO float types in Value; decimals travel as canonical decimal text
//   - All JSON tags use snake_case
//   - Persisted state names are stable upper-case strings
package ir
