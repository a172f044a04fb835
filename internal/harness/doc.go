// Package harness runs YAML conformance scenarios against the ingestion
// engine.
//
// A scenario lists sync records to deliver to a receiving node, in order,
// each with an optional expected verdict, followed by assertions on the
// resulting entities and stored verdicts. Every scenario runs against a fresh
// in-memory store with a frozen clock, so the verdicts it produces are
// deterministic and can be compared against golden files.
//
// Example:
//
//	name: ordered_references
//	description: A name may reference a person created earlier in the record
//	records:
//	  - guid: r1
//	    items:
//	      - change: {type: Person, guid: p1, fields: {gender: F}}
//	      - change: {type: PersonName, guid: n1, fields: {person: p1}}
//	    expect:
//	      state: COMMITTED
//	assertions:
//	  - type: entity
//	    entity: PersonName
//	    guid: n1
//	    expect: {person: p1}
//
// Field order inside "fields" is preserved, and a null value clears the field.
package harness
