package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content digests. The version suffix allows the
// algorithm to change without colliding with old digests.
const (
	DomainEntity  = "medsync/entity/v1"
	DomainItemKey = "medsync/item-key/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// EntityDigest identifies the content of an entity independent of field
// order and storage. Two entities with equal type, guid and fields have equal
// digests.
func EntityDigest(typeName, guid string, fields Object) (string, error) {
	obj := Object{
		"type":   String(typeName),
		"guid":   String(guid),
		"fields": fields,
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("entity digest: %w", err)
	}
	return hashWithDomain(DomainEntity, canonical), nil
}

// ItemKey derives a stable key for the index-th item of a record.
func ItemKey(recordGUID string, index int, content string) string {
	canonical, _ := MarshalCanonical(Object{
		"record":  String(recordGUID),
		"index":   Int(index),
		"content": String(content),
	})
	return hashWithDomain(DomainItemKey, canonical)[:16]
}
