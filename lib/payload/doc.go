// Package payload implements the dump-payload codec: the checksummed
// binary envelope every value is wrapped in before it is written to the
// freezer tier.
//
// The envelope is self-describing (type tag and format version) and
// sealed with a CRC64 footer, so a value read back from disk can be
// verified before it is trusted. Verification failures are soft: the
// read path logs them and treats the key as a miss, because the
// in-memory tier is the source of truth anyway.
package payload
