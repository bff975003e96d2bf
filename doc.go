/*
Package docset implements an append-only, indexed binary container for
ordered collections of BSON documents, with O(1) amortised random access
by position after a one-time sequential write pass.

Data Structure Documentation

All fixed-width integers are little-endian; the sentinel 0xFFFFFFFFFFFFFFFF
marks an unresolved offset and is never a legal value.

Container

A container holds a fixed-size header, a stream of length-prefixed documents,
a flat offset index and a trailing metadata block. The header is written
twice: a placeholder on open with both offsets set to the sentinel, and the
final version on close. A file whose header offsets are still the sentinel
was never finalised and is rejected as incomplete.

    Container layout:
    +--------+-------+-----+-------+------------------+------------+
    | header | doc 1 | ... | doc n | index (n x 8 B)  | meta block |
    +--------+-------+-----+-------+------------------+------------+

    Header (32 B):
    +------------------+---------------+------------------------+-----------------------+
    | magic "DOCSET71" | count (8 B)   | index offset (8 B)     | meta offset (8 B)     |
    +------------------+---------------+------------------------+-----------------------+

    Document record and meta block:
    +--------------+----------------------+
    | size (8 B)   | encoded BSON (size)  |
    +--------------+----------------------+

index[i] holds the file offset of document i's length prefix; offsets are
strictly increasing in write order. Readers materialise the index lazily in
fixed-size blocks to amortise seeks across nearby lookups.

Legacy Container

The legacy layout embeds the metadata in a fixed-size head region at offset
zero instead of a trailing block. The head document carries three reserved
keys (head size, record count, index offset) which are stripped before the
metadata is exposed. Documents and index follow exactly as above. The legacy
layout is read via Open's fallback path only; it is never a write target.

    Legacy layout:
    +-------------------------------------+-------+-----+-------+-----------------+
    | size (8 B) | head BSON | zero pad   | doc 1 | ... | doc n | index (n x 8 B) |
    +-------------------------------------+-------+-----+-------+-----------------+

Array Values

N-dimensional numeric arrays are stored inside documents as BSON binary
values with the reserved user-defined subtype 0x81:

    +-----------------+------------------------+---------------------+
    | dtype tag "<f4" | shape tuple "(3, 4)"   | row-major raw bytes |
    +-----------------+------------------------+---------------------+

Binary values with any other subtype pass through the codec unmodified.
*/
package docset
