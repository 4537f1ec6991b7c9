/*
Package rvaindex reads a two-level sparse index which maps relative virtual
addresses (RVAs) to positions in a generated dump file: line numbers for
version 1 and 2 indexes, byte offsets for version 3. Given an RVA it answers
floor queries, i.e. it finds the value of the greatest indexed RVA that is
less than or equal to the query.

The index consists of two little-endian files produced by an external
encoder.

Data Structure Documentation

Routing table (index file 1)

A small file that is loaded fully into memory. It maps ascending RVA ranges
to block locations within the block store.

    Routing table layout:
    +-------------------+---------+---------+---------+
    | header (12 bytes) | entry 1 |   ...   | entry n |
    +-------------------+---------+---------+---------+

    Header:
    +----------------+------------------+--------------------+----------------------+
    | "IDX1" (4-byte)| version (2-byte) | reserved (2 bytes) | entry count (4-byte) |
    +----------------+------------------+--------------------+----------------------+

    Entry (24 bytes):
    +--------------------+------------------------+---------------------+--------------------+
    | start RVA (8-byte) | block offset (8 bytes) | block size (4-byte) | reserved (4 bytes) |
    +--------------------+------------------------+---------------------+--------------------+

Entries are sorted ascending by start RVA; the block offset is an absolute
position within the block store.

Block store (index file 2)

A larger file holding one delta-encoded block per routing entry. Blocks are
read and decoded on demand; the most recently decoded block is kept in a
single cache slot.

    Store header (12 bytes, plus 4 if version >= 2):
    +----------------+------------------+--------------------+----------------------+--------------------------+
    | "IDX2" (4-byte)| version (2-byte) | reserved (2 bytes) | block count (4-byte) | total lines (4, v2+ only)|
    +----------------+------------------+--------------------+----------------------+--------------------------+

    Block:
    +--------------------+---------------------+-----------------------+----------+-------+----------+
    | start RVA (8-byte) | start line (4-byte) | record count (4-byte) | record 1 |  ...  | record n |
    +--------------------+---------------------+-----------------------+----------+-------+----------+

    Record (8 bytes):
    +--------------------+-----------------+
    | RVA delta (4-byte) | line (4 bytes)  |
    +--------------------+-----------------+

The first record's RVA is the block's start RVA plus its delta; every later
record adds its delta to the previous RVA. Lines are stored verbatim, with
one encoder quirk: a first record whose line is zero means "use the block
header's start line", which makes a genuine first line of zero
indistinguishable from an omitted one.

A block's start RVA in the routing table bounds the range the block is
responsible for, not the records it physically contains, so a query can land
in a block whose every record lies above it; the reader then falls back to
the final record of the preceding block.
*/
package rvaindex
