/*
Package merk implements a persistent, authenticated key-value store
organised as a Merkle AVL tree, and the chunking needed to replicate it
trustlessly.

A tree's proof of its entire contents is split into chunks. Chunk 0 is the
trunk: a proof of the upper half of the tree. Every further chunk is a leaf
chunk, proving one subtree below the trunk. Chunks can be produced and
verified in any order once the trunk is known.

Data Structure Documentation

Store

Nodes are stored by key, in a single sorted keyspace, together with a
small amount of metadata.

    Keyspace:
    +-------------------+----------------------------+
    | 'm' | "root"      | key of the root node       |
    +-------------------+----------------------------+
    | 'n' | node key    | node record                |
    +-------------------+----------------------------+

    Node record:
    +----------------------+------------------+-----------+------------+
    | value len (varint)   | value (varlen)   | left link | right link |
    +----------------------+------------------+-----------+------------+

    Link:
    +---------------------+
    | 0x00 (no child)     |
    +---------------------+---------------------+------------------+-------------------+------------------+
    | 0x01 (child)        | key len (varint)    | key (varlen)     | hash (32 bytes)   | height (1 byte)  |
    +---------------------+---------------------+------------------+-------------------+------------------+

Chunks

A chunk is the encoding of a sequence of proof ops (see package proofs),
without any header or framing. Given a trunk with boundary keys
b[0] < b[1] < ... < b[k-1], there are k+2 chunks:

    +---------+----------------------+----------------------+-----+-----------------------+
    | 0:trunk | 1: keys < b[0]       | 2: b[0] < keys < b[1]| ... | k+1: keys > b[k-1]    |
    +---------+----------------------+----------------------+-----+-----------------------+

Trees small enough to fit into the trunk produce a single chunk.
*/
package merk
