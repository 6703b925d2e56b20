/*
Package table contains an immutable SSTable implementation for
arbitrary byte keys. Merk uses it to store point-in-time checkpoints
of a tree.

Data Structure Documentation

Table

A table contains a series of data blocks followed by an index and
a table footer.

    Table layout:
    +---------+---------+---------+-------------+--------------+
    | block 1 |   ...   | block n | block index | table footer |
    +---------+---------+---------+-------------+--------------+

    Block index:
    +-----------------------------+-------------------+--------------------------------------+--------------------------+-------+
    | last key block 1 (prefixed) | offset 1 (varint) | last key block 2 (prefixed to prev.) | offset 2 (varint,delta)  |  ...  |
    +-----------------------------+-------------------+--------------------------------------+--------------------------+-------+

    Table footer:
    +------------------------+------------------+
    | index offset (8 bytes) |  magic (8 bytes) |
    +------------------------+------------------+

Block

A block comprises of a series of sections, followed by a section
index and a single-byte compression type indicator.

    Block layout:
    +-----------+---------+-----------+---------------+---------------------------+
    | section 1 |   ...   | section n | section index | compression type (1-byte) |
    +-----------+---------+-----------+---------------+---------------------------+

    Section index:
    +----------------------------+-------+----------------------------+-------------------------------+
    | section offset 2 (4 bytes) |  ...  | section offset n (4 bytes) |  number of sections (4 bytes) |
    +----------------------------+-------+----------------------------+-------------------------------+

Section

A section is a series of key/value pairs. Each key is stored as the length
of the prefix it shares with the previous key, followed by the remaining
suffix. The first key of every section shares nothing and is stored in full,
which allows sections to be searched without decoding their predecessors.

    +-----------------+-------------------+--------------+----------------------+------------------+-------+
    | shared (varint) | unshared (varint) | key suffix   | value len (varint)   | value (varlen)   |  ...  |
    +-----------------+-------------------+--------------+----------------------+------------------+-------+
*/
package table
