// Package config holds the tunables shared across driftdb's storage
// packages.
package config

import (
	"github.com/ncw/directio"
)

// Name of the database.
const DBName = "driftdb"

// PageSize is the number of bytes in a single page, both on disk and
// in a buffer pool frame. Aligned to the platform's O_DIRECT block
// size so pages can be read/written without going through the page
// cache twice.
const PageSize = directio.BlockSize

// DefaultPoolSize is the number of frames a BufferPoolManager holds
// when none is specified explicitly.
const DefaultPoolSize = 64

// DefaultReplacerK is the K parameter of the LRU-K replacer used by a
// buffer pool when none is specified explicitly.
const DefaultReplacerK = 2

// DefaultHeaderMaxDepth bounds the number of directory pages a hash
// table's header page can address (2^depth entries).
const DefaultHeaderMaxDepth = 2

// DefaultDirectoryMaxDepth bounds a hash table directory's global
// depth (2^depth bucket slots).
const DefaultDirectoryMaxDepth = 9

// MaxHeaderDepth and MaxDirectoryDepth are the hard ceilings from the
// spec: header/directory arrays must fit inside one PageSize page.
const MaxHeaderDepth = 9
const MaxDirectoryDepth = 9

// DefaultBucketMaxSize is the number of entries a hash bucket page
// holds before it must split, sized so a bucket's entry array fits
// in one page alongside its small header.
const DefaultBucketMaxSize = 128

// TracePath is the path the disk scheduler appends dispatched-request
// trace lines to. Empty disables tracing.
var TracePath = ""
