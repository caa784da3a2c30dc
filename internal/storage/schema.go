package storage

// SQLite snapshot schema. seq keeps collection order; id is the node id.
// meta holds snapshot-wide values such as the revision.
const (
	createNodes = `CREATE TABLE IF NOT EXISTS nodes (
    seq INTEGER PRIMARY KEY,
    id INTEGER NOT NULL UNIQUE,
    parent_id INTEGER NOT NULL,
    name TEXT NOT NULL
);`

	idxNodesParent = `CREATE INDEX IF NOT EXISTS idx_nodes_parent ON nodes(parent_id);`

	createMeta = `CREATE TABLE IF NOT EXISTS meta (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);`
)

// metaRevision is the meta key holding the snapshot revision.
const metaRevision = "revision"

// schemaDDL lists the statements run when a database is opened.
var schemaDDL = []string{
	createNodes,
	idxNodesParent,
	createMeta,
}
