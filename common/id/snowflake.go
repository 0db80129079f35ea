package id

import (
	"fmt"
	"sync"

	"github.com/bwmarrin/snowflake"
)

const defaultNode = 1

var (
	mu   sync.Mutex
	node *snowflake.Node
)

// Init configures the snowflake node used for submission and evaluation ids.
// Node ids must differ between server and worker replicas.
func Init(nodeID int64) error {
	mu.Lock()
	defer mu.Unlock()

	n, err := snowflake.NewNode(nodeID)
	if err != nil {
		return fmt.Errorf("init snowflake node %d: %w", nodeID, err)
	}
	node = n
	return nil
}

// New returns a time-ordered int64 id. Without Init it lazily uses node 1,
// which is fine for the single-process CLI and for tests.
func New() int64 {
	mu.Lock()
	if node == nil {
		node, _ = snowflake.NewNode(defaultNode)
	}
	n := node
	mu.Unlock()
	return n.Generate().Int64()
}
