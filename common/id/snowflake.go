package id

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
)

// Generator hands out time-ordered int64 ids. Each process owns one and passes it
// to whoever needs ids; there is no package-level node.
type Generator struct {
	node *snowflake.Node
}

// NewGenerator creates a generator for the given node id (0-1023). Two agent
// processes sharing a redis lease should use different node ids.
func NewGenerator(nodeID int64) (*Generator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("creating snowflake node %d: %w", nodeID, err)
	}
	return &Generator{node: node}, nil
}

func (g *Generator) Next() int64 {
	return g.node.Generate().Int64()
}
