package ids

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/bwmarrin/snowflake"
)

const (
	orderPrefix   = "ORD"
	receiptPrefix = "FR"

	// RandomNode asks NewGenerator to pick the snowflake node itself.
	RandomNode = -1
)

// Generator hands out human-readable numbers. The snowflake id carries
// the creation time in its high bits followed by the node and a per-ms
// sequence, so numbers sort by creation time. A random suffix keeps
// numbers from two processes sharing a node apart.
type Generator struct {
	mu   sync.Mutex
	node *snowflake.Node
}

// NewGenerator builds a generator for node, or for a random node when
// node is RandomNode.
func NewGenerator(node int64) (*Generator, error) {
	if node == RandomNode {
		node = int64(random32() % (1 << snowflake.NodeBits))
	}
	n, err := snowflake.NewNode(node)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", node, err)
	}
	return &Generator{node: n}, nil
}

func (g *Generator) OrderNumber() string {
	return fmt.Sprintf("%s-%019d-%08x", orderPrefix, g.next(), random32())
}

func (g *Generator) ReceiptNumber() string {
	return fmt.Sprintf("%s-%019d-%08x", receiptPrefix, g.next(), random32())
}

func (g *Generator) next() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.node.Generate().Int64()
}

func random32() uint32 {
	var b [4]byte
	// crypto/rand.Read never returns an error on supported platforms.
	_, _ = rand.Read(b[:])
	return binary.BigEndian.Uint32(b[:])
}
