package workflow

import "encoding/json"

// NodeType represents the type of a workflow node.
type NodeType string

const (
	NodeTypeTrigger NodeType = "trigger"
	NodeTypeStart   NodeType = "start"
	NodeTypeAction  NodeType = "action"
	NodeTypeEnd     NodeType = "end"
)

// Node represents one node of a workflow graph. Config carries the
// node-type-specific configuration; for trigger nodes that includes the
// plugin id, the subscribed event name and the event parameter values.
type Node struct {
	ID     string         `json:"id"`
	Type   NodeType       `json:"type"`
	Title  string         `json:"title"`
	Config map[string]any `json:"config"`
}

// TriggerConfig is the typed view of a trigger node's Config.
type TriggerConfig struct {
	PluginID   string         `json:"plugin_id"`
	EventName  string         `json:"event_name"`
	Parameters map[string]any `json:"parameters"`
}

// TriggerConfig decodes the node config into a TriggerConfig. Returns the
// zero value for non-trigger nodes or malformed config.
func (n *Node) TriggerConfig() TriggerConfig {
	var cfg TriggerConfig
	if n.Type != NodeTypeTrigger || n.Config == nil {
		return cfg
	}
	raw, err := json.Marshal(n.Config)
	if err != nil {
		return cfg
	}
	_ = json.Unmarshal(raw, &cfg)
	return cfg
}

// Graph represents a workflow node graph.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Edge represents a directed connection between two nodes.
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// WalkNodes returns all nodes of the given type, in graph order.
func (g *Graph) WalkNodes(nodeType NodeType) []Node {
	if g == nil {
		return nil
	}
	var nodes []Node
	for _, n := range g.Nodes {
		if n.Type == nodeType {
			nodes = append(nodes, n)
		}
	}
	return nodes
}

// FindNode returns the node with the given id, or nil if absent.
func (g *Graph) FindNode(nodeID string) *Node {
	if g == nil {
		return nil
	}
	for i := range g.Nodes {
		if g.Nodes[i].ID == nodeID {
			return &g.Nodes[i]
		}
	}
	return nil
}
