package models

// NodeView is the public view of a chain member. Salts are never exposed.
type NodeView struct {
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`
	UUID string `json:"uuid" yaml:"uuid"`
	Next string `json:"next" yaml:"next"`
}

// ChainView describes a node and the chain it keeps.
type ChainView struct {
	Name          string     `json:"name" yaml:"name"`
	State         string     `json:"state" yaml:"state"`
	GameTimestamp int        `json:"xGameTimestamp" yaml:"xGameTimestamp"`
	Next          string     `json:"next,omitempty" yaml:"next,omitempty"` // set on relay nodes
	Nodes         []NodeView `json:"nodes" yaml:"nodes"`
}
