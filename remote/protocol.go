// Package remote exposes the laser over a websocket address space of
// objects, methods and monitored variables, and provides a typed client.
package remote

import "encoding/json"

// Operations of Request and Response.
const (
	OpBrowse    = "browse"
	OpCall      = "call"
	OpRead      = "read"
	OpSubscribe = "subscribe"

	// OpNotify marks a server push for a subscribed variable.
	OpNotify = "notify"
)

// Request is a message from client to server. Node names are
// "<object>.<name>".
type Request struct {
	ID    int64             `json:"id"`
	Op    string            `json:"op"`
	Node  string            `json:"node,omitempty"`
	Args  []json.RawMessage `json:"args,omitempty"`
	Nodes []string          `json:"nodes,omitempty"`
}

// Response answers the Request with the same ID. Notifications have no ID.
type Response struct {
	ID     int64           `json:"id,omitempty"`
	Op     string          `json:"op"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`

	Node  string          `json:"node,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`

	Space *AddressSpace `json:"space,omitempty"`
}

// AddressSpace lists the objects of a namespace.
type AddressSpace struct {
	Namespace string       `json:"namespace"`
	Objects   []ObjectInfo `json:"objects"`
}

type ObjectInfo struct {
	Name      string   `json:"name"`
	Methods   []string `json:"methods"`
	Variables []string `json:"variables"`
}

// Variables returns every variable node of the address space.
func (a AddressSpace) Variables(object string) []string {
	var res []string
	for _, o := range a.Objects {
		if object != "" && o.Name != object {
			continue
		}
		for _, v := range o.Variables {
			res = append(res, o.Name+"."+v)
		}
	}
	return res
}

// HasMethod reports whether node names a method.
func (a AddressSpace) HasMethod(node string) bool {
	for _, o := range a.Objects {
		for _, m := range o.Methods {
			if o.Name+"."+m == node {
				return true
			}
		}
	}
	return false
}
