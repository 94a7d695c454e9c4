package mlp

import (
	"github.com/emicklei/dot"
	. "github.com/stevegt/goadapt"
)

// Draw returns a graphviz rendering of the network.  Each layer is a
// cluster of nodes labeled with the activation and bias; edges carry
// the weights.
func (n *Network) Draw() string {
	g := dot.NewGraph(dot.Directed)
	g.Attr("rankdir", "LR")
	g.Attr("label", n.Name)

	inputs := g.Subgraph("inputs", dot.ClusterOption{})
	upstream := make([]dot.Node, n.InputCount())
	for i := range upstream {
		label := Spf("in%d", i)
		if n.InputNames != nil {
			label = n.InputNames[i]
		}
		upstream[i] = inputs.Node(Spf("i%d", i)).Label(label).Box()
	}

	last := len(n.Layers) - 1
	for l, layer := range n.Layers {
		sub := g.Subgraph(Spf("layer %d", l), dot.ClusterOption{})
		nodes := make([]dot.Node, layer.NodesOut)
		for i := range nodes {
			label := Spf("%s\nb=%.3f", layer.Activation, layer.Biases[i])
			if l == last && n.OutputNames != nil {
				label = Spf("%s\n%s", n.OutputNames[i], label)
			}
			nodes[i] = sub.Node(Spf("l%dn%d", l, i)).Label(label)
			for j, from := range upstream {
				g.Edge(from, nodes[i]).Label(Spf("%.3f", layer.Weights[i][j]))
			}
		}
		upstream = nodes
	}
	return g.String()
}
