package yamlcfg

import (
	"fmt"

	"github.com/specialistvlad/asegrid/internal/argtree"
	"gopkg.in/yaml.v3"
)

// value converts a node into an argument tree. Mapping nodes keep the order
// their keys appear in the document.
func value(n *yaml.Node) (argtree.Value, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return argtree.None{}, nil
		}
		return value(n.Content[0])
	case yaml.AliasNode:
		return value(n.Alias)
	case yaml.MappingNode:
		entries := make([]argtree.Entry, 0, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			k, v := n.Content[i], n.Content[i+1]
			if k.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("line %d: mapping keys must be scalars", k.Line)
			}
			conv, err := value(v)
			if err != nil {
				return nil, err
			}
			entries = append(entries, argtree.Entry{Key: k.Value, Value: conv})
		}
		obj, err := argtree.Object(entries)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return obj, nil
	case yaml.SequenceNode:
		seq := make(argtree.Sequence, 0, len(n.Content))
		for _, el := range n.Content {
			conv, err := value(el)
			if err != nil {
				return nil, err
			}
			seq = append(seq, conv)
		}
		return seq, nil
	case yaml.ScalarNode:
		return scalar(n)
	default:
		return nil, fmt.Errorf("line %d: unsupported node kind %d", n.Line, n.Kind)
	}
}

func scalar(n *yaml.Node) (argtree.Value, error) {
	switch n.ShortTag() {
	case "!!null":
		return argtree.None{}, nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return nil, err
		}
		return argtree.Bool(b), nil
	case "!!int":
		var i int64
		if err := n.Decode(&i); err != nil {
			return nil, err
		}
		return argtree.Int(i), nil
	case "!!float":
		var f float64
		if err := n.Decode(&f); err != nil {
			return nil, err
		}
		return argtree.Float(f), nil
	default:
		return argtree.String(n.Value), nil
	}
}
