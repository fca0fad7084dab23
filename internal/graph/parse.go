package graph

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bebsworthy/arcset/internal/errors"
	"github.com/bebsworthy/arcset/internal/protocol"
)

// ParseEdge parses "source-destination" with nonnegative decimal node ids
func ParseEdge(s string) (protocol.Edge, error) {
	sep := strings.IndexByte(s, '-')
	if sep <= 0 || sep == len(s)-1 {
		return protocol.Edge{}, errors.UsageError(fmt.Sprintf("invalid edge %q: expected source-destination", s), nil)
	}

	from, err := parseNode(s[:sep])
	if err != nil {
		return protocol.Edge{}, errors.UsageError(fmt.Sprintf("invalid edge %q: bad source node", s), err)
	}
	to, err := parseNode(s[sep+1:])
	if err != nil {
		return protocol.Edge{}, errors.UsageError(fmt.Sprintf("invalid edge %q: bad destination node", s), err)
	}

	return protocol.Edge{From: from, To: to}, nil
}

func parseNode(s string) (int32, error) {
	v, err := strconv.ParseUint(s, 10, 31)
	if err != nil {
		return 0, err
	}
	return int32(v), nil
}

// ParseEdges parses every argument; at least one edge is required
func ParseEdges(args []string) ([]protocol.Edge, error) {
	if len(args) == 0 {
		return nil, errors.UsageError("at least one edge is required", nil)
	}

	edges := make([]protocol.Edge, 0, len(args))
	for _, arg := range args {
		e, err := ParseEdge(arg)
		if err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	return edges, nil
}
