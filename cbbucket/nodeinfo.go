/*
Copyright 2026-Present Couchbase, Inc.

Use of this software is governed by the Business Source License included in
the file licenses/BSL-Couchbase.txt.  As of the Change Date specified in that
file, in accordance with the Business Source License, use of this software will
be governed by the Apache License, Version 2.0, included in the file
licenses/APL2.txt.
*/

package cbbucket

import (
	"net"
	"strconv"

	"github.com/couchbaselabs/cbrouting/cbconfig"
)

// Service names as they appear in the nodesExt services maps.
const (
	ServiceMgmt  = "mgmt"
	ServiceData  = "kv"
	ServiceViews = "capi"
	ServiceQuery = "n1ql"
)

// NodeReference identifies a single cluster node by its address and the
// ports it exposes per service.  References are built once per config and
// never mutated afterwards.
type NodeReference struct {
	Hostname string
	Services map[string]int
}

// DataPort returns the port the data service is bound to, or 0 when the
// node does not run the data service.
func (n NodeReference) DataPort() int {
	return n.Services[ServiceData]
}

// HasService indicates whether the node advertises the named service.
func (n NodeReference) HasService(service string) bool {
	_, ok := n.Services[service]
	return ok
}

// nodesFromTerse extracts the node reference list from a terse config.  We
// parse nodesExt first to get the ordering correct, this is required when
// we match the server list to the vbucket maps.  Configs from clusters old
// enough to predate nodesExt fall back to the legacy nodes list.
func nodesFromTerse(config *cbconfig.TerseConfigJson) []NodeReference {
	if len(config.NodesExt) > 0 {
		nodes := make([]NodeReference, 0, len(config.NodesExt))
		for _, nodeJson := range config.NodesExt {
			services := make(map[string]int, len(nodeJson.Services))
			for service, port := range nodeJson.Services {
				services[service] = port
			}

			nodes = append(nodes, NodeReference{
				Hostname: nodeJson.Hostname,
				Services: services,
			})
		}
		return nodes
	}

	nodes := make([]NodeReference, 0, len(config.Nodes))
	for _, nodeJson := range config.Nodes {
		services := make(map[string]int, len(nodeJson.Ports)+1)
		for service, port := range nodeJson.Ports {
			// the legacy ports map names the data port "direct"
			if service == "direct" {
				service = ServiceData
			}
			services[service] = port
		}

		// legacy hostnames carry the management port as a suffix
		hostname := nodeJson.Hostname
		if host, portStr, err := net.SplitHostPort(nodeJson.Hostname); err == nil {
			hostname = host

			if _, hasMgmt := services[ServiceMgmt]; !hasMgmt {
				if port, err := strconv.Atoi(portStr); err == nil {
					services[ServiceMgmt] = port
				}
			}
		}

		nodes = append(nodes, NodeReference{
			Hostname: hostname,
			Services: services,
		})
	}
	return nodes
}
