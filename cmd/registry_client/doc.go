// Package main (cmd/registry_client) inspects a running DNS registry node.
//
// Commands:
//
//	snapshot       - public services the node publishes to its peers
//	peers          - sync status of every configured peer
//	peer-services  - services the node currently holds for one peer
//	service        - every entry (local and remote, public and private) for one name
//	lookup         - A and AAAA lookup through the node's DNS server
//
// Example:
//
//	registry_client --registry-addr http://10.0.0.2:3000 peers
//	registry_client lookup --dns-addr 10.0.0.2:53 api.public
package main
