// Package dnsserver answers DNS address queries from the registry store.
//
// Query names are normalized before lookup: lower-cased, trailing dot removed, the
// configured domain stripped and a trailing ".public" or ".private" removed, so
// "Foo.public." and "foo" resolve the same service.
//
// A queries get one record per IPv4 address and AAAA queries one per IPv6 address.
// Known names asked for another type get an empty NOERROR answer. Unknown names are
// forwarded to the upstream resolver when one is configured, or answered NXDOMAIN.
// Answers never wait on peers.
package dnsserver
