// Package main (cmd/dnsregistry) runs a DNS registry node.
//
// The node watches the local Docker engine for containers carrying service labels
// ("caddy", "caddy_0", ... by default) with values such as "api.public" or
// "db.private", and answers A/AAAA queries for the declared names. Public names are
// served to peers on GET /api/self/services and every peer listed in --peers is polled
// for its own public names.
//
// All components run under one errgroup: losing the Docker event stream or a listener
// stops the process with a non-zero exit code.
//
// Configuration can be given as flags, environment variables or a .env file:
//
//	dnsregistry --hostname node-a \
//	    --peers "http://10.0.0.2:3000 http://10.0.0.3:3000" \
//	    --dns-listen 0.0.0.0:53 \
//	    --dns-upstream 1.1.1.1:53
//
//	SELF_HOSTNAME=node-a REGISTRY_URLS="http://10.0.0.2:3000" dnsregistry --env-file /etc/dnsregistry.env
package main
