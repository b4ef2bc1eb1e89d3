package mail

import "strings"

// addr is one parsed recipient token. Remote tokens use the form
// "project:<project_key>#<agent_name>"; everything else is a bare name in
// the sender's project.
type addr struct {
	project string
	name    string
	remote  bool
}

// parseAddress classifies a recipient token. It never fails: a malformed
// remote token parses to an addr that cannot resolve, which the delivery
// engine then reports as unresolved.
func parseAddress(token string) addr {
	t := strings.TrimSpace(token)
	rest, ok := strings.CutPrefix(t, "project:")
	if !ok {
		return addr{name: t}
	}
	key, name, found := strings.Cut(rest, "#")
	if !found {
		return addr{project: strings.TrimSpace(key), remote: true}
	}
	return addr{
		project: strings.TrimSpace(key),
		name:    strings.TrimSpace(name),
		remote:  true,
	}
}
