package worker

import "strings"

// component is the object-id prefix of every discovery entry.
const component = "mzbtir"

// nodeID turns a BLE address into a topic-safe identifier.
func nodeID(mac string) string {
	return strings.ToLower(strings.ReplaceAll(mac, ":", ""))
}

// FormatTopic joins levels under the configured topic prefix.
func (w *Worker) FormatTopic(levels ...string) string {
	return strings.Join(append([]string{w.opts.TopicPrefix}, levels...), "/")
}

// FormatDiscoveryTopic returns "<node>/mzbtir_<args...>".
func FormatDiscoveryTopic(mac string, args ...string) string {
	return nodeID(mac) + "/" + strings.Join(append([]string{component}, args...), "_")
}

// FormatDiscoveryID returns the unique id of a discovery entry.
func FormatDiscoveryID(mac string, args ...string) string {
	return FormatDiscoveryTopic(mac, args...)
}

// FormatDiscoveryName returns "<args...>_<node>", or just the node when no
// args are given.
func FormatDiscoveryName(mac string, args ...string) string {
	if len(args) == 0 {
		return nodeID(mac)
	}
	return strings.Join(append(append([]string{}, args...), nodeID(mac)), "_")
}
