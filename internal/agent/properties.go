package agent

import "strings"

// Properties is an insertion-ordered key/value set rendered as a Java
// properties file.
type Properties struct {
	keys   []string
	values map[string]string
}

func NewProperties() *Properties {
	return &Properties{values: make(map[string]string)}
}

// Set adds key or replaces its value in place.
func (p *Properties) Set(key, value string) {
	if _, ok := p.values[key]; !ok {
		p.keys = append(p.keys, key)
	}
	p.values[key] = value
}

func (p *Properties) Get(key string) (string, bool) {
	v, ok := p.values[key]
	return v, ok
}

func (p *Properties) Keys() []string {
	return append([]string(nil), p.keys...)
}

func (p *Properties) Len() int {
	return len(p.keys)
}

// Render returns one key=value line per entry, in insertion order.
func (p *Properties) Render() string {
	lines := make([]string, 0, len(p.keys))
	for _, k := range p.keys {
		lines = append(lines, k+"="+p.values[k])
	}
	return strings.Join(lines, "\n")
}

// DefaultProperties returns the minifi.properties every agent starts with.
func DefaultProperties(layout Layout) *Properties {
	p := NewProperties()
	p.Set("nifi.flow.configuration.file", layout.FlowConfigFile)
	p.Set("nifi.extension.path", layout.ExtensionPath)
	p.Set("nifi.administrative.yield.duration", "1 sec")
	p.Set("nifi.bored.yield.duration", "100 millis")
	p.Set("nifi.openssl.fips.support.enable", "false")
	p.Set("nifi.provenance.repository.class.name", "NoOpRepository")
	return p
}

// DefaultLogProperties sends debug logging to stderr so it shows up in the
// container logs.
func DefaultLogProperties() *Properties {
	p := NewProperties()
	p.Set("spdlog.pattern", "[%Y-%m-%d %H:%M:%S.%e] [%n] [%l] %v")
	p.Set("appender.stderr", "stderr")
	p.Set("logger.root", "DEBUG, stderr")
	p.Set("logger.org::apache::nifi::minifi", "DEBUG, stderr")
	return p
}
