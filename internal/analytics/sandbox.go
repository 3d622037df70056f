package analytics

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// SandboxPolicy decides which tenant identifiers get the non-production
// short-circuit: sandbox tenants skip the primary source entirely and are
// served from local records, keeping demos cheap and offline-friendly.
//
// The heuristic is a named, configurable policy rather than inline string
// checks so it can be tested and reconfigured independently.
type SandboxPolicy struct {
	exact    map[string]struct{}
	prefixes []string
}

// sandboxPolicyFile is the on-disk YAML shape.
type sandboxPolicyFile struct {
	Tenants  []string `yaml:"tenants"`
	Prefixes []string `yaml:"prefixes"`
}

// DefaultSandboxPolicy returns the built-in policy: the well-known demo
// tenant plus the conventional non-production prefixes.
func DefaultSandboxPolicy() *SandboxPolicy {
	return newSandboxPolicy(
		[]string{"demo-tenant"},
		[]string{"demo-", "sandbox-", "test-"},
	)
}

// LoadSandboxPolicy builds a policy from all *.yaml files in dir, merged on
// top of the built-in defaults. A missing directory is valid and yields the
// defaults alone.
func LoadSandboxPolicy(dir string) (*SandboxPolicy, error) {
	policy := DefaultSandboxPolicy()

	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return policy, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sandbox policy dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("sandbox policy path %q is not a directory", dir)
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("glob sandbox policy files: %w", err)
	}

	for _, path := range files {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read sandbox policy %q: %w", path, err)
		}
		var f sandboxPolicyFile
		if err := yaml.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("parse sandbox policy %q: %w", path, err)
		}
		policy.merge(f)
	}

	return policy, nil
}

func newSandboxPolicy(tenants, prefixes []string) *SandboxPolicy {
	p := &SandboxPolicy{exact: make(map[string]struct{})}
	p.merge(sandboxPolicyFile{Tenants: tenants, Prefixes: prefixes})
	return p
}

func (p *SandboxPolicy) merge(f sandboxPolicyFile) {
	for _, t := range f.Tenants {
		t = strings.TrimSpace(t)
		if t != "" {
			p.exact[t] = struct{}{}
		}
	}
	for _, pre := range f.Prefixes {
		pre = strings.TrimSpace(pre)
		if pre != "" {
			p.prefixes = append(p.prefixes, pre)
		}
	}
}

// IsSandbox reports whether tenantID is recognized as non-production.
func (p *SandboxPolicy) IsSandbox(tenantID string) bool {
	if _, ok := p.exact[tenantID]; ok {
		return true
	}
	for _, pre := range p.prefixes {
		if strings.HasPrefix(tenantID, pre) {
			return true
		}
	}
	return false
}
