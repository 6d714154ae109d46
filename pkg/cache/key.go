package cache

import (
	"fmt"
	"sort"
	"strings"
)

// Key namespaces used by the status service.
const (
	NamespaceStatus  = "status"
	NamespaceSummary = "summary"
)

// CacheKey identifies a cached value.
type CacheKey struct {
	// Namespace groups keys for pattern invalidation (e.g., "status")
	Namespace string

	// Subject is the provider or subject ID (e.g., "openai")
	Subject string

	// Params narrow the key further (e.g., {"component": "api"})
	Params map[string]string
}

// String generates a deterministic cache key string.
// Format: namespace:subject:param1=val1:param2=val2
//
// Example:
//
//	status:openai:component=api
func (k CacheKey) String() string {
	parts := make([]string, 0, 2+len(k.Params))

	if ns := strings.TrimSpace(k.Namespace); ns != "" {
		parts = append(parts, strings.ToLower(ns))
	}
	if subject := strings.TrimSpace(k.Subject); subject != "" {
		parts = append(parts, subject)
	}

	// Params sorted for determinism
	if len(k.Params) > 0 {
		names := make([]string, 0, len(k.Params))
		for name := range k.Params {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			parts = append(parts, fmt.Sprintf("%s=%s", name, k.Params[name]))
		}
	}

	return strings.Join(parts, ":")
}
