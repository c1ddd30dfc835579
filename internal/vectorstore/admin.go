package vectorstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// DeleteNamespacesWithPrefix drops every namespace whose name starts with
// prefix and returns the names it matched. With dryRun nothing is deleted.
func DeleteNamespacesWithPrefix(ctx context.Context, admin NamespaceAdmin, prefix string, dryRun bool) ([]string, error) {
	if strings.TrimSpace(prefix) == "" {
		return nil, fmt.Errorf("namespace prefix cannot be empty")
	}

	namespaces, err := admin.ListNamespaces(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list namespaces: %w", err)
	}

	var matched []string
	for _, ns := range namespaces {
		if !strings.HasPrefix(ns, prefix) {
			continue
		}
		matched = append(matched, ns)
		if dryRun {
			log.Info().Str("namespace", ns).Msg("Would delete namespace")
			continue
		}
		log.Info().Str("namespace", ns).Msg("Deleting namespace")
		if err := admin.DeleteNamespace(ctx, ns); err != nil {
			return matched, fmt.Errorf("failed to delete namespace %s: %w", ns, err)
		}
	}
	return matched, nil
}
