// Package roster resolves configured team-member names to Jira account ids
// once at startup. Names that do not resolve are skipped, not fatal.
package roster

import (
	"context"

	"github.com/flowmetrics/jira-flow-exporter/internal/config"
	"github.com/flowmetrics/jira-flow-exporter/internal/jira"
	"go.uber.org/zap"
)

// AccountResolver resolves a display name to an account.
type AccountResolver interface {
	ResolveAccountID(ctx context.Context, name string) (jira.Account, bool, error)
}

// Group maps account id to display name for one role group.
type Group map[string]string

// Groups holds the resolved role groups for the process lifetime.
type Groups struct {
	Developers Group
	QA         Group
	PM         Group

	// internalIDs and internalNames cover all role groups plus the extra
	// configured internal names, for comment-author classification.
	internalIDs   map[string]struct{}
	internalNames map[string]struct{}
}

// Build resolves all configured team names. Resolution errors and misses are
// logged per name and leave that entry absent.
func Build(ctx context.Context, resolver AccountResolver, cfg config.TeamsConfig, logger *zap.Logger) Groups {
	if logger == nil {
		logger = zap.NewNop()
	}

	groups := Groups{
		Developers:    buildGroup(ctx, resolver, cfg.Developers, "developers", logger),
		QA:            buildGroup(ctx, resolver, cfg.QA, "qa", logger),
		PM:            buildGroup(ctx, resolver, cfg.PM, "pm", logger),
		internalIDs:   make(map[string]struct{}),
		internalNames: make(map[string]struct{}),
	}

	for _, group := range []Group{groups.Developers, groups.QA, groups.PM} {
		for accountID, name := range group {
			groups.internalIDs[accountID] = struct{}{}
			groups.internalNames[name] = struct{}{}
		}
	}
	for accountID, name := range buildGroup(ctx, resolver, cfg.Internal, "internal", logger) {
		groups.internalIDs[accountID] = struct{}{}
		groups.internalNames[name] = struct{}{}
	}
	return groups
}

// Empty reports whether no account resolved in any group.
func (g Groups) Empty() bool {
	return len(g.Developers) == 0 && len(g.QA) == 0 && len(g.PM) == 0
}

// IsInternal classifies a comment author by account id, falling back to the
// display name when the id is absent.
func (g Groups) IsInternal(accountID, displayName string) bool {
	if accountID != "" {
		if _, ok := g.internalIDs[accountID]; ok {
			return true
		}
	}
	_, ok := g.internalNames[displayName]
	return ok
}

func buildGroup(ctx context.Context, resolver AccountResolver, names []string, groupName string, logger *zap.Logger) Group {
	group := make(Group, len(names))
	if len(names) == 0 {
		logger.Warn("no names configured for group", zap.String("group", groupName))
		return group
	}

	logger.Info("resolving account ids", zap.String("group", groupName), zap.Strings("names", names))
	for _, name := range names {
		account, found, err := resolver.ResolveAccountID(ctx, name)
		if err != nil {
			logger.Error("account lookup failed",
				zap.String("group", groupName),
				zap.String("name", name),
				zap.Error(err),
			)
			continue
		}
		if !found {
			logger.Warn("no account found for name",
				zap.String("group", groupName),
				zap.String("name", name),
			)
			continue
		}
		group[account.AccountID] = account.DisplayName
		logger.Info("resolved account",
			zap.String("group", groupName),
			zap.String("name", account.DisplayName),
			zap.String("account_id", account.AccountID),
		)
	}
	return group
}
