// Package core implements pattern matching for risk classification.
package core

import (
	"fmt"
	"regexp"
	"sort"
	"sync"

	"github.com/ScarletRedJoker/jarvis-safety/internal/db"
)

// Pattern is a single classification rule.
type Pattern struct {
	// Level is the risk level this pattern assigns.
	Level db.RiskLevel
	// Pattern is the regex source.
	Pattern string
	// Compiled is the compiled regex.
	Compiled *regexp.Regexp
	// Description explains the rule; it is what the caller sees when blocked.
	Description string
	// Source indicates where this pattern came from ("builtin", "config", "runtime").
	Source string
}

// Classification is the result of classifying a command.
type Classification struct {
	// RiskLevel is the assigned level.
	RiskLevel db.RiskLevel
	// MatchedRule describes the rule that decided the level.
	MatchedRule string
	// RequiresApproval indicates the command must go through the approval
	// workflow before running.
	RequiresApproval bool
	// Allowed is false only for forbidden commands; they are never executed.
	Allowed bool
}

// NoRuleMatched is the rule description reported when no pattern matched and
// the classifier fell back to manual review.
const NoRuleMatched = "no rule matched: defaulting to manual review"

// Classifier maps raw commands to risk levels using ordered pattern lists.
// Forbidden patterns are kept structurally separate and always evaluated
// first, so no permissive rule can mask a forbidden one.
type Classifier struct {
	mu        sync.RWMutex
	forbidden []*Pattern
	safe      []*Pattern
	medium    []*Pattern
	high      []*Pattern
}

// NewClassifier creates a classifier loaded with the built-in rules.
func NewClassifier() *Classifier {
	c := &Classifier{}
	c.loadBuiltins()
	return c
}

type builtinRule struct {
	pattern     string
	description string
}

func (c *Classifier) loadBuiltins() {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Forbidden: catastrophic and irreversible. Never executed, no override.
	c.forbidden = compileRules(db.RiskForbidden, []builtinRule{
		{`rm\s+(-\w+\s+)*-[a-z]*[rf][a-z]*\s+(-\w+\s+)*/\s*$`, "recursive delete of filesystem root"},
		{`rm\s+(-\w+\s+)*-[a-z]*[rf][a-z]*\s+(-\w+\s+)*/\*`, "recursive delete of filesystem root wildcard"},
		{`rm\s+-rf?\s+/($|\s|\*)`, "recursive delete of filesystem root"},
		{`\bdd\b.*\bof=/dev/(sd|hd|nvme|vd|xvd)`, "raw write to block device"},
		{`\bmkfs(\.\w+)?\b`, "filesystem format"},
		{`\b(fdisk|parted|sgdisk|wipefs)\b`, "disk partitioning tool"},
		{`\b(shutdown|poweroff|halt)\b`, "host power control"},
		{`\breboot\b`, "host power control"},
		{`\b(iptables|nft)\s+(-F|flush)`, "firewall flush"},
		{`(curl|wget)\s+[^|;]*\|\s*(sudo\s+)?(ba|z|da)?sh\b`, "download piped to shell"},
		{`>\s*/dev/(sd|hd|nvme|vd|xvd)`, "raw write to block device"},
	}, "builtin")

	// Safe: read-only, informational. Run immediately without approval.
	c.safe = compileRules(db.RiskSafe, []builtinRule{
		{`^(ls|ll|dir)\b`, "directory listing"},
		{`^(cat|head|tail|less|more)\b`, "file viewing"},
		{`^(pwd|whoami|id|hostname|uname|date|uptime)\b`, "host information"},
		{`^(df|du|free|top\s+-b|ps|vmstat)\b`, "resource usage query"},
		{`^echo\b`, "echo"},
		{`^(which|whereis|type)\b`, "binary lookup"},
		{`^grep\b`, "text search"},
		{`^docker\s+(ps|images|logs|inspect|stats|version|info|top)\b`, "container introspection"},
		{`^docker\s+compose\s+(ps|logs|config|version)\b`, "compose introspection"},
		{`^kubectl\s+(get|describe|logs|version|top)\b`, "cluster introspection"},
		{`^systemctl\s+(status|is-active|is-enabled|list-units)\b`, "service status query"},
		{`^journalctl\b`, "journal read"},
		{`^git\s+(status|log|diff|show|branch|remote|fetch\s+--dry-run)\b`, "version control read"},
		{`^ip\s+(addr|link|route)\s+(show|list)?\b`, "network configuration query"},
		{`^(ping|traceroute|dig|nslookup|host)\b`, "network diagnostics"},
	}, "builtin")

	// Medium risk: idempotent or reversible service management. Approval
	// required before execution.
	c.medium = compileRules(db.RiskMedium, []builtinRule{
		{`^docker\s+(start|stop|restart|pause|unpause)\b`, "container lifecycle change"},
		{`^docker\s+compose\s+(up|down|start|stop|restart|pull)\b`, "compose stack change"},
		{`^docker\s+(pull|build|tag)\b`, "image fetch or build"},
		{`^systemctl\s+(start|restart|reload)\b`, "service start or restart"},
		{`^(mkdir|touch|cp|mv|ln)\b`, "non-destructive filesystem write"},
		{`^git\s+(pull|checkout|stash|merge|rebase)\b`, "version control workspace change"},
		{`^(npm|pip|apt|apt-get|yum|dnf)\s+(install|update|upgrade)\b`, "package install or upgrade"},
		{`^virsh\s+(start|reboot|resume|suspend)\b`, "virtual machine lifecycle change"},
	}, "builtin")

	// High risk: destructive but non-catastrophic. Approval required.
	c.high = compileRules(db.RiskHigh, []builtinRule{
		{`^docker\s+(rm|rmi)\b`, "container or image removal"},
		{`^docker\s+volume\s+rm\b`, "volume removal"},
		{`^docker\s+(system|image|container|volume|network)\s+prune\b`, "docker prune"},
		{`^rm\b`, "file deletion"},
		{`^systemctl\s+(stop|disable|mask)\b`, "service stop or disable"},
		{`^git\s+push\b`, "version control push"},
		{`^git\s+(reset\s+--hard|clean\s+-[a-z]*f)`, "version control history discard"},
		{`^(chmod|chown)\s+-R\b`, "recursive permission change"},
		{`^kubectl\s+delete\b`, "cluster resource deletion"},
		{`^virsh\s+(shutdown|destroy|undefine)\b`, "virtual machine teardown"},
		{`^(userdel|groupdel)\b`, "account removal"},
		{`^crontab\s+-r\b`, "crontab wipe"},
	}, "builtin")
}

func compileRules(level db.RiskLevel, rules []builtinRule, source string) []*Pattern {
	result := make([]*Pattern, 0, len(rules))
	for _, r := range rules {
		compiled, err := regexp.Compile("(?i)" + r.pattern)
		if err != nil {
			// Built-in patterns must always be valid.
			panic(fmt.Sprintf("invalid builtin pattern %q: %v", r.pattern, err))
		}
		result = append(result, &Pattern{
			Level:       level,
			Pattern:     r.pattern,
			Compiled:    compiled,
			Description: r.description,
			Source:      source,
		})
	}
	return result
}

// Classify determines the risk level for a command. It is pure and
// deterministic: the same input always yields the same result.
func (c *Classifier) Classify(cmd string) Classification {
	c.mu.RLock()
	defer c.mu.RUnlock()

	normalized := NormalizeCommand(cmd)
	if normalized.Raw == "" {
		return Classification{
			RiskLevel:        db.RiskHigh,
			MatchedRule:      NoRuleMatched,
			RequiresApproval: true,
			Allowed:          true,
		}
	}

	// Forbidden rules run against the raw command first; pipe constructs like
	// "curl ... | sh" only match before segment splitting.
	if match := matchList(normalized.Raw, c.forbidden); match != nil {
		return forbiddenResult(match)
	}
	for _, seg := range normalized.Segments {
		if match := matchList(seg, c.forbidden); match != nil {
			return forbiddenResult(match)
		}
	}

	// Compound commands take the highest-risk segment. A parse failure is
	// treated the same way: every textual piece is classified and the worst
	// one wins, so a lexer error can never downgrade risk.
	if normalized.IsCompound || normalized.ParseError {
		return c.classifySegments(normalized.Segments)
	}

	return c.classifyOne(normalized.Raw)
}

// classifyOne evaluates the permissive lists in precedence order.
func (c *Classifier) classifyOne(cmd string) Classification {
	if match := matchList(cmd, c.safe); match != nil {
		return Classification{
			RiskLevel:   db.RiskSafe,
			MatchedRule: match.Description,
			Allowed:     true,
		}
	}
	if match := matchList(cmd, c.medium); match != nil {
		return Classification{
			RiskLevel:        db.RiskMedium,
			MatchedRule:      match.Description,
			RequiresApproval: true,
			Allowed:          true,
		}
	}
	if match := matchList(cmd, c.high); match != nil {
		return Classification{
			RiskLevel:        db.RiskHigh,
			MatchedRule:      match.Description,
			RequiresApproval: true,
			Allowed:          true,
		}
	}

	// Default deny: unknown commands never auto-execute.
	return Classification{
		RiskLevel:        db.RiskHigh,
		MatchedRule:      NoRuleMatched,
		RequiresApproval: true,
		Allowed:          true,
	}
}

func (c *Classifier) classifySegments(segments []string) Classification {
	result := Classification{RiskLevel: db.RiskSafe, Allowed: true}
	matched := false

	for _, seg := range segments {
		segResult := c.classifyOne(seg)
		if !matched || segResult.RiskLevel.Rank() > result.RiskLevel.Rank() {
			result = segResult
			matched = true
		}
	}

	if !matched {
		return c.classifyOne("")
	}
	return result
}

func forbiddenResult(match *Pattern) Classification {
	return Classification{
		RiskLevel:   db.RiskForbidden,
		MatchedRule: match.Description,
		Allowed:     false,
	}
}

func matchList(cmd string, patterns []*Pattern) *Pattern {
	for _, p := range patterns {
		if p.Compiled.MatchString(cmd) {
			return p
		}
	}
	return nil
}

// AddPattern registers a pattern at runtime.
func (c *Classifier) AddPattern(level db.RiskLevel, pattern, description, source string) error {
	compiled, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return fmt.Errorf("compiling pattern: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	p := &Pattern{
		Level:       level,
		Pattern:     pattern,
		Compiled:    compiled,
		Description: description,
		Source:      source,
	}

	switch level {
	case db.RiskForbidden:
		c.forbidden = append(c.forbidden, p)
	case db.RiskSafe:
		c.safe = append(c.safe, p)
	case db.RiskMedium:
		c.medium = append(c.medium, p)
	case db.RiskHigh:
		c.high = append(c.high, p)
	default:
		return fmt.Errorf("unknown risk level %q", level)
	}

	return nil
}

// RemovePattern removes a runtime pattern by its regex source. Built-in rules
// can be removed too; operators own their policy.
func (c *Classifier) RemovePattern(level db.RiskLevel, pattern string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	var list *[]*Pattern
	switch level {
	case db.RiskForbidden:
		list = &c.forbidden
	case db.RiskSafe:
		list = &c.safe
	case db.RiskMedium:
		list = &c.medium
	case db.RiskHigh:
		list = &c.high
	default:
		return false
	}

	for i, p := range *list {
		if p.Pattern == pattern {
			*list = append((*list)[:i], (*list)[i+1:]...)
			return true
		}
	}
	return false
}

// ListPatterns returns the patterns for a level.
func (c *Classifier) ListPatterns(level db.RiskLevel) []*Pattern {
	c.mu.RLock()
	defer c.mu.RUnlock()

	switch level {
	case db.RiskForbidden:
		return append([]*Pattern(nil), c.forbidden...)
	case db.RiskSafe:
		return append([]*Pattern(nil), c.safe...)
	case db.RiskMedium:
		return append([]*Pattern(nil), c.medium...)
	case db.RiskHigh:
		return append([]*Pattern(nil), c.high...)
	}
	return nil
}

// PatternExport is a serializable view of the full rule set.
type PatternExport struct {
	Levels map[string][]PatternDetails `json:"levels"`
	Counts map[string]int              `json:"counts"`
}

// PatternDetails is a single exported pattern.
type PatternDetails struct {
	Pattern     string `json:"pattern"`
	Description string `json:"description,omitempty"`
	Source      string `json:"source"`
}

// Export returns all patterns grouped by level, sorted for deterministic
// output.
func (c *Classifier) Export() *PatternExport {
	c.mu.RLock()
	defer c.mu.RUnlock()

	export := &PatternExport{
		Levels: make(map[string][]PatternDetails),
		Counts: make(map[string]int),
	}

	groups := []struct {
		name     string
		patterns []*Pattern
	}{
		{string(db.RiskForbidden), c.forbidden},
		{string(db.RiskSafe), c.safe},
		{string(db.RiskMedium), c.medium},
		{string(db.RiskHigh), c.high},
	}

	for _, g := range groups {
		details := make([]PatternDetails, 0, len(g.patterns))
		for _, p := range g.patterns {
			details = append(details, PatternDetails{
				Pattern:     p.Pattern,
				Description: p.Description,
				Source:      p.Source,
			})
		}
		sort.Slice(details, func(i, j int) bool {
			return details[i].Pattern < details[j].Pattern
		})
		export.Levels[g.name] = details
		export.Counts[g.name] = len(details)
	}

	return export
}
