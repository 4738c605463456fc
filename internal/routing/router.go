// Package routing splits logical tables across physical shard tables.
//
// A Rule declares that a logical table (orders) is stored in N physical
// tables (orders_0 ... orders_N-1) and which statement argument carries the
// shard key. The Router picks the shard and rewrites the statement; the
// routing Executor applies the Router to every statement passing through it.
//
// Shard selection:
//
//   - integer keys: key modulo N (negative keys wrap into range)
//   - everything else: FNV-1a of the key's string form, modulo N
//
// Table names are matched case-insensitively. SQL rewriting replaces
// word-bounded occurrences of the logical name only; statements whose
// Table has no rule pass through untouched.
package routing

import (
	"errors"
	"fmt"
	"hash/fnv"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/cases"

	"github.com/roach88/mtd/internal/executor"
)

// ErrMissingShardKey is returned when a routed statement lacks the
// argument its rule reads the shard key from.
var ErrMissingShardKey = errors.New("missing shard key argument")

// DefaultFormat names physical tables "<table>_<shard>".
const DefaultFormat = "%s_%d"

// Rule shards one logical table.
type Rule struct {
	Table  string
	Shards int

	// KeyArg is the index of the statement argument holding the shard key.
	KeyArg int

	// Format builds the physical name from (table, shard). Empty means
	// DefaultFormat.
	Format string
}

// Target is the outcome of routing one statement.
type Target struct {
	Logical  string
	Physical string
	Shard    int
}

type compiledRule struct {
	Rule
	pattern *regexp.Regexp
}

// Router is immutable after NewRouter and safe for concurrent use.
type Router struct {
	rules map[string]compiledRule
}

// foldKey normalizes a table name for lookup. A new Caser per call: casers
// carry state and must not be shared between goroutines.
func foldKey(table string) string {
	return cases.Fold().String(strings.TrimSpace(table))
}

// NewRouter validates and indexes rules.
func NewRouter(rules ...Rule) (*Router, error) {
	r := &Router{rules: make(map[string]compiledRule, len(rules))}
	for i, rule := range rules {
		if strings.TrimSpace(rule.Table) == "" {
			return nil, fmt.Errorf("rule %d: table is required", i)
		}
		if rule.Shards < 1 {
			return nil, fmt.Errorf("rule %q: shards must be >= 1, got %d", rule.Table, rule.Shards)
		}
		if rule.KeyArg < 0 {
			return nil, fmt.Errorf("rule %q: key_arg must be >= 0, got %d", rule.Table, rule.KeyArg)
		}
		if rule.Format == "" {
			rule.Format = DefaultFormat
		}
		if err := checkFormat(rule); err != nil {
			return nil, err
		}
		key := foldKey(rule.Table)
		if _, dup := r.rules[key]; dup {
			return nil, fmt.Errorf("duplicate rule for table %q", rule.Table)
		}
		r.rules[key] = compiledRule{
			Rule:    rule,
			pattern: regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(strings.TrimSpace(rule.Table)) + `\b`),
		}
	}
	return r, nil
}

// checkFormat renders the first two shard names: both must be clean
// (no fmt error markers) and, with more than one shard, distinct.
func checkFormat(rule Rule) error {
	first := fmt.Sprintf(rule.Format, rule.Table, 0)
	second := fmt.Sprintf(rule.Format, rule.Table, 1)
	if strings.Contains(first, "%!") || strings.Contains(second, "%!") {
		return fmt.Errorf("rule %q: format %q must take the table name and the shard number, got %q",
			rule.Table, rule.Format, first)
	}
	if rule.Shards > 1 && first == second {
		return fmt.Errorf("rule %q: format %q gives every shard the same name", rule.Table, rule.Format)
	}
	return nil
}

// Tables returns the routed logical tables, sorted.
func (r *Router) Tables() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.rules))
	for _, cr := range r.rules {
		out = append(out, cr.Table)
	}
	sort.Strings(out)
	return out
}

// Route rewrites stmt for its shard. ok is false when no rule applies, in
// which case stmt is returned unchanged.
func (r *Router) Route(stmt executor.Statement, args []any) (routed executor.Statement, target Target, ok bool, err error) {
	if r == nil || stmt.Table == "" {
		return stmt, Target{}, false, nil
	}
	cr, found := r.rules[foldKey(stmt.Table)]
	if !found {
		return stmt, Target{}, false, nil
	}
	if cr.KeyArg >= len(args) {
		return stmt, Target{}, false, fmt.Errorf("%s: table %s reads argument %d, statement has %d: %w",
			stmt.ID, cr.Table, cr.KeyArg, len(args), ErrMissingShardKey)
	}

	shard := shardOf(args[cr.KeyArg], cr.Shards)
	physical := fmt.Sprintf(cr.Format, cr.Table, shard)

	routed = stmt
	routed.SQL = cr.pattern.ReplaceAllLiteralString(stmt.SQL, physical)
	routed.Table = physical
	return routed, Target{Logical: cr.Table, Physical: physical, Shard: shard}, true, nil
}

func shardOf(key any, shards int) int {
	n := int64(shards)
	mod := func(v int64) int {
		return int(((v % n) + n) % n)
	}
	switch v := key.(type) {
	case int:
		return mod(int64(v))
	case int8:
		return mod(int64(v))
	case int16:
		return mod(int64(v))
	case int32:
		return mod(int64(v))
	case int64:
		return mod(v)
	case uint:
		return int(uint64(v) % uint64(shards))
	case uint8:
		return int(uint64(v) % uint64(shards))
	case uint16:
		return int(uint64(v) % uint64(shards))
	case uint32:
		return int(uint64(v) % uint64(shards))
	case uint64:
		return int(v % uint64(shards))
	case []byte:
		return hashShard(v, shards)
	case string:
		return hashShard([]byte(v), shards)
	default:
		return hashShard([]byte(fmt.Sprint(v)), shards)
	}
}

func hashShard(b []byte, shards int) int {
	h := fnv.New32a()
	h.Write(b)
	return int(h.Sum32() % uint32(shards))
}
