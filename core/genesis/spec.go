package genesis

import (
	"bytes"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"stakepool/native/stake"
)

// Spec is the seed applied to an empty store: token registry, the pool and
// its roles, and opening balances.
type Spec struct {
	Tokens     []TokenSpec                  `yaml:"tokens"`
	Pool       PoolSpec                     `yaml:"pool"`
	Moderators []string                     `yaml:"moderators"`
	Alloc      map[string]map[string]string `yaml:"alloc"` // addr -> token -> amount

	owner      [20]byte
	moderators [][20]byte
	startTime  windowBound
	endTime    windowBound
}

type TokenSpec struct {
	Symbol   string `yaml:"symbol"`
	Name     string `yaml:"name"`
	Decimals uint8  `yaml:"decimals"`
	Issuer   string `yaml:"issuer"`

	issuer [20]byte
}

type PoolSpec struct {
	Owner        string `yaml:"owner"`
	StakingToken string `yaml:"stakingToken"`
	RewardToken  string `yaml:"rewardToken"`
	// StartTime and EndTime accept RFC3339 timestamps, unix seconds, or an
	// offset from bootstrap written as "+86400", "+24h" or "24h".
	StartTime string `yaml:"startTime"`
	EndTime   string `yaml:"endTime"`
}

// LoadSpec reads and validates a YAML (or JSON) genesis file.
func LoadSpec(path string) (*Spec, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("genesis spec path must be provided")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis spec %q: %w", path, err)
	}
	spec, err := ParseSpec(raw)
	if err != nil {
		return nil, fmt.Errorf("genesis spec %q: %w", path, err)
	}
	return spec, nil
}

// ParseSpec decodes and validates raw genesis bytes. Unknown fields are
// rejected.
func ParseSpec(raw []byte) (*Spec, error) {
	var spec Spec
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := spec.validate(); err != nil {
		return nil, fmt.Errorf("invalid: %w", err)
	}
	return &spec, nil
}

// Owner returns the decoded pool owner.
func (s *Spec) Owner() [20]byte { return s.owner }

// ModeratorIDs returns the decoded moderator identities.
func (s *Spec) ModeratorIDs() [][20]byte { return append([][20]byte(nil), s.moderators...) }

// Params returns the pool parameters with relative window bounds resolved
// against now. A window that has already ended is rejected.
func (s *Spec) Params(now time.Time) (stake.Params, error) {
	start, err := s.startTime.resolve(now)
	if err != nil {
		return stake.Params{}, fmt.Errorf("pool.startTime: %w", err)
	}
	end, err := s.endTime.resolve(now)
	if err != nil {
		return stake.Params{}, fmt.Errorf("pool.endTime: %w", err)
	}
	if start >= end {
		return stake.Params{}, fmt.Errorf("pool: startTime must be before endTime")
	}
	if now.Unix() >= 0 && end <= uint64(now.Unix()) {
		return stake.Params{}, fmt.Errorf("pool: endTime %d has already passed", end)
	}
	return stake.Params{
		StakingToken: strings.ToUpper(strings.TrimSpace(s.Pool.StakingToken)),
		RewardToken:  strings.ToUpper(strings.TrimSpace(s.Pool.RewardToken)),
		StartTime:    start,
		EndTime:      end,
	}, nil
}

func (s *Spec) validate() error {
	symbols := make(map[string]struct{}, len(s.Tokens))
	for i := range s.Tokens {
		if err := s.Tokens[i].validate(); err != nil {
			return fmt.Errorf("tokens[%d]: %w", i, err)
		}
		key := strings.ToUpper(strings.TrimSpace(s.Tokens[i].Symbol))
		if _, exists := symbols[key]; exists {
			return fmt.Errorf("tokens[%d]: duplicate symbol %q", i, s.Tokens[i].Symbol)
		}
		symbols[key] = struct{}{}
	}

	owner, err := ParseAccount(s.Pool.Owner)
	if err != nil {
		return fmt.Errorf("pool.owner: %w", err)
	}
	s.owner = owner
	params := s.Pool
	for name, symbol := range map[string]string{"stakingToken": params.StakingToken, "rewardToken": params.RewardToken} {
		if _, ok := symbols[strings.ToUpper(strings.TrimSpace(symbol))]; !ok {
			return fmt.Errorf("pool.%s: token %q is not declared", name, symbol)
		}
	}
	if s.startTime, err = parseBound(params.StartTime); err != nil {
		return fmt.Errorf("pool.startTime: %w", err)
	}
	if s.endTime, err = parseBound(params.EndTime); err != nil {
		return fmt.Errorf("pool.endTime: %w", err)
	}
	if s.startTime.relative == s.endTime.relative && !s.startTime.before(s.endTime) {
		return fmt.Errorf("pool: startTime must be before endTime")
	}

	s.moderators = s.moderators[:0]
	for i, mod := range s.Moderators {
		id, err := ParseAccount(mod)
		if err != nil {
			return fmt.Errorf("moderators[%d]: %w", i, err)
		}
		s.moderators = append(s.moderators, id)
	}

	for addr, balances := range s.Alloc {
		if _, err := ParseAccount(addr); err != nil {
			return fmt.Errorf("alloc[%q]: %w", addr, err)
		}
		for symbol, amount := range balances {
			if _, ok := symbols[strings.ToUpper(strings.TrimSpace(symbol))]; !ok {
				return fmt.Errorf("alloc[%q]: token %q is not declared", addr, symbol)
			}
			if _, err := parseAmountString(amount); err != nil {
				return fmt.Errorf("alloc[%q][%q]: %w", addr, symbol, err)
			}
		}
	}
	return nil
}

func (t *TokenSpec) validate() error {
	if strings.TrimSpace(t.Symbol) == "" {
		return fmt.Errorf("symbol must be provided")
	}
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("name must be provided")
	}
	if t.Decimals > 18 {
		return fmt.Errorf("decimals must be 18 or fewer")
	}
	issuer, err := ParseAccount(t.Issuer)
	if err != nil {
		return fmt.Errorf("issuer: %w", err)
	}
	t.issuer = issuer
	return nil
}

func parseAmountString(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	return amount, nil
}

// windowBound is either an absolute unix time or an offset from the moment
// the seed is applied.
type windowBound struct {
	unix     uint64
	offset   time.Duration
	relative bool
}

func (b windowBound) before(other windowBound) bool {
	if b.relative {
		return b.offset < other.offset
	}
	return b.unix < other.unix
}

func (b windowBound) resolve(now time.Time) (uint64, error) {
	if !b.relative {
		return b.unix, nil
	}
	at := now.Add(b.offset).Unix()
	if at < 0 {
		return 0, fmt.Errorf("offset %s precedes the unix epoch", b.offset)
	}
	return uint64(at), nil
}

func parseBound(value string) (windowBound, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return windowBound{}, fmt.Errorf("must be provided")
	}
	if rest, ok := strings.CutPrefix(trimmed, "+"); ok {
		offset, err := parseOffset(rest)
		if err != nil {
			return windowBound{}, fmt.Errorf("invalid offset %q", value)
		}
		return windowBound{offset: offset, relative: true}, nil
	}
	if secs, err := strconv.ParseUint(trimmed, 10, 64); err == nil {
		return windowBound{unix: secs}, nil
	}
	if offset, err := time.ParseDuration(trimmed); err == nil {
		if offset < 0 {
			return windowBound{}, fmt.Errorf("offset %q must not be negative", value)
		}
		return windowBound{offset: offset, relative: true}, nil
	}
	ts, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return windowBound{}, fmt.Errorf("invalid timestamp %q", value)
	}
	if ts.Unix() < 0 {
		return windowBound{}, fmt.Errorf("timestamp %q precedes the unix epoch", value)
	}
	return windowBound{unix: uint64(ts.Unix())}, nil
}

func parseOffset(raw string) (time.Duration, error) {
	if secs, err := strconv.ParseUint(raw, 10, 32); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	offset, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if offset < 0 {
		return 0, fmt.Errorf("negative offset")
	}
	return offset, nil
}
