/*
tiers.go - Boss tier tables

PURPOSE:
  Maps (server, round, boss) onto the boss's total HP and score rate.
  Every server region has an ordered list of tiers; a tier covers the
  rounds [StartRound, EndRound] where EndRound -1 means open ended.

LOOKUP:
  The first tier whose range contains the round wins. A round no tier
  covers is ErrInvalidTier, a boss outside 1..5 is ErrInvalidBossCode.

SOURCES:
  DefaultTables() parses the embedded bosses.yaml. LoadTables(path)
  reads an override file with the same layout.

SCORES:
  Score rates are decimals so that rate × damage is exact before rounding.
*/
package progress

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"github.com/warp/clanbattle/battle"
	"gopkg.in/yaml.v3"
)

//go:embed bosses.yaml
var defaultTablesYAML []byte

// =============================================================================
// TIER TABLES
// =============================================================================

type Tier struct {
	Tier       int
	StartRound int
	EndRound   int
	BossHP     [battle.BossesPerRound]int64
	ScoreRate  [battle.BossesPerRound]decimal.Decimal
}

// Covers reports whether the tier contains round.
func (t Tier) Covers(round int) bool {
	return round >= t.StartRound && (t.EndRound == -1 || round <= t.EndRound)
}

// Tables holds the ordered tiers of every server region.
type Tables map[battle.Server][]Tier

// BossInfo describes one boss appearance.
type BossInfo struct {
	TotalHP   int64
	ScoreRate decimal.Decimal
	Tier      int
}

func (tb Tables) tierFor(server battle.Server, round int) (Tier, error) {
	if !server.Valid() {
		return Tier{}, fmt.Errorf("%w: %d", battle.ErrInvalidServer, server)
	}
	for _, t := range tb[server] {
		if t.Covers(round) {
			return t, nil
		}
	}
	return Tier{}, fmt.Errorf("%w: %s round %d", battle.ErrInvalidTier, server, round)
}

// CurrentTier returns the tier number covering round.
func (tb Tables) CurrentTier(server battle.Server, round int) (int, error) {
	t, err := tb.tierFor(server, round)
	if err != nil {
		return 0, err
	}
	return t.Tier, nil
}

func (tb Tables) BossInfo(server battle.Server, target battle.Target) (BossInfo, error) {
	t, err := tb.tierFor(server, target.Round)
	if err != nil {
		return BossInfo{}, err
	}
	if target.Boss < 1 || target.Boss > battle.BossesPerRound {
		return BossInfo{}, fmt.Errorf("%w: boss %d", battle.ErrInvalidBossCode, target.Boss)
	}
	return BossInfo{
		TotalHP:   t.BossHP[target.Boss-1],
		ScoreRate: t.ScoreRate[target.Boss-1],
		Tier:      t.Tier,
	}, nil
}

// Score returns round(scoreRate × damage), halves rounded to even.
func (tb Tables) Score(server battle.Server, target battle.Target, damage int64) (int64, error) {
	info, err := tb.BossInfo(server, target)
	if err != nil {
		return 0, err
	}
	return info.ScoreRate.Mul(decimal.NewFromInt(damage)).RoundBank(0).IntPart(), nil
}

// =============================================================================
// LOADING
// =============================================================================

type fileTier struct {
	Tier       int       `yaml:"tier"`
	StartRound int       `yaml:"start_round"`
	EndRound   int       `yaml:"end_round"`
	BossHP     []int64   `yaml:"boss_hp"`
	ScoreRate  []float64 `yaml:"score_rate"`
}

type fileTables struct {
	Servers map[string][]fileTier `yaml:"servers"`
}

// DefaultTables returns the embedded tier tables.
func DefaultTables() Tables {
	tb, err := ParseTables(defaultTablesYAML)
	if err != nil {
		panic(fmt.Sprintf("progress: embedded boss tables: %v", err))
	}
	return tb
}

// LoadTables reads tier tables from path. An empty path yields the defaults.
func LoadTables(path string) (Tables, error) {
	if path == "" {
		return DefaultTables(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read boss tables: %w", err)
	}
	return ParseTables(data)
}

// ParseTables decodes and validates a YAML tier table document.
func ParseTables(data []byte) (Tables, error) {
	var doc fileTables
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse boss tables: %w", err)
	}

	tb := make(Tables, len(doc.Servers))
	for name, tiers := range doc.Servers {
		server, err := battle.ParseServer(name)
		if err != nil {
			return nil, err
		}
		for i, ft := range tiers {
			if len(ft.BossHP) != battle.BossesPerRound || len(ft.ScoreRate) != battle.BossesPerRound {
				return nil, fmt.Errorf("%w: %s tier %d needs %d boss_hp and score_rate values",
					battle.ErrInvalidTier, server, ft.Tier, battle.BossesPerRound)
			}
			if ft.StartRound < 1 || (ft.EndRound != -1 && ft.EndRound < ft.StartRound) {
				return nil, fmt.Errorf("%w: %s tier %d has an empty round range", battle.ErrInvalidTier, server, ft.Tier)
			}
			t := Tier{Tier: ft.Tier, StartRound: ft.StartRound, EndRound: ft.EndRound}
			if t.Tier == 0 {
				t.Tier = i + 1
			}
			for b := 0; b < battle.BossesPerRound; b++ {
				t.BossHP[b] = ft.BossHP[b]
				t.ScoreRate[b] = decimal.NewFromFloat(ft.ScoreRate[b])
			}
			tb[server] = append(tb[server], t)
		}
	}
	return tb, nil
}
