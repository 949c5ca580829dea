package execution

import (
	"fmt"
	"math/rand"

	"github.com/jxskiss/base62"
)

// Slipper 模拟做空方向的不利滑点。所有随机性都来自注入的种子，
// 同一种子下整个回测结果逐位一致。
type Slipper struct {
	rng         *rand.Rand
	probability int
	minPct      float64
	maxPct      float64
}

// NewSlipper 创建滑点模拟器。probability 为触发概率 (1-100)，
// minPct/maxPct 为滑点百分比区间
func NewSlipper(seed int64, probability int, minPct, maxPct float64) *Slipper {
	return &Slipper{
		rng:         rand.New(rand.NewSource(seed)),
		probability: probability,
		minPct:      minPct,
		maxPct:      maxPct,
	}
}

func (s *Slipper) draw() float64 {
	if s.rng.Intn(100)+1 > s.probability {
		return 0
	}
	return (s.minPct + s.rng.Float64()*(s.maxPct-s.minPct)) / 100
}

// Entry 做空入场价：滑点使成交价低于期望价
func (s *Slipper) Entry(price float64) float64 {
	return price * (1 - s.draw())
}

// Exit 做空出场（买回）价：滑点使成交价高于期望价
func (s *Slipper) Exit(price float64) float64 {
	return price * (1 + s.draw())
}

// ExitAfterHalt 停牌恢复后的止损出场价：在普通滑点之上
// 再叠加 multiplier 倍的滑点差额
func (s *Slipper) ExitAfterHalt(price float64, multiplier float64) float64 {
	base := s.Exit(price)
	return base + (base-price)*multiplier
}

// Commission 按成交名义价值计算佣金，percent 为百分数 (0.4 即 0.4%)
func Commission(price float64, shares int, percent float64) float64 {
	return price * float64(shares) * percent / 100
}

// Shares 按单笔风险金额和止损距离计算股数，向零取整。
// 止损距离非正时返回 0，股数永不为负。
func Shares(riskAmount, entryPrice, stopFraction float64) int {
	perShare := entryPrice * stopFraction
	if perShare <= 0 {
		return 0
	}
	n := int(riskAmount / perShare)
	if n < 0 {
		return 0
	}
	return n
}

// NewTradeID 生成紧凑的交易ID：代码 + base62 编码的入场时间戳
func NewTradeID(ticker string, unixNano int64) string {
	return fmt.Sprintf("%s-%s", ticker, string(base62.FormatInt(unixNano)))
}
