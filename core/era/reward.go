package era

import (
	"context"
	"log/slog"
)

// RewardDistributor pays out session rewards. It is called once per ended
// session.
type RewardDistributor interface {
	DistributeReward(ctx context.Context, session uint32) error
}

// LogRewardDistributor records session ends without moving funds. It stands
// in for a real payout module on development nodes.
type LogRewardDistributor struct {
	Logger *slog.Logger
}

// DistributeReward implements RewardDistributor.
func (d LogRewardDistributor) DistributeReward(_ context.Context, session uint32) error {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("session reward distribution", "component", "era", "session", session)
	return nil
}
