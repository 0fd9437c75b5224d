package metrics

import (
	"math"
	"math/big"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// VaultMetrics exports counters and gauges for the reward vault engine.
type VaultMetrics struct {
	operations      *prometheus.CounterVec
	rewardPaid      prometheus.Counter
	rewardRationed  prometheus.Counter
	rewardForfeited prometheus.Counter
	adminWithdrawn  prometheus.Counter
	totalPrincipal  prometheus.Gauge
	remainingBudget prometheus.Gauge
}

var (
	vaultOnce     sync.Once
	vaultRegistry *VaultMetrics
)

// Vault returns the process-wide vault metrics, registering them on first use.
func Vault() *VaultMetrics {
	vaultOnce.Do(func() {
		vaultRegistry = &VaultMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "vault_operations_total",
				Help: "Count of vault entry point calls by operation and outcome.",
			}, []string{"operation", "outcome"}),
			rewardPaid: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "vault_reward_paid",
				Help: "Cumulative reward paid to depositors in base units.",
			}),
			rewardRationed: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "vault_reward_rationed",
				Help: "Cumulative reward withheld because the budget was exhausted.",
			}),
			rewardForfeited: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "vault_reward_forfeited",
				Help: "Cumulative reward withheld by the lock duration.",
			}),
			adminWithdrawn: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "vault_admin_withdrawn",
				Help: "Cumulative unencumbered balance swept by the owner.",
			}),
			totalPrincipal: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "vault_total_principal",
				Help: "Outstanding principal held for depositors.",
			}),
			remainingBudget: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "vault_remaining_reward_budget",
				Help: "Reward budget not yet claimed.",
			}),
		}
		prometheus.MustRegister(
			vaultRegistry.operations,
			vaultRegistry.rewardPaid,
			vaultRegistry.rewardRationed,
			vaultRegistry.rewardForfeited,
			vaultRegistry.adminWithdrawn,
			vaultRegistry.totalPrincipal,
			vaultRegistry.remainingBudget,
		)
	})
	return vaultRegistry
}

// ObserveOperation counts one entry point call, labelled ok or error.
func (m *VaultMetrics) ObserveOperation(operation string, err error) {
	if m == nil {
		return
	}
	if operation == "" {
		operation = "unknown"
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
}

// AddRewardPaid records reward transferred to a depositor.
func (m *VaultMetrics) AddRewardPaid(amount *big.Int) {
	if m == nil {
		return
	}
	m.rewardPaid.Add(toFloat(amount))
}

// AddRewardRationed records reward cut because the budget ran out.
func (m *VaultMetrics) AddRewardRationed(amount *big.Int) {
	if m == nil {
		return
	}
	m.rewardRationed.Add(toFloat(amount))
}

// AddRewardForfeited records reward withheld by the lock.
func (m *VaultMetrics) AddRewardForfeited(amount *big.Int) {
	if m == nil {
		return
	}
	m.rewardForfeited.Add(toFloat(amount))
}

// AddAdminWithdrawn records an owner sweep.
func (m *VaultMetrics) AddAdminWithdrawn(amount *big.Int) {
	if m == nil {
		return
	}
	m.adminWithdrawn.Add(toFloat(amount))
}

// SetTotals publishes outstanding principal and remaining budget.
func (m *VaultMetrics) SetTotals(principal, remainingBudget *big.Int) {
	if m == nil {
		return
	}
	m.totalPrincipal.Set(toFloat(principal))
	m.remainingBudget.Set(toFloat(remainingBudget))
}

// toFloat approximates amount for export. Negative or nil values map to zero.
func toFloat(amount *big.Int) float64 {
	if amount == nil || amount.Sign() <= 0 {
		return 0
	}
	f, _ := new(big.Float).SetInt(amount).Float64()
	if math.IsInf(f, 0) {
		return math.MaxFloat64
	}
	return f
}
